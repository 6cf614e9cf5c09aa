package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
)

type AnthropicLLM struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

func NewAnthropicLLM(apiKey, model string, logger *zap.Logger) (*AnthropicLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is empty")
	}
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	return &AnthropicLLM{
		client:    anthropic.NewClient(apiKey),
		model:     model,
		maxTokens: 4096,
		logger:    logger.Named("anthropic"),
	}, nil
}

func (c *AnthropicLLM) Generate(ctx context.Context, systemPrompt, userPrompt string, attachments ...core.Attachment) (string, error) {
	content := []anthropic.MessageContent{
		{Type: "text", Text: &userPrompt},
	}
	for _, a := range attachments {
		if !strings.HasPrefix(a.MIMEType, "image/") {
			c.logger.Warn("attachment type not supported by provider, skipping",
				zap.String("mime_type", a.MIMEType), zap.String("name", a.Name))
			continue
		}
		content = append(content, anthropic.MessageContent{
			Type: "image",
			Source: &anthropic.MessageContentSource{
				Type:      "base64",
				MediaType: a.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(a.Data),
			},
		})
	}

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: content},
		},
	})
	if err != nil {
		c.logger.Warn("create messages failed", zap.String("model", c.model), zap.Error(err))
		return "", c.classify(err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil && *block.Text != "" {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic create messages: %w", apperrors.ErrMalformed)
}

func (c *AnthropicLLM) classify(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimitErr():
			return fmt.Errorf("anthropic create messages: %w: %w", apperrors.ErrRateLimited, err)
		case apiErr.IsOverloadedErr(), apiErr.IsApiErr():
			return fmt.Errorf("anthropic create messages: %w: %w", apperrors.ErrUnavailable, err)
		}
	}
	status := 0
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}
	return classifyError("anthropic create messages", err, status)
}

var _ core.LLMProvider = (*AnthropicLLM)(nil)
