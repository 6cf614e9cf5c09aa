package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
)

// OpenAILLM talks to any OpenAI-compatible chat completions endpoint.
type OpenAILLM struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAILLM(apiKey, baseURL, model string, logger *zap.Logger) (*OpenAILLM, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAILLM{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.Named("openai"),
	}, nil
}

func (c *OpenAILLM) Generate(ctx context.Context, systemPrompt, userPrompt string, attachments ...core.Attachment) (string, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	images := imageParts(attachments, c.logger)
	if len(images) == 0 {
		user.Content = userPrompt
	} else {
		user.MultiContent = append([]openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: userPrompt},
		}, images...)
	}
	messages = append(messages, user)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		c.logger.Warn("chat completion failed", zap.String("model", c.model), zap.Error(err))
		return "", classifyError("openai chat completion", err, openAIStatus(err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai chat completion: %w", apperrors.ErrMalformed)
	}

	c.logger.Debug("chat completion done",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// imageParts turns image attachments into data-URL parts. Chat completions has no
// generic binary part, so anything else is dropped with a warning.
func imageParts(attachments []core.Attachment, logger *zap.Logger) []openai.ChatMessagePart {
	var parts []openai.ChatMessagePart
	for _, a := range attachments {
		if !strings.HasPrefix(a.MIMEType, "image/") {
			logger.Warn("attachment type not supported by provider, skipping",
				zap.String("mime_type", a.MIMEType), zap.String("name", a.Name))
			continue
		}
		url := "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	return parts
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

var _ core.LLMProvider = (*OpenAILLM)(nil)
