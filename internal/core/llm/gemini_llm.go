package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName, logger: logger.Named("gemini")}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate sends the prompt followed by every attachment as an inline blob.
func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string, attachments ...core.Attachment) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	parts := make([]genai.Part, 0, len(attachments)+1)
	parts = append(parts, genai.Text(userPrompt))
	for _, a := range attachments {
		if len(a.Data) == 0 {
			continue
		}
		parts = append(parts, genai.Blob{MIMEType: a.MIMEType, Data: a.Data})
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		g.logger.Warn("gemini generate failed", zap.String("model", g.modelName), zap.Error(err))
		return "", classifyError("gemini generate", err, 0)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini generate: %w", apperrors.ErrMalformed)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini generate: %w", apperrors.ErrMalformed)
	}
	return b.String(), nil
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
