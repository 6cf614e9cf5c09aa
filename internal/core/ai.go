package core

import "context"

// Attachment is a binary reference forwarded to the model as a typed part.
type Attachment struct {
	MIMEType string
	Data     []byte
	Name     string
}

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer is the retrying oracle every pipeline stage calls.
type Completer interface {
	Complete(ctx context.Context, prompt string, attachments ...Attachment) (string, error)
}

// LLMProvider is a single-shot completion backend. Implementations map their
// transport failures onto apperrors.ErrRateLimited, ErrUnavailable and ErrMalformed.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string, attachments ...Attachment) (string, error)
}
