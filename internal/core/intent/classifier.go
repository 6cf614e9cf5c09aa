// Package intent decides whether a message asks for a generated document or a
// conversational answer.
package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/core"
)

type Intent int

const (
	Chat Intent = iota
	Document
)

func (i Intent) String() string {
	if i == Document {
		return "DOCUMENT"
	}
	return "CHAT"
}

type Classifier struct {
	oracle core.Completer
	logger *zap.Logger
}

func New(oracle core.Completer, logger *zap.Logger) *Classifier {
	return &Classifier{oracle: oracle, logger: logger.Named("intent")}
}

// Classify asks the oracle for a one-word label. Anything other than DOCUMENT or
// REPORT counts as Chat. An empty message is Chat without a call.
func (c *Classifier) Classify(ctx context.Context, message string) (Intent, error) {
	if strings.TrimSpace(message) == "" {
		return Chat, nil
	}
	text, err := c.oracle.Complete(ctx, buildPrompt(message))
	if err != nil {
		return Chat, err
	}
	got := Parse(text)
	c.logger.Debug("message classified", zap.Stringer("intent", got), zap.String("raw", text))
	return got, nil
}

func buildPrompt(message string) string {
	return "Classify the user message. Answer with exactly one word: DOCUMENT if the user wants a " +
		"report or form filled in and generated, CHAT for anything else.\n" +
		"Message: \"" + message + "\""
}

// Parse normalizes a raw label: whitespace, quotes, backticks and a trailing
// period are removed before comparing case-insensitively.
func Parse(text string) Intent {
	label := strings.TrimSpace(text)
	label = strings.Trim(label, "\"'`")
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, ".")
	label = strings.Trim(label, "\"'` \t\r\n*")
	switch strings.ToUpper(label) {
	case "DOCUMENT", "REPORT":
		return Document
	default:
		return Chat
	}
}
