// Package oracle wraps an LLM provider with the rate-limit backoff every caller shares.
package oracle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// Config defines retry behavior. Zero values fall back to the defaults.
type Config struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	SystemPrompt string
}

type Client struct {
	provider core.LLMProvider
	cfg      Config
	logger   *zap.Logger

	// wait blocks for d or until ctx is done. Replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

func New(provider core.LLMProvider, cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		logger:   logger.Named("oracle"),
		wait:     sleepCtx,
	}
}

// Complete sends one prompt and returns the raw text. Only rate-limit failures are
// retried, with the delay doubling after each attempt. When the attempts run out the
// returned error matches both apperrors.ErrUnavailable and apperrors.ErrRateLimited.
func (c *Client) Complete(ctx context.Context, prompt string, attachments ...core.Attachment) (string, error) {
	delay := c.cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		text, err := c.provider.Generate(ctx, c.cfg.SystemPrompt, prompt, attachments...)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, apperrors.ErrRateLimited) {
			return "", err
		}
		lastErr = err

		if attempt == c.cfg.MaxAttempts {
			break
		}
		c.logger.Warn("rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		if err := c.wait(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}

	c.logger.Error("rate limit retries exhausted", zap.Int("attempts", c.cfg.MaxAttempts))
	return "", apperrors.RetriesExhausted(c.cfg.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
