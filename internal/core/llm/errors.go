package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/plays3000/ai-server/internal/apperrors"
)

// classifyStatus maps an HTTP status from a provider onto the oracle error kinds.
// It returns nil for statuses that are neither rate limits nor server failures.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return apperrors.ErrRateLimited
	case status >= 500:
		return apperrors.ErrUnavailable
	default:
		return nil
	}
}

// classifyError wraps a provider error with the matching sentinel. Context errors
// pass through untouched so callers can tell cancellation apart from outages.
func classifyError(provider string, err error, status int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if status == 0 {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			status = gerr.Code
		}
	}
	if kind := classifyStatus(status); kind != nil {
		return fmt.Errorf("%s: %w: %w", provider, kind, err)
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	if strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "resource exhausted") ||
		strings.Contains(lower, "quota") {
		return fmt.Errorf("%s: %w: %w", provider, apperrors.ErrRateLimited, err)
	}

	for _, code := range []string{"500", "502", "503", "504", "529"} {
		if strings.Contains(errStr, code) {
			return fmt.Errorf("%s: %w: %w", provider, apperrors.ErrUnavailable, err)
		}
	}
	if strings.Contains(lower, "unavailable") || strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "eof") {
		return fmt.Errorf("%s: %w: %w", provider, apperrors.ErrUnavailable, err)
	}

	return fmt.Errorf("%s: %w", provider, err)
}
