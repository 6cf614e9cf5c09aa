package oracle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/testhelpers"
)

func newTestClient(fake *testhelpers.FakeLLM, waits *[]time.Duration) *Client {
	c := New(fake, Config{SystemPrompt: "sys"}, zap.NewNop())
	c.wait = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
	return c
}

func rateLimited() error {
	return fmt.Errorf("gemini generate: %w: 429 Too Many Requests", apperrors.ErrRateLimited)
}

func TestComplete_Success(t *testing.T) {
	var waits []time.Duration
	fake := testhelpers.NewFakeLLM(testhelpers.Reply{Text: "hello"})
	c := newTestClient(fake, &waits)

	got, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Empty(t, waits)
	require.Len(t, fake.Calls(), 1)
	assert.Equal(t, "sys", fake.Calls()[0].SystemPrompt)
}

func TestComplete_RetriesRateLimitWithDoublingDelay(t *testing.T) {
	var waits []time.Duration
	fake := testhelpers.NewFakeLLM(
		testhelpers.Reply{Err: rateLimited()},
		testhelpers.Reply{Err: rateLimited()},
		testhelpers.Reply{Text: "ok"},
	)
	c := newTestClient(fake, &waits)

	got, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
	assert.Len(t, fake.Calls(), 3)
}

func TestComplete_ExhaustedMapsToUnavailable(t *testing.T) {
	var waits []time.Duration
	fake := testhelpers.NewFakeLLM(
		testhelpers.Reply{Err: rateLimited()},
		testhelpers.Reply{Err: rateLimited()},
		testhelpers.Reply{Err: rateLimited()},
		testhelpers.Reply{Text: "never reached"},
	)
	c := newTestClient(fake, &waits)

	_, err := c.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	assert.Len(t, fake.Calls(), 3)
	assert.Len(t, waits, 2)
}

func TestComplete_OtherErrorsAreNotRetried(t *testing.T) {
	cases := map[string]error{
		"unavailable": fmt.Errorf("x: %w", apperrors.ErrUnavailable),
		"malformed":   fmt.Errorf("x: %w", apperrors.ErrMalformed),
		"other":       errors.New("bad request"),
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			var waits []time.Duration
			fake := testhelpers.NewFakeLLM(testhelpers.Reply{Err: e}, testhelpers.Reply{Text: "late"})
			c := newTestClient(fake, &waits)

			_, err := c.Complete(context.Background(), "hi")
			assert.ErrorIs(t, err, e)
			assert.Len(t, fake.Calls(), 1)
			assert.Empty(t, waits)
		})
	}
}

func TestComplete_CancelledDuringBackoff(t *testing.T) {
	fake := testhelpers.NewFakeLLM(testhelpers.Reply{Err: rateLimited()}, testhelpers.Reply{Text: "late"})
	c := New(fake, Config{BaseDelay: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Complete(ctx, "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fake.Calls(), 1)
}
