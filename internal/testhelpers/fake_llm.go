package testhelpers

import (
	"context"
	"fmt"
	"sync"

	"github.com/plays3000/ai-server/internal/core"
)

// Reply is one scripted answer of a FakeLLM.
type Reply struct {
	Text string
	Err  error
}

// Call records what a FakeLLM received.
type Call struct {
	SystemPrompt string
	Prompt       string
	Attachments  []core.Attachment
}

// FakeLLM replays scripted replies in order. When the script runs out it falls back
// to Respond, and fails when that is nil too.
type FakeLLM struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call

	Respond func(prompt string) (string, error)
}

func NewFakeLLM(replies ...Reply) *FakeLLM {
	return &FakeLLM{replies: replies}
}

func (f *FakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string, attachments ...core.Attachment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{SystemPrompt: systemPrompt, Prompt: userPrompt, Attachments: attachments})
	if len(f.replies) > 0 {
		r := f.replies[0]
		f.replies = f.replies[1:]
		f.mu.Unlock()
		return r.Text, r.Err
	}
	respond := f.Respond
	f.mu.Unlock()

	if respond != nil {
		return respond(userPrompt)
	}
	return "", fmt.Errorf("fake llm: no scripted reply for call %d", len(f.Calls()))
}

func (f *FakeLLM) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ core.LLMProvider = (*FakeLLM)(nil)

// FakeEmbedder returns a fixed vector per text, or Err.
type FakeEmbedder struct {
	Vectors map[string][]float32
	Err     error
}

func (f *FakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.Vectors[t]
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*FakeEmbedder)(nil)
