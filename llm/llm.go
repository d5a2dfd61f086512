// Package llm defines the completion interface used for replies and
// conversation summaries, with Anthropic and Ollama implementations.
package llm

import (
	"context"

	"github.com/becomeliminal/nim-sleepcoach/core"
)

// Options tunes a single completion call.
type Options struct {
	MaxTokens   int64
	Temperature float64
}

// Completer turns an ordered message sequence into assistant text.
// Any failure (network, auth, rate limit, open circuit) is returned as an error;
// callers decide on fallbacks.
type Completer interface {
	Complete(ctx context.Context, messages []core.Message, opts Options) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []core.Message, opts Options) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []core.Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}
