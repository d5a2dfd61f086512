package memory

import (
	"context"
	"time"
)

// Summarizer compresses a conversation transcript ("User: ...\nAssistant: ...\n")
// into summary text.
//
// Implementations:
//   - CompletionSummarizer: asks an llm.Completer for a summary
//   - SummarizerFunc: adapts plain functions (tests, custom strategies)
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, transcript string) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, transcript string) (string, error) {
	return f(ctx, transcript)
}

// Config holds Conversation configuration.
type Config struct {
	// MaxMessages is the history length that triggers a summarization pass
	// once exceeded.
	// Default: 10
	MaxMessages int

	// SummaryTimeout bounds each Summarizer call. A timeout takes the local
	// fallback path like any other failure.
	// Default: 30s
	SummaryTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	MaxMessages:    10,
	SummaryTimeout: 30 * time.Second,
}

// keepRecent is the number of newest messages kept verbatim after a pass.
const keepRecent = 2

// SummaryPrefix starts the content of the synthetic summary message.
const SummaryPrefix = "Summary of previous conversation: "
