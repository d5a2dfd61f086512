package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/core"
)

// Conversation is the bounded message log of one chat session. It is owned by
// a single session and is not safe for concurrent use.
//
// After every Append the history holds at most MaxMessages messages; it only
// reaches MaxMessages+1 inside Append, right before the summarization pass.
type Conversation struct {
	id         string
	config     *Config
	summarizer Summarizer

	history []core.Message
	summary string

	onSummary func(fallback bool)
}

// NewConversation creates an empty conversation. A nil summarizer always
// uses the local fallback summary.
func NewConversation(summarizer Summarizer, config *Config) *Conversation {
	if config == nil {
		config = DefaultConfig
	}
	cfg := *config
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultConfig.MaxMessages
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = DefaultConfig.SummaryTimeout
	}
	return &Conversation{
		id:         uuid.NewString(),
		config:     &cfg,
		summarizer: summarizer,
	}
}

// ID identifies the conversation in logs.
func (c *Conversation) ID() string {
	return c.id
}

// SetSummaryHook registers fn to be called after every summarization pass.
func (c *Conversation) SetSummaryHook(fn func(fallback bool)) {
	c.onSummary = fn
}

// Append adds a message and runs a summarization pass when the history
// exceeds MaxMessages. Summarizer failures never surface to the caller.
func (c *Conversation) Append(ctx context.Context, role core.Role, content string) {
	c.history = append(c.history, core.NewMessage(role, content))
	if len(c.history) > c.config.MaxMessages {
		c.Summarize(ctx)
	}
}

// Summarize compresses all but the last two messages into the running
// summary. It is a no-op when the history has two messages or fewer.
func (c *Conversation) Summarize(ctx context.Context) {
	if len(c.history) <= keepRecent {
		return
	}

	split := len(c.history) - keepRecent
	compress := c.history[:split]
	keep := append([]core.Message(nil), c.history[split:]...)

	text, fallback := c.summarize(ctx, compress)

	if c.summary != "" {
		c.summary += " " + text
	} else {
		c.summary = text
	}

	c.history = keep
	if c.summary != "" {
		c.history = append([]core.Message{core.NewMessage(core.RoleSystem, SummaryPrefix+c.summary)}, c.history...)
	}

	log.WithField("conversation", c.id).Infof("[MEMORY] Summarized %d messages (fallback=%t, summary %d chars)",
		len(compress), fallback, len(c.summary))
	if c.onSummary != nil {
		c.onSummary(fallback)
	}
}

// summarize returns the summary text for msgs and whether the local fallback
// produced it.
func (c *Conversation) summarize(ctx context.Context, msgs []core.Message) (string, bool) {
	if c.summarizer == nil {
		return FallbackSummary(msgs), true
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.SummaryTimeout)
	defer cancel()

	text, err := c.summarizer.Summarize(ctx, Transcript(msgs))
	if err != nil {
		log.WithField("conversation", c.id).Warnf("[MEMORY] Summarization failed, using local summary: %v", err)
		return FallbackSummary(msgs), true
	}
	return strings.TrimSpace(text), false
}

// Context returns a copy of the current history, including the synthetic
// summary message when present.
func (c *Conversation) Context() []core.Message {
	return append([]core.Message(nil), c.history...)
}

// Summary returns the running summary, empty before the first pass.
func (c *Conversation) Summary() string {
	return c.summary
}

// Len returns the current history length.
func (c *Conversation) Len() int {
	return len(c.history)
}
