// Package engine runs conversation turns: it records the user's message,
// retrieves relevant knowledge, assembles the prompt and asks the language
// model for a reply.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/core"
	"github.com/becomeliminal/nim-sleepcoach/index"
	"github.com/becomeliminal/nim-sleepcoach/llm"
	"github.com/becomeliminal/nim-sleepcoach/memory"
	"github.com/becomeliminal/nim-sleepcoach/metrics"
)

// FallbackReply is returned to the user when the completion service fails.
const FallbackReply = "I'm sorry, I'm unable to answer that right now."

const contextHeader = "Relevant information:\n"

// Retriever finds knowledge-base documents relevant to a query.
// Implemented by *retrieval.Retriever.
type Retriever interface {
	GetRelevant(ctx context.Context, query string, topK int) ([]index.QueryResult, error)
}

// Engine is the conversation orchestrator. One Engine serves one session and
// processes turns sequentially.
type Engine struct {
	completer    llm.Completer
	conversation *memory.Conversation
	retriever    Retriever

	profile      *core.Profile
	systemPrompt string
	topK         int
	options      llm.Options
	timeout      time.Duration
	metrics      *metrics.Collector
}

// Option configures the engine.
type Option func(*Engine)

// WithProfile personalises the system prompt and greeting.
func WithProfile(p *core.Profile) Option {
	return func(e *Engine) {
		e.profile = p
	}
}

// WithTopK sets how many documents are retrieved per turn.
func WithTopK(k int) Option {
	return func(e *Engine) {
		e.topK = k
	}
}

// WithCompletionOptions sets the reply length and temperature.
func WithCompletionOptions(opts llm.Options) Option {
	return func(e *Engine) {
		e.options = opts
	}
}

// WithTimeout bounds each completion call. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithMetrics records turn and failure counts.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// NewEngine creates an engine. The system prompt is built here from the
// profile and never refreshed.
func NewEngine(completer llm.Completer, conversation *memory.Conversation, retriever Retriever, opts ...Option) *Engine {
	e := &Engine{
		completer:    completer,
		conversation: conversation,
		retriever:    retriever,
		topK:         3,
		options:      llm.Options{MaxTokens: 500, Temperature: 0.7},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.systemPrompt = SystemPrompt(e.profile)
	return e
}

// SystemPrompt returns the persona prompt for the given profile.
func SystemPrompt(p *core.Profile) string {
	if p.Empty() {
		return "You are a helpful AI assistant and sleep coach. " +
			"Be empathetic and provide clear, practical advice to the user. " +
			"Always address by name."
	}

	var b strings.Builder
	b.WriteString("You are a helpful AI sleep coaching assistant. ")
	if p.Name != "" {
		fmt.Fprintf(&b, "The user's name is %s. ", p.Name)
	}
	if p.SleepIssues != "" {
		fmt.Fprintf(&b, "The user has sleep issues: %s. ", p.SleepIssues)
	}
	b.WriteString("Be empathetic and provide clear, practical advice. ")
	b.WriteString("Always address by name and use the user's name in your responses.")
	return b.String()
}

// SystemPrompt returns the prompt built at construction.
func (e *Engine) SystemPrompt() string {
	return e.systemPrompt
}

// Greeting returns the opening line shown before the first turn.
func (e *Engine) Greeting() string {
	if e.profile != nil && e.profile.Name != "" {
		return fmt.Sprintf("Hello %s, I'm your sleep assistant. How can I help you today?", e.profile.Name)
	}
	return "Hello, I'm your AI sleep assistant. How can I help you today?"
}

// Conversation returns the engine's conversation memory.
func (e *Engine) Conversation() *memory.Conversation {
	return e.conversation
}

// Output represents the result of one turn.
type Output struct {
	// Type indicates the kind of output.
	Type OutputType

	// Text is the reply shown to the user.
	Text string

	// Sources are the knowledge-base documents placed in the prompt.
	Sources []index.QueryResult

	// PromptTokens is the estimated size of the assembled prompt.
	PromptTokens int

	// Error is set when Type is OutputFallback.
	Error error
}

// OutputType indicates the kind of output from a turn.
type OutputType int

const (
	// OutputComplete indicates the model produced the reply.
	OutputComplete OutputType = iota

	// OutputFallback indicates the completion failed and FallbackReply was used.
	OutputFallback
)

// Run processes one user turn.
//
// Completion failures (including timeouts) are not returned as errors: the
// reply becomes FallbackReply and the cause is in Output.Error. Retrieval
// failures (embedding service down, dimension mismatch) are returned as errors
// after the user message has been recorded.
func (e *Engine) Run(ctx context.Context, userMessage string) (*Output, error) {
	logger := log.WithField("conversation", e.conversation.ID())
	e.metrics.ObserveTurn()

	// The user's message is recorded before retrieval and prompt assembly.
	e.conversation.Append(ctx, core.RoleUser, userMessage)

	results, err := e.retriever.GetRelevant(ctx, userMessage, e.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	logger.Debugf("[ENGINE] Retrieved %d documents", len(results))

	messages := e.assemble(results, userMessage)
	tokens := llm.EstimateTokens(messages)
	logger.Debugf("[ENGINE] Prompt: %d messages, ~%d tokens", len(messages), tokens)

	out := &Output{
		Type:         OutputComplete,
		Sources:      results,
		PromptTokens: tokens,
	}

	reply, err := e.complete(ctx, messages)
	if err != nil {
		logger.Warnf("[ENGINE] Completion failed, using fallback reply: %v", err)
		e.metrics.ObserveCompletionFailure()
		out.Type = OutputFallback
		out.Error = err
		reply = FallbackReply
	}
	out.Text = reply

	e.conversation.Append(ctx, core.RoleAssistant, reply)
	return out, nil
}

func (e *Engine) complete(ctx context.Context, messages []core.Message) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	reply, err := e.completer.Complete(ctx, messages, e.options)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("completion timed out after %s: %w", e.timeout, err)
		}
		return "", fmt.Errorf("complete: %w", err)
	}
	return reply, nil
}

// assemble builds the prompt: persona, knowledge context (if any), history
// without the summary message, then the user's message.
func (e *Engine) assemble(results []index.QueryResult, userMessage string) []core.Message {
	history := e.conversation.Context()
	messages := make([]core.Message, 0, len(history)+3)

	messages = append(messages, core.NewMessage(core.RoleSystem, e.systemPrompt))
	if block := ContextBlock(results); block != "" {
		messages = append(messages, core.NewMessage(core.RoleSystem, block))
	}
	for _, m := range history {
		if m.Role == core.RoleSystem && strings.HasPrefix(m.Content, "Summary") {
			continue
		}
		messages = append(messages, m)
	}
	// The current message is already the last history entry; it is repeated
	// here as the final user turn.
	messages = append(messages, core.NewMessage(core.RoleUser, userMessage))
	return messages
}

// ContextBlock formats retrieval results as a bullet list under a header.
// It returns "" when there are no results.
func ContextBlock(results []index.QueryResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextHeader)
	for _, r := range results {
		source := r.Source
		if source == "" {
			source = "info"
		}
		fmt.Fprintf(&b, "- (%s) %s\n", source, r.Text)
	}
	return strings.TrimSpace(b.String())
}
