package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-sleepcoach/core"
	"github.com/becomeliminal/nim-sleepcoach/llm"
)

const summaryInstruction = "Summarize the following conversation between a user and an assistant, focusing on key points:\n"

// Fallback truncation limits, in characters.
const (
	fallbackMessageChars = 50
	fallbackSummaryChars = 200
)

// CompletionSummarizer asks a language model for the summary.
type CompletionSummarizer struct {
	completer llm.Completer
	options   llm.Options
}

// NewCompletionSummarizer creates a Summarizer using completer with a short,
// low-temperature completion.
func NewCompletionSummarizer(completer llm.Completer) *CompletionSummarizer {
	return &CompletionSummarizer{
		completer: completer,
		options:   llm.Options{MaxTokens: 150, Temperature: 0.2},
	}
}

func (s *CompletionSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	prompt := summaryInstruction + transcript
	text, err := s.completer.Complete(ctx, []core.Message{core.NewMessage(core.RoleUser, prompt)}, s.options)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Transcript renders user and assistant messages as "<Label>: <content>\n"
// lines. System messages (the previous summary) are skipped since their
// content already lives in the running summary.
func Transcript(msgs []core.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != core.RoleUser && m.Role != core.RoleAssistant {
			continue
		}
		b.WriteString(m.Role.Label())
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// FallbackSummary builds the deterministic local summary used when the
// Summarizer fails: the first 50 characters of each user/assistant message,
// cut to 200 characters overall and followed by "...".
func FallbackSummary(msgs []core.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case core.RoleUser:
			b.WriteString("User said: ")
		case core.RoleAssistant:
			b.WriteString("Assistant replied: ")
		default:
			continue
		}
		b.WriteString(truncateRunes(m.Content, fallbackMessageChars))
		b.WriteString("... ")
	}
	return truncateRunes(b.String(), fallbackSummaryChars) + "..."
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
