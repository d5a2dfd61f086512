package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/becomeliminal/nim-sleepcoach/core"
	"github.com/becomeliminal/nim-sleepcoach/engine"
	"github.com/becomeliminal/nim-sleepcoach/index"
	"github.com/becomeliminal/nim-sleepcoach/llm"
	"github.com/becomeliminal/nim-sleepcoach/memory"
	"github.com/becomeliminal/nim-sleepcoach/retrieval"
	"github.com/becomeliminal/nim-sleepcoach/retrieval/embedder/mock"
)

type stubRetriever struct {
	results []index.QueryResult
	err     error
	queries []string
	topKs   []int
}

func (r *stubRetriever) GetRelevant(ctx context.Context, query string, topK int) ([]index.QueryResult, error) {
	r.queries = append(r.queries, query)
	r.topKs = append(r.topKs, topK)
	return r.results, r.err
}

type recordingCompleter struct {
	reply    string
	err      error
	calls    int
	messages []core.Message
	opts     llm.Options
}

func (c *recordingCompleter) Complete(ctx context.Context, messages []core.Message, opts llm.Options) (string, error) {
	c.calls++
	c.messages = messages
	c.opts = opts
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func TestRunFallbackOnCompletionFailure(t *testing.T) {
	completer := &recordingCompleter{err: errors.New("api unavailable")}
	conv := memory.NewConversation(nil, nil)
	e := engine.NewEngine(completer, conv, &stubRetriever{})

	out, err := e.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Text != engine.FallbackReply {
		t.Fatalf("expected fallback reply, got %q", out.Text)
	}
	if out.Type != engine.OutputFallback || out.Error == nil {
		t.Fatalf("expected fallback output with error, got %+v", out)
	}

	history := conv.Context()
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != core.RoleUser || history[0].Content != "hi" {
		t.Fatalf("unexpected first message: %+v", history[0])
	}
	if history[1].Role != core.RoleAssistant || history[1].Content != engine.FallbackReply {
		t.Fatalf("unexpected second message: %+v", history[1])
	}
}

func TestRunAssemblesPrompt(t *testing.T) {
	completer := &recordingCompleter{reply: "Try a wind-down routine."}
	retriever := &stubRetriever{results: []index.QueryResult{
		{Source: "wearable_data", Text: "sleep duration 7 hours", Score: 0.9},
		{Source: "user_profile", Text: "user likes chamomile tea", Score: 0.5},
	}}
	conv := memory.NewConversation(nil, nil)
	conv.Append(context.Background(), core.RoleUser, "earlier question")
	conv.Append(context.Background(), core.RoleAssistant, "earlier answer")

	e := engine.NewEngine(completer, conv, retriever)
	out, err := e.Run(context.Background(), "how did I sleep?")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Type != engine.OutputComplete || out.Text != "Try a wind-down routine." {
		t.Fatalf("unexpected output: %+v", out)
	}
	if len(out.Sources) != 2 || out.PromptTokens <= 0 {
		t.Fatalf("unexpected sources/tokens: %+v", out)
	}

	msgs := completer.messages
	want := []core.Message{
		core.NewMessage(core.RoleSystem, e.SystemPrompt()),
		core.NewMessage(core.RoleSystem, "Relevant information:\n- (wearable_data) sleep duration 7 hours\n- (user_profile) user likes chamomile tea"),
		core.NewMessage(core.RoleUser, "earlier question"),
		core.NewMessage(core.RoleAssistant, "earlier answer"),
		core.NewMessage(core.RoleUser, "how did I sleep?"),
		core.NewMessage(core.RoleUser, "how did I sleep?"),
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(msgs), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, msgs[i], want[i])
		}
	}

	if completer.opts.MaxTokens != 500 || completer.opts.Temperature != 0.7 {
		t.Fatalf("unexpected options: %+v", completer.opts)
	}
	if retriever.topKs[0] != 3 || retriever.queries[0] != "how did I sleep?" {
		t.Fatalf("unexpected retrieval call: %v %v", retriever.queries, retriever.topKs)
	}
	if conv.Len() != 4 {
		t.Fatalf("expected 4 messages in memory, got %d", conv.Len())
	}
}

func TestRunOmitsEmptyContextBlock(t *testing.T) {
	completer := &recordingCompleter{reply: "ok"}
	e := engine.NewEngine(completer, memory.NewConversation(nil, nil), &stubRetriever{})

	if _, err := e.Run(context.Background(), "hello"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// persona, history user message, final user message
	if len(completer.messages) != 3 {
		t.Fatalf("expected 3 messages, got %+v", completer.messages)
	}
	if completer.messages[1].Role != core.RoleUser {
		t.Fatalf("expected no context block, got %+v", completer.messages[1])
	}
}

func TestRunFiltersSummaryMessage(t *testing.T) {
	summarizer := memory.SummarizerFunc(func(ctx context.Context, transcript string) (string, error) {
		return "user sleeps badly", nil
	})
	conv := memory.NewConversation(summarizer, &memory.Config{MaxMessages: 4})
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		conv.Append(context.Background(), core.RoleUser, m)
	}
	if conv.Summary() == "" {
		t.Fatal("expected summary to be set")
	}

	completer := &recordingCompleter{reply: "ok"}
	e := engine.NewEngine(completer, conv, &stubRetriever{})
	if _, err := e.Run(context.Background(), "f"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, m := range completer.messages[1:] {
		if m.Role == core.RoleSystem && strings.HasPrefix(m.Content, "Summary") {
			t.Fatalf("summary message leaked into prompt: %+v", m)
		}
	}
}

func TestRunRetrievalErrorIsFatal(t *testing.T) {
	completer := &recordingCompleter{reply: "ok"}
	conv := memory.NewConversation(nil, nil)
	e := engine.NewEngine(completer, conv, &stubRetriever{err: index.ErrDimensionMismatch})

	_, err := e.Run(context.Background(), "hi")
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if completer.calls != 0 {
		t.Fatalf("completer should not be called, got %d calls", completer.calls)
	}
	if conv.Len() != 1 {
		t.Fatalf("expected the user message to be recorded, got %d messages", conv.Len())
	}
}

func TestRunTimeoutUsesFallback(t *testing.T) {
	completer := llm.CompleterFunc(func(ctx context.Context, messages []core.Message, opts llm.Options) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := engine.NewEngine(completer, memory.NewConversation(nil, nil), &stubRetriever{}, engine.WithTimeout(10*time.Millisecond))

	out, err := e.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Type != engine.OutputFallback || !errors.Is(out.Error, context.DeadlineExceeded) {
		t.Fatalf("expected timeout fallback, got %+v", out)
	}
}

func TestRunWithRetriever(t *testing.T) {
	embedder := mock.New(8)
	var entries []index.Entry
	for _, doc := range []struct{ text, source string }{
		{"sleep duration 7 hours", "wearable_data"},
		{"user likes chamomile tea", "user_profile"},
	} {
		vec, err := embedder.Embed(context.Background(), doc.text)
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		entries = append(entries, index.Entry{Text: doc.text, Source: doc.source, Vector: index.Float64s(vec)})
	}
	idx, err := index.Build(entries)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	completer := &recordingCompleter{reply: "ok"}
	r := retrieval.NewRetriever(retrieval.NewIndexStore(idx), embedder)
	e := engine.NewEngine(completer, memory.NewConversation(nil, nil), r, engine.WithTopK(1))

	out, err := e.Run(context.Background(), "sleep duration 7 hours")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(out.Sources) != 1 || out.Sources[0].Source != "wearable_data" {
		t.Fatalf("unexpected sources: %+v", out.Sources)
	}
}

func TestSystemPrompt(t *testing.T) {
	tests := []struct {
		name    string
		profile *core.Profile
		want    string
	}{
		{
			name: "no profile",
			want: "You are a helpful AI assistant and sleep coach. Be empathetic and provide clear, practical advice to the user. Always address by name.",
		},
		{
			name:    "name and issues",
			profile: core.ParseProfile(gjson.Parse(`{"name":"Alex","sleep_issues":["insomnia","snoring"]}`)),
			want: "You are a helpful AI sleep coaching assistant. The user's name is Alex. " +
				"The user has sleep issues: insomnia, snoring. Be empathetic and provide clear, practical advice. " +
				"Always address by name and use the user's name in your responses.",
		},
		{
			name:    "age only",
			profile: core.ParseProfile(gjson.Parse(`{"age":30}`)),
			want: "You are a helpful AI sleep coaching assistant. Be empathetic and provide clear, practical advice. " +
				"Always address by name and use the user's name in your responses.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.SystemPrompt(tt.profile); got != tt.want {
				t.Errorf("SystemPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGreeting(t *testing.T) {
	e := engine.NewEngine(&recordingCompleter{}, memory.NewConversation(nil, nil), &stubRetriever{})
	if got := e.Greeting(); got != "Hello, I'm your AI sleep assistant. How can I help you today?" {
		t.Fatalf("unexpected greeting: %q", got)
	}

	p := core.ParseProfile(gjson.Parse(`{"name":"Alex"}`))
	e = engine.NewEngine(&recordingCompleter{}, memory.NewConversation(nil, nil), &stubRetriever{}, engine.WithProfile(p))
	if got := e.Greeting(); got != "Hello Alex, I'm your sleep assistant. How can I help you today?" {
		t.Fatalf("unexpected greeting: %q", got)
	}
}

func TestContextBlock(t *testing.T) {
	if got := engine.ContextBlock(nil); got != "" {
		t.Fatalf("expected empty block, got %q", got)
	}
	got := engine.ContextBlock([]index.QueryResult{{Text: "note"}})
	if got != "Relevant information:\n- (info) note" {
		t.Fatalf("unexpected block: %q", got)
	}
}
