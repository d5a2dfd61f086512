// Sleepcoach: terminal chat with a personal sleep assistant grounded in the
// user's own wearable, profile, location and note data.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/app"
	"github.com/becomeliminal/nim-sleepcoach/config"
	"github.com/becomeliminal/nim-sleepcoach/engine"
	"github.com/becomeliminal/nim-sleepcoach/ingest"
	"github.com/becomeliminal/nim-sleepcoach/llm"
	"github.com/becomeliminal/nim-sleepcoach/logging"
	"github.com/becomeliminal/nim-sleepcoach/memory"
	"github.com/becomeliminal/nim-sleepcoach/metrics"
	"github.com/becomeliminal/nim-sleepcoach/retrieval"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// ============================================================================
	// CONFIGURATION
	// ============================================================================
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to a YAML config file")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	logs := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer logs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	collector := metrics.New("sleepcoach")
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, collector)
	}

	// ============================================================================
	// KNOWLEDGE BASE
	// ============================================================================
	embedder, err := app.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	defer embedder.Close()

	idx, err := app.LoadOrBuildIndex(ctx, cfg, embedder)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	store, err := app.NewStore(ctx, cfg.Retrieval.Backend, idx)
	if err != nil {
		return err
	}
	retriever := retrieval.NewRetriever(store, embedder, retrieval.WithMetrics(collector))
	log.Infof("[APP] Knowledge base ready (%d documents, %s backend)", retriever.Len(), cfg.Retrieval.Backend)

	// ============================================================================
	// CONVERSATION
	// ============================================================================
	completer, err := app.NewCompleter(cfg.LLM, "chat")
	if err != nil {
		return err
	}
	summaryCompleter, err := app.NewCompleter(cfg.LLM, "summary")
	if err != nil {
		return err
	}

	conversation := memory.NewConversation(memory.NewCompletionSummarizer(summaryCompleter), &memory.Config{
		MaxMessages:    cfg.Memory.MaxMessages,
		SummaryTimeout: cfg.Memory.SummaryTimeout,
	})
	conversation.SetSummaryHook(collector.ObserveSummary)

	history, err := ingest.LoadChatHistory(cfg.ChatHistoryPath)
	if err != nil {
		return err
	}
	for _, m := range history {
		conversation.Append(ctx, m.Role, m.Content)
	}
	if len(history) > 0 {
		log.Infof("[APP] Preloaded %d messages of chat history", len(history))
	}

	profile, err := ingest.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}

	eng := engine.NewEngine(completer, conversation, retriever,
		engine.WithProfile(profile),
		engine.WithTopK(cfg.Retrieval.TopK),
		engine.WithCompletionOptions(llm.Options{
			MaxTokens:   cfg.Completion.MaxTokens,
			Temperature: cfg.Completion.Temperature,
		}),
		engine.WithTimeout(cfg.Completion.Timeout),
		engine.WithMetrics(collector),
	)

	// ============================================================================
	// CHAT LOOP
	// ============================================================================
	return chat(ctx, eng)
}

func chat(ctx context.Context, eng *engine.Engine) error {
	fmt.Printf("Assistant: %s\n", eng.Greeting())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("You: ")
		var input string
		select {
		case <-ctx.Done():
			fmt.Println("\nAssistant: (Session ended)")
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Println("\nAssistant: (Session ended)")
				return nil
			}
			input = line
		}

		if strings.TrimSpace(input) == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "exit", "quit", "bye":
			fmt.Println("Assistant: Goodbye! Take care.")
			return nil
		}

		out, err := eng.Run(ctx, input)
		if err != nil {
			return err
		}
		fmt.Printf("Assistant: %s\n", out.Text)
	}
}

func serveMetrics(addr string, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	log.Infof("[APP] Metrics on http://%s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("[APP] Metrics server: %v", err)
	}
}
