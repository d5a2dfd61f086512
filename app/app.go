// Package app wires configured components together for the command-line
// entry points.
package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/config"
	"github.com/becomeliminal/nim-sleepcoach/index"
	"github.com/becomeliminal/nim-sleepcoach/ingest"
	"github.com/becomeliminal/nim-sleepcoach/llm"
	"github.com/becomeliminal/nim-sleepcoach/retrieval"
	"github.com/becomeliminal/nim-sleepcoach/retrieval/embedder/mock"
	"github.com/becomeliminal/nim-sleepcoach/retrieval/embedder/ollama"
	"github.com/becomeliminal/nim-sleepcoach/retrieval/store/chromem"
)

// Embedder is a retrieval.Embedder that may hold resources.
type Embedder interface {
	retrieval.Embedder
	Close() error
}

type nopCloseEmbedder struct {
	retrieval.Embedder
}

func (nopCloseEmbedder) Close() error { return nil }

// NewEmbedder creates the configured embedding function.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return nopCloseEmbedder{ollama.New(cfg.OllamaURL, cfg.OllamaModel, cfg.Dimensions)}, nil
	case "mock":
		log.Warn("[APP] Using mock embedder; retrieval results are not semantic")
		return nopCloseEmbedder{mock.New(cfg.Dimensions)}, nil
	case "onnx":
		return newONNXEmbedder(cfg)
	}
	return nil, fmt.Errorf("embedding provider %q: %w", cfg.Provider, config.ErrInvalidConfig)
}

// NewCompleter creates the configured completion client, wrapped in a
// circuit breaker when enabled. Each purpose ("chat", "summary") gets its own
// client so failures of one never open the other's breaker.
func NewCompleter(cfg config.LLMConfig, purpose string) (llm.Completer, error) {
	var c llm.Completer
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider: %w", config.ErrInvalidConfig)
		}
		c = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})
	case "ollama":
		c = llm.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("llm provider %q: %w", cfg.Provider, config.ErrInvalidConfig)
	}
	if cfg.Breaker {
		c = llm.NewBreaker(c, llm.DefaultBreakerConfig(cfg.Provider+"-"+purpose))
	}
	return c, nil
}

// NewStore wraps idx in the configured retrieval backend.
func NewStore(ctx context.Context, backend string, idx *index.Index) (retrieval.Store, error) {
	switch backend {
	case "exact":
		return retrieval.NewIndexStore(idx), nil
	case "chromem":
		s, err := chromem.New(ctx, idx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("retrieval backend %q: %w", backend, config.ErrInvalidConfig)
}

// LoadOrBuildIndex loads the index file, running ingestion first when the
// file does not exist yet.
func LoadOrBuildIndex(ctx context.Context, cfg *config.Config, embedder retrieval.Embedder) (*index.Index, error) {
	idx, err := index.Load(cfg.IndexPath)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, index.ErrIndexNotFound) {
		return nil, err
	}

	log.Infof("[APP] No index at %s, running ingestion", cfg.IndexPath)
	builder, err := ingest.NewBuilder(embedder, cfg.Embedding.CacheSize)
	if err != nil {
		return nil, err
	}
	defer builder.Close()

	idx, err = builder.Run(ctx, cfg.DataDir, cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return idx, nil
}
