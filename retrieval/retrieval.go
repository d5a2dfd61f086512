// Package retrieval turns free-text queries into ranked knowledge-base
// matches using an Embedder and a vector Store.
//
// Architecture:
//   - Embedder: text-to-vector conversion (Ollama API, local ONNX model, or mock)
//   - Store: similarity search backend (exact in-memory index or chromem-go)
//   - Retriever: embeds the query, delegates to the Store
package retrieval

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/index"
	"github.com/becomeliminal/nim-sleepcoach/metrics"
)

// Embedder converts text to embedding vectors.
// Implementations: mock.MockEmbedder (testing), ollama.Embedder, onnx.ONNXEmbedder.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Store answers top-k similarity queries over indexed documents.
// Implementations: IndexStore (exact), chromem.Store (chromem-go).
type Store interface {
	// Query returns at most k results sorted by descending score.
	Query(ctx context.Context, vector []float64, k int) ([]index.QueryResult, error)

	// Len returns the number of indexed documents.
	Len() int
}

// IndexStore adapts an *index.Index to the Store interface.
type IndexStore struct {
	idx *index.Index
}

// NewIndexStore wraps idx.
func NewIndexStore(idx *index.Index) *IndexStore {
	return &IndexStore{idx: idx}
}

func (s *IndexStore) Query(_ context.Context, vector []float64, k int) ([]index.QueryResult, error) {
	return s.idx.Query(vector, k)
}

func (s *IndexStore) Len() int {
	return s.idx.Len()
}

// Retriever fetches relevant documents for a query. Query embeddings are not
// cached; every call re-embeds.
type Retriever struct {
	store    Store
	embedder Embedder
	metrics  *metrics.Collector
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithMetrics records retrieval latency on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Retriever) {
		r.metrics = c
	}
}

// NewRetriever creates a Retriever over store using embedder for queries.
func NewRetriever(store Store, embedder Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		store:    store,
		embedder: embedder,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Len returns the number of documents behind the retriever.
func (r *Retriever) Len() int {
	return r.store.Len()
}

// GetRelevant embeds query and returns the topK most similar documents.
// An empty store yields an empty result without calling the embedder.
func (r *Retriever) GetRelevant(ctx context.Context, query string, topK int) ([]index.QueryResult, error) {
	if r.store.Len() == 0 || topK <= 0 {
		return []index.QueryResult{}, nil
	}

	start := time.Now()
	defer func() { r.metrics.ObserveRetrieval(time.Since(start)) }()

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.Query(ctx, index.Float64s(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	log.Debugf("[RETRIEVE] %d results for query: %q", len(results), truncateLog(query, 50))
	return results, nil
}

// truncateLog truncates text to maxLen runes for logging.
func truncateLog(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
