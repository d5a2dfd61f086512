// Package mock provides a deterministic embedder for tests and offline runs.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// MockEmbedder generates deterministic embeddings from a hash of the text.
// Identical texts always map to identical vectors; fixed vectors can be
// pinned for specific texts with Pin.
type MockEmbedder struct {
	dimensions int

	mu     sync.Mutex
	pinned map[string][]float32
	calls  int
}

// New creates a mock embedder. dims <= 0 selects DefaultDimensions.
func New(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &MockEmbedder{
		dimensions: dims,
		pinned:     make(map[string][]float32),
	}
}

// Pin makes Embed return vec for text.
func (m *MockEmbedder) Pin(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[text] = append([]float32(nil), vec...)
}

// Calls returns how many times Embed has been called.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Embed creates a deterministic embedding from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	vec, ok := m.pinned[text]
	m.mu.Unlock()
	if ok {
		return append([]float32(nil), vec...), nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
