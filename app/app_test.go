package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-sleepcoach/config"
	"github.com/becomeliminal/nim-sleepcoach/core"
	"github.com/becomeliminal/nim-sleepcoach/index"
	"github.com/becomeliminal/nim-sleepcoach/llm"
	"github.com/becomeliminal/nim-sleepcoach/retrieval"
)

func TestNewEmbedder(t *testing.T) {
	cfg := config.Default().Embedding

	cfg.Provider = "mock"
	e, err := NewEmbedder(cfg)
	require.NoError(t, err)
	assert.Equal(t, 384, e.Dimensions())
	assert.NoError(t, e.Close())

	cfg.Provider = "ollama"
	e, err = NewEmbedder(cfg)
	require.NoError(t, err)
	assert.Equal(t, 384, e.Dimensions())

	cfg.Provider = "word2vec"
	_, err = NewEmbedder(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewCompleter(t *testing.T) {
	cfg := config.Default().LLM

	cfg.AnthropicAPIKey = ""
	_, err := NewCompleter(cfg, "chat")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg.AnthropicAPIKey = "sk-test"
	c, err := NewCompleter(cfg, "chat")
	require.NoError(t, err)
	assert.IsType(t, &llm.Breaker{}, c)

	cfg.Provider = "ollama"
	cfg.Breaker = false
	c, err = NewCompleter(cfg, "chat")
	require.NoError(t, err)
	assert.IsType(t, &llm.OllamaClient{}, c)
}

func TestNewCompleter_SeparateBreakers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config.Default().LLM
	cfg.Provider = "ollama"
	cfg.OllamaURL = server.URL

	chat, err := NewCompleter(cfg, "chat")
	require.NoError(t, err)
	summary, err := NewCompleter(cfg, "summary")
	require.NoError(t, err)

	msgs := []core.Message{core.NewMessage(core.RoleUser, "hi")}
	for i := 0; i < 3; i++ {
		_, err := summary.Complete(context.Background(), msgs, llm.Options{MaxTokens: 10})
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, summary.(*llm.Breaker).State())
	assert.Equal(t, gobreaker.StateClosed, chat.(*llm.Breaker).State())
}

func TestNewStore(t *testing.T) {
	idx, err := index.Build([]index.Entry{{Text: "a", Source: "s", Vector: []float64{1, 0}}})
	require.NoError(t, err)

	s, err := NewStore(context.Background(), "exact", idx)
	require.NoError(t, err)
	assert.IsType(t, &retrieval.IndexStore{}, s)

	s, err = NewStore(context.Background(), "chromem", idx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	_, err = NewStore(context.Background(), "faiss", idx)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadOrBuildIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom_collection.json"), []byte(`["tip one", "tip two"]`), 0o644))

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.IndexPath = filepath.Join(dir, "index.json")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 8

	embedder, err := NewEmbedder(cfg.Embedding)
	require.NoError(t, err)

	idx, err := LoadOrBuildIndex(context.Background(), cfg, embedder)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.FileExists(t, cfg.IndexPath)

	// Second call loads the existing file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom_collection.json"), []byte(`["only one"]`), 0o644))
	idx, err = LoadOrBuildIndex(context.Background(), cfg, embedder)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
}

func TestLoadOrBuildIndex_Malformed(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.IndexPath = filepath.Join(dir, "index.json")
	require.NoError(t, os.WriteFile(cfg.IndexPath, []byte(`{"documents":["a"],"embeddings":[],"sources":["s"]}`), 0o644))

	embedder, err := NewEmbedder(config.EmbeddingConfig{Provider: "mock", Dimensions: 4})
	require.NoError(t, err)

	_, err = LoadOrBuildIndex(context.Background(), cfg, embedder)
	assert.ErrorIs(t, err, index.ErrMalformedIndex)
}
