package ingest

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/index"
	"github.com/becomeliminal/nim-sleepcoach/retrieval"
)

// DefaultCacheSize is the default number of document embeddings kept between
// rebuilds.
const DefaultCacheSize = 10000

// Builder embeds documents and builds indexes. Embeddings are cached by text,
// so rebuilding after a small data change only embeds the changed documents.
type Builder struct {
	embedder retrieval.Embedder
	cache    *ristretto.Cache
}

// NewBuilder creates a Builder caching up to cacheSize embeddings.
// cacheSize <= 0 uses DefaultCacheSize.
func NewBuilder(embedder retrieval.Embedder, cacheSize int64) (*Builder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheSize * 10,
		MaxCost:     cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Builder{embedder: embedder, cache: cache}, nil
}

// Build embeds every document and returns the resulting index.
func (b *Builder) Build(ctx context.Context, docs []Document) (*index.Index, error) {
	entries := make([]index.Entry, 0, len(docs))
	embedded := 0
	for _, doc := range docs {
		vec, hit, err := b.embed(ctx, doc.Text)
		if err != nil {
			return nil, fmt.Errorf("embed %s document: %w", doc.Source, err)
		}
		if !hit {
			embedded++
		}
		entries = append(entries, index.Entry{Text: doc.Text, Source: doc.Source, Vector: vec})
	}
	b.cache.Wait()

	idx, err := index.Build(entries)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	log.Debugf("[INGEST] Embedded %d of %d documents (%d cached)", embedded, len(docs), len(docs)-embedded)
	return idx, nil
}

func (b *Builder) embed(ctx context.Context, text string) ([]float64, bool, error) {
	if v, ok := b.cache.Get(text); ok {
		return v.([]float64), true, nil
	}
	raw, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, false, err
	}
	vec := index.Float64s(raw)
	b.cache.Set(text, vec, 1)
	return vec, false, nil
}

// Run loads dataDir, builds the index and writes it to indexPath.
func (b *Builder) Run(ctx context.Context, dataDir, indexPath string) (*index.Index, error) {
	data, err := LoadDataDir(dataDir)
	if err != nil {
		return nil, err
	}
	idx, err := b.Build(ctx, data.Documents())
	if err != nil {
		return nil, err
	}
	if err := idx.Save(indexPath); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}
	log.Infof("[INGEST] Saved index to %s (Total documents indexed: %d)", indexPath, idx.Len())
	return idx, nil
}

// Close releases the embedding cache.
func (b *Builder) Close() {
	b.cache.Close()
}
