// Package chromem provides a retrieval.Store backed by chromem-go, a pure Go
// embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/index"
)

const collectionName = "knowledge"

// Store keeps indexed documents in a chromem-go collection.
// Scores are chromem's cosine similarity. Every query ranks the whole
// collection so ties are ordered by insertion position, and zero-vector
// documents score 0 like they do in the exact index.
type Store struct {
	db   *chromem.DB
	col  *chromem.Collection
	idx  *index.Index
	dims int
}

// New loads every document of idx into a fresh in-memory chromem collection.
func New(ctx context.Context, idx *index.Index) (*Store, error) {
	db := chromem.NewDB()

	col, err := db.CreateCollection(
		collectionName,
		nil, // no collection metadata
		nil, // embeddings are always provided
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	docs := make([]chromem.Document, idx.Len())
	for i := range docs {
		text, source := idx.Document(i)
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   text,
			Embedding: float32s(idx.Vector(i)),
			Metadata:  map[string]string{"source": source},
		}
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("add documents: %w", err)
		}
	}

	log.Infof("[CHROMEM] Loaded %d documents into collection %q", len(docs), collectionName)
	return &Store{db: db, col: col, idx: idx, dims: idx.Dimensions()}, nil
}

// Query retrieves documents by vector similarity.
func (s *Store) Query(ctx context.Context, vector []float64, k int) ([]index.QueryResult, error) {
	count := s.col.Count()
	if count == 0 || k <= 0 {
		return []index.QueryResult{}, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("query has %d dimensions, store has %d: %w", len(vector), s.dims, index.ErrDimensionMismatch)
	}
	if k > count {
		k = count
	}

	// chromem-go cannot normalize a zero vector; every document scores 0
	if index.Norm(vector) == 0 {
		return s.zeroScores(k), nil
	}

	// chromem-go picks arbitrarily among equal scores at its nResults cut,
	// so the cut is made here after ordering by position.
	results, err := s.col.QueryEmbedding(ctx, float32s(index.Normalize(vector)), count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]index.QueryResult, len(results))
	pos := make([]int, len(results))
	for i, r := range results {
		score := float64(r.Similarity)
		// zero-vector documents come back as NaN
		if math.IsNaN(score) {
			score = 0
		}
		out[i] = index.QueryResult{
			Source: r.Metadata["source"],
			Text:   r.Content,
			Score:  score,
		}
		pos[i], _ = strconv.Atoi(r.ID)
	}
	sort.Sort(byScore{out, pos})
	if k > len(out) {
		k = len(out)
	}
	return out[:k], nil
}

func (s *Store) zeroScores(k int) []index.QueryResult {
	out := make([]index.QueryResult, k)
	for i := range out {
		text, source := s.idx.Document(i)
		out[i] = index.QueryResult{Source: source, Text: text}
	}
	return out
}

// Len returns the number of documents in the collection.
func (s *Store) Len() int {
	return s.col.Count()
}

// byScore orders results by descending score, then insertion position.
type byScore struct {
	results []index.QueryResult
	pos     []int
}

func (b byScore) Len() int { return len(b.results) }

func (b byScore) Less(i, j int) bool {
	if b.results[i].Score != b.results[j].Score {
		return b.results[i].Score > b.results[j].Score
	}
	return b.pos[i] < b.pos[j]
}

func (b byScore) Swap(i, j int) {
	b.results[i], b.results[j] = b.results[j], b.results[i]
	b.pos[i], b.pos[j] = b.pos[j], b.pos[i]
}

func float32s(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
