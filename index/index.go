// Package index implements the embedding index: unit-normalized document
// vectors with aligned text and source labels, queried by cosine similarity.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Epsilon replaces a zero vector norm during normalization.
const Epsilon = 1e-9

var (
	// ErrDimensionMismatch is returned when vectors of different lengths meet.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexNotFound is returned by Load when the index file does not exist.
	ErrIndexNotFound = errors.New("index file not found")

	// ErrMalformedIndex is returned by Load when the persisted arrays disagree.
	ErrMalformedIndex = errors.New("malformed index")
)

// Entry is a raw document handed to Build.
type Entry struct {
	Text   string
	Source string
	Vector []float64
}

// QueryResult is a single ranked match. Score is the cosine similarity in [-1, 1].
type QueryResult struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Index holds documents, sources and vectors as index-aligned slices.
// An Index is immutable once built.
type Index struct {
	documents []string
	sources   []string
	vectors   [][]float64
	dims      int
}

// Build normalizes every entry vector to unit length and returns the index.
// All vectors must share the same dimension.
func Build(entries []Entry) (*Index, error) {
	idx := &Index{
		documents: make([]string, 0, len(entries)),
		sources:   make([]string, 0, len(entries)),
		vectors:   make([][]float64, 0, len(entries)),
	}
	for i, e := range entries {
		if i == 0 {
			idx.dims = len(e.Vector)
		} else if len(e.Vector) != idx.dims {
			return nil, fmt.Errorf("entry %d has %d dimensions, want %d: %w", i, len(e.Vector), idx.dims, ErrDimensionMismatch)
		}
		idx.documents = append(idx.documents, e.Text)
		idx.sources = append(idx.sources, e.Source)
		idx.vectors = append(idx.vectors, Normalize(e.Vector))
	}
	return idx, nil
}

// Len returns the number of documents.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.documents)
}

// Dimensions returns the stored vector length, 0 for an empty index.
func (idx *Index) Dimensions() int {
	if idx == nil {
		return 0
	}
	return idx.dims
}

// Document returns the text and source label of document i.
func (idx *Index) Document(i int) (text, source string) {
	return idx.documents[i], idx.sources[i]
}

// Vector returns a copy of the normalized vector of document i.
func (idx *Index) Vector(i int) []float64 {
	return append([]float64(nil), idx.vectors[i]...)
}

// Query returns the min(k, Len()) documents most similar to vec, ordered by
// descending score. Equal scores keep insertion order. An empty index or a
// non-positive k yields an empty result.
func (idx *Index) Query(vec []float64, k int) ([]QueryResult, error) {
	if idx.Len() == 0 || k <= 0 {
		return []QueryResult{}, nil
	}
	if len(vec) != idx.dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(vec), idx.dims, ErrDimensionMismatch)
	}

	q := Normalize(vec)

	type scored struct {
		pos   int
		score float64
	}
	ranked := make([]scored, len(idx.vectors))
	for i, v := range idx.vectors {
		ranked[i] = scored{pos: i, score: Dot(q, v)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	results := make([]QueryResult, k)
	for i := 0; i < k; i++ {
		r := ranked[i]
		results[i] = QueryResult{
			Source: idx.sources[r.pos],
			Text:   idx.documents[r.pos],
			Score:  r.score,
		}
	}
	return results, nil
}

// Normalize returns vec scaled to unit L2 norm. A zero norm is replaced by
// Epsilon so the result is defined (and all zeros).
func Normalize(vec []float64) []float64 {
	norm := Norm(vec)
	if norm == 0 {
		norm = Epsilon
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// Norm returns the Euclidean norm of vec.
func Norm(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Float64s widens an embedding model output to float64.
func Float64s(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
