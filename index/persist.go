package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// fileFormat is the on-disk layout: three index-aligned arrays.
type fileFormat struct {
	Documents  []string    `json:"documents"`
	Embeddings [][]float64 `json:"embeddings"`
	Sources    []string    `json:"sources"`
}

// Load reads an index file written by Save (or the ingestion step) and
// renormalizes its vectors.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrIndexNotFound)
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if len(f.Documents) != len(f.Embeddings) || len(f.Documents) != len(f.Sources) {
		return nil, fmt.Errorf("%d documents, %d embeddings, %d sources: %w",
			len(f.Documents), len(f.Embeddings), len(f.Sources), ErrMalformedIndex)
	}

	entries := make([]Entry, len(f.Documents))
	for i := range f.Documents {
		entries[i] = Entry{Text: f.Documents[i], Source: f.Sources[i], Vector: f.Embeddings[i]}
	}
	idx, err := Build(entries)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	log.Infof("[INDEX] Loaded %d documents (%d dims) from %s", idx.Len(), idx.Dimensions(), path)
	return idx, nil
}

// Save writes the index to path, replacing any existing file atomically.
func (idx *Index) Save(path string) error {
	f := fileFormat{
		Documents:  idx.documents,
		Embeddings: idx.vectors,
		Sources:    idx.sources,
	}
	if f.Documents == nil {
		f.Documents, f.Embeddings, f.Sources = []string{}, [][]float64{}, []string{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}

	log.Infof("[INDEX] Saved %d documents to %s", idx.Len(), path)
	return nil
}
