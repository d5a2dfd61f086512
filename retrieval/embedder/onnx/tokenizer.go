// Package onnx provides a local all-MiniLM-L6-v2 embedder on ONNX Runtime.
// The runtime-backed embedder is built with the "onnx" build tag; the
// WordPiece tokenizer is always available.
package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token ids of the BERT uncased vocabulary.
const (
	clsTokenID = 101
	sepTokenID = 102
	unkTokenID = 100
)

// Tokenizer performs BERT-style lowercase WordPiece tokenization.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the vocabulary from a HuggingFace tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var tok struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode tokenizer: %w", err)
	}
	if len(tok.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}
	return NewTokenizer(tok.Model.Vocab), nil
}

// NewTokenizer creates a tokenizer over vocab.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Tokenize converts text to token ids, without [CLS]/[SEP].
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		for _, piece := range t.wordPieces(word) {
			id, ok := t.vocab[piece]
			if !ok {
				id = unkTokenID
			}
			ids = append(ids, int64(id))
		}
	}
	return ids
}

// splitWords splits on whitespace and isolates punctuation as its own word.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// wordPieces splits word greedily into the longest vocabulary prefixes.
// A word with no valid split becomes a single [UNK].
func (t *Tokenizer) wordPieces(word string) []string {
	if _, ok := t.vocab[word]; ok {
		return []string{word}
	}

	var pieces []string
	runes := []rune(word)
	for start := 0; start < len(runes); {
		end := len(runes)
		found := ""
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				found = sub
				break
			}
			end--
		}
		if found == "" {
			return []string{"[UNK]"}
		}
		pieces = append(pieces, found)
		start = end
	}
	return pieces
}
