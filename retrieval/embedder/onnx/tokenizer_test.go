package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVocab() map[string]int {
	return map[string]int{
		"[UNK]": unkTokenID,
		"sleep": 2000,
		"well":  2001,
		"tea":   2002,
		"cham":  2003,
		"##omi": 2004,
		"##le":  2005,
		"?":     1029,
	}
}

func TestTokenizer_Tokenize(t *testing.T) {
	tok := NewTokenizer(testVocab())

	assert.Equal(t, []int64{2000, 2001, 1029}, tok.Tokenize("Sleep WELL?"))
	assert.Equal(t, []int64{2003, 2004, 2005, 2002}, tok.Tokenize("chamomile tea"))
	assert.Equal(t, []int64{unkTokenID}, tok.Tokenize("zzz"))
	assert.Empty(t, tok.Tokenize("   "))
}

func TestLoadTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model":{"vocab":{"tea":7}}}`), 0o644))

	tok, err := LoadTokenizer(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, tok.Tokenize("tea"))

	require.NoError(t, os.WriteFile(path, []byte(`{"model":{"vocab":{}}}`), 0o644))
	_, err = LoadTokenizer(path)
	assert.Error(t, err)
}
