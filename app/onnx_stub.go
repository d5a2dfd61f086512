//go:build !onnx

package app

import (
	"fmt"

	"github.com/becomeliminal/nim-sleepcoach/config"
)

func newONNXEmbedder(config.EmbeddingConfig) (Embedder, error) {
	return nil, fmt.Errorf("onnx embedder not available: rebuild with -tags onnx: %w", config.ErrInvalidConfig)
}
