//go:build onnx

package app

import (
	"github.com/becomeliminal/nim-sleepcoach/config"
	"github.com/becomeliminal/nim-sleepcoach/retrieval/embedder/onnx"
)

func newONNXEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	e, err := onnx.New(onnx.Config{
		ModelPath:         cfg.ONNXModelPath,
		TokenizerPath:     cfg.ONNXTokenizerPath,
		SharedLibraryPath: cfg.ONNXLibraryPath,
		Dimensions:        cfg.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
