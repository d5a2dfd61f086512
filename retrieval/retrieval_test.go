package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-sleepcoach/index"
	"github.com/becomeliminal/nim-sleepcoach/metrics"
	"github.com/becomeliminal/nim-sleepcoach/retrieval"
	"github.com/becomeliminal/nim-sleepcoach/retrieval/embedder/mock"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}

func (failingEmbedder) Dimensions() int { return 3 }

func TestRetriever_GetRelevant(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New(3)
	embedder.Pin("how long did I sleep?", []float32{1, 2, 3})

	idx, err := index.Build([]index.Entry{
		{Text: "sleep duration 7 hours", Source: "wearable_data", Vector: []float64{1, 2, 3}},
		{Text: "user likes chamomile tea", Source: "user_profile", Vector: []float64{-3, 1, 0}},
	})
	require.NoError(t, err)

	collector := metrics.New("test")
	r := retrieval.NewRetriever(retrieval.NewIndexStore(idx), embedder, retrieval.WithMetrics(collector))

	results, err := r.GetRelevant(ctx, "how long did I sleep?", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "wearable_data", results[0].Source)
	assert.Equal(t, "sleep duration 7 hours", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, 1, testutil.CollectAndCount(collector.RetrievalDuration))
}

func TestRetriever_ReembedsEveryCall(t *testing.T) {
	ctx := context.Background()
	embedder := mock.New(4)
	idx, err := index.Build([]index.Entry{{Text: "a", Vector: []float64{1, 0, 0, 0}}})
	require.NoError(t, err)

	r := retrieval.NewRetriever(retrieval.NewIndexStore(idx), embedder)
	for i := 0; i < 3; i++ {
		_, err := r.GetRelevant(ctx, "same question", 3)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, embedder.Calls())
}

func TestRetriever_EmptyIndex(t *testing.T) {
	idx, err := index.Build(nil)
	require.NoError(t, err)

	embedder := mock.New(3)
	r := retrieval.NewRetriever(retrieval.NewIndexStore(idx), embedder)

	results, err := r.GetRelevant(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, embedder.Calls())
}

func TestRetriever_EmbedError(t *testing.T) {
	idx, err := index.Build([]index.Entry{{Text: "a", Vector: []float64{1, 0, 0}}})
	require.NoError(t, err)

	r := retrieval.NewRetriever(retrieval.NewIndexStore(idx), failingEmbedder{})
	_, err = r.GetRelevant(context.Background(), "q", 3)
	assert.Error(t, err)
}

func TestRetriever_DimensionMismatchIsFatal(t *testing.T) {
	idx, err := index.Build([]index.Entry{{Text: "a", Vector: []float64{1, 0, 0}}})
	require.NoError(t, err)

	r := retrieval.NewRetriever(retrieval.NewIndexStore(idx), mock.New(8))
	_, err = r.GetRelevant(context.Background(), "q", 3)
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)
}
