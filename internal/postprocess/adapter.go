package postprocess

import (
	"context"

	"github.com/podknow/seeder/internal/embedding"
)

// EmbeddingSearcher adapts *embedding.Store to centroidSearcher, converting
// embedding.SearchHit to this package's local SearchHit so postprocess
// never imports embedding's richer Meta-carrying type for a lookup that
// only needs id and score.
type EmbeddingSearcher struct {
	Store *embedding.Store
}

func (a EmbeddingSearcher) Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]string) ([]SearchHit, error) {
	hits, err := a.Store.Search(ctx, collection, vector, topK, filters)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		out[i] = SearchHit{ID: h.ID, Score: h.Score}
	}
	return out, nil
}
