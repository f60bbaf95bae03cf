package embedding

import (
	"context"
	"fmt"

	"github.com/podknow/seeder/pkg/fn"
)

// Service wraps a Provider with batching, a content-hash cache, and
// order-preserving output, matching the fixed-dimension contract every
// downstream consumer (graph node payloads, vector store upserts) relies
// on.
type Service struct {
	provider  Provider
	modelID   string
	batchSize int
	cache     *cache
}

// NewService builds a Service. modelID distinguishes cache entries across
// provider/model swaps; batchSize bounds how many uncached texts are sent
// to the provider per call.
func NewService(provider Provider, modelID string, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Service{provider: provider, modelID: modelID, batchSize: batchSize, cache: newCache()}
}

// EmbedAll embeds texts, preserving order. Empty strings map to a
// zero-vector of the provider's dimensionality without invoking the
// provider; no downstream consumer has to special-case empty text.
func (s *Service) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	zero := make([]float32, s.provider.Dimensions())

	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if t == "" {
			out[i] = zero
			continue
		}
		if v, ok := s.cache.get(s.modelID, t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	for _, batch := range fn.Chunk(indexedTexts(missIdx, missTexts), s.batchSize) {
		texts := make([]string, len(batch))
		for i, it := range batch {
			texts[i] = it.text
		}
		vecs, err := s.provider.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding: provider call: %w", err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedding: provider returned %d vectors for %d inputs", len(vecs), len(batch))
		}
		for i, it := range batch {
			out[it.idx] = vecs[i]
			s.cache.put(s.modelID, it.text, vecs[i])
		}
	}

	return out, nil
}

// Embed is a single-text convenience wrapper over EmbedAll.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type indexedText struct {
	idx  int
	text string
}

func indexedTexts(idx []int, texts []string) []indexedText {
	out := make([]indexedText, len(idx))
	for i := range idx {
		out[i] = indexedText{idx: idx[i], text: texts[i]}
	}
	return out
}
