package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// cacheKey identifies an embedding by the model that produced it and the
// exact text embedded, so a provider or model swap never serves a stale
// vector under a reused key.
type cacheKey struct {
	model    string
	textHash string
}

func newCacheKey(model, text string) cacheKey {
	sum := sha256.Sum256([]byte(text))
	return cacheKey{model: model, textHash: hex.EncodeToString(sum[:])}
}

// cache is a process-local, concurrency-safe embedding cache keyed by
// (model, sha256(text)). It never evicts; the pipeline's working set
// (per-episode unit and quote text) is small enough that bounding it isn't
// worth the complexity.
type cache struct {
	mu sync.RWMutex
	m  map[cacheKey][]float32
}

func newCache() *cache {
	return &cache{m: make(map[cacheKey][]float32)}
}

func (c *cache) get(model, text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[newCacheKey(model, text)]
	return v, ok
}

func (c *cache) put(model, text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[newCacheKey(model, text)] = vec
}
