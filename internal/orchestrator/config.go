package orchestrator

import "time"

// maxCredentialWait bounds how long a unit's LLM call waits for credential
// admission before giving up; exceeding it surfaces ErrNoCredentialAvailable,
// which Classify treats as Permanent (it matches none of the transient
// kinds), so RotatingProvider does not retry it.
const maxCredentialWait = 2 * time.Minute

// Config carries the tunables §4.8/§5 name explicitly.
type Config struct {
	// MaxEpisodesConcurrent bounds the episode pool.
	MaxEpisodesConcurrent int
	// MaxConcurrentUnits bounds the unit pool of one episode. Each episode
	// in flight runs its own pool of this size; the pool is not shared
	// across episodes.
	MaxConcurrentUnits int
	// UnitTimeout bounds one unit's extract+embed work (KNOWLEDGE_EXTRACTION_TIMEOUT).
	UnitTimeout time.Duration
	// UnitQueueCapacity is not read by the orchestrator: units are handed to
	// the unit pool as a slice, not through a queue.
	UnitQueueCapacity int
	// ClusterThreshold (tau) is the minimum nearest-centroid score to
	// auto-assign a unit to a cluster during post-processing.
	ClusterThreshold float32
}

// DefaultConfig mirrors the defaults named in the design.
func DefaultConfig() Config {
	return Config{
		MaxEpisodesConcurrent: 2,
		MaxConcurrentUnits:    4,
		UnitTimeout:           30 * time.Minute,
		UnitQueueCapacity:     256,
		ClusterThreshold:      0.8,
	}
}
