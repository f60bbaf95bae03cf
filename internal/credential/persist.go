package credential

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// persistedCredential is the on-disk shape of one credential's rotation
// state, matching $STATE_DIR/rotation_state.json's deterministic location.
type persistedCredential struct {
	Key           string    `json:"key"`
	CooldownUntil time.Time `json:"cooldown_until"`
	FailureStreak int       `json:"failure_streak"`
	LastCooldownMS int64    `json:"last_cooldown_ms"`
}

type persistedState struct {
	Credentials []persistedCredential `json:"credentials"`
}

// loadState restores cooldown/failure-streak state at startup. A missing
// or corrupt file is not an error: rotation starts fresh, mirroring
// loadState's "missing file returns empty map" behavior in the directory-
// polling ingest loop.
func (r *Rotator) loadState() {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		return
	}
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return
	}
	byKey := make(map[string]persistedCredential, len(ps.Credentials))
	for _, pc := range ps.Credentials {
		byKey[pc.Key] = pc
	}
	for _, c := range r.credentials {
		if pc, ok := byKey[c.Key]; ok {
			c.cooldownUntil = pc.CooldownUntil
			c.failureStreak = pc.FailureStreak
			c.lastCooldown = time.Duration(pc.LastCooldownMS) * time.Millisecond
		}
	}
}

// saveStateLocked writes rotation state via a temp file plus rename, so a
// crash mid-write never leaves a truncated rotation_state.json behind.
// Caller must hold r.mu.
func (r *Rotator) saveStateLocked() {
	ps := persistedState{Credentials: make([]persistedCredential, 0, len(r.credentials))}
	for _, c := range r.credentials {
		ps.Credentials = append(ps.Credentials, persistedCredential{
			Key:            c.Key,
			CooldownUntil:  c.cooldownUntil,
			FailureStreak:  c.failureStreak,
			LastCooldownMS: c.lastCooldown.Milliseconds(),
		})
	}

	data, err := json.Marshal(ps)
	if err != nil {
		return
	}

	dir := filepath.Dir(r.statePath)
	tmp, err := os.CreateTemp(dir, ".rotation_state-*.tmp")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return
	}
	os.Rename(tmpPath, r.statePath)
}
