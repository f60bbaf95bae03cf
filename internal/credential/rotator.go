// Package credential implements the Credential Rotator (C5): a pool of API
// credentials multiplexed under provider-imposed RPM/TPM/RPD limits, with
// cooldown-on-rate-limit and crash-safe persistence so rotation state
// survives a restart.
//
// The sliding-window counters and mutex-guarded state shape follow
// pkg/resilience's Limiter/Breaker (now func() time.Time for testability,
// a single mutex per instance); persistence follows cmd/ingest/main.go's
// loadState/saveState, upgraded to an atomic write since the rotator's
// state is consulted under concurrent load the directory-polling loop
// never was.
package credential

import (
	"context"
	"sync"
	"time"

	"github.com/podknow/seeder/internal/domain"
)

// Limits are the provider-imposed ceilings a credential must respect.
type Limits struct {
	RPM int // requests per 60s window
	TPM int // tokens per 60s window
	RPD int // requests per 24h window
}

// Result is the outcome Release reports for a completed call.
type Result int

const (
	ResultOK Result = iota
	ResultRateLimited
	ResultError
)

const (
	baseCooldown = 1 * time.Second
	minCooldown  = 1 * time.Second
	maxCooldown  = 15 * time.Minute
)

type slidingWindow struct {
	window time.Duration
	limit  int
	events []time.Time // timestamps still inside the window, oldest first
}

func newSlidingWindow(window time.Duration, limit int) *slidingWindow {
	return &slidingWindow{window: window, limit: limit}
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.events) && w.events[i].Before(cutoff) {
		i++
	}
	w.events = w.events[i:]
}

func (w *slidingWindow) count(now time.Time) int {
	w.prune(now)
	return len(w.events)
}

func (w *slidingWindow) admits(now time.Time, cost int) bool {
	if w.limit <= 0 {
		return true
	}
	return w.count(now)+cost <= w.limit
}

func (w *slidingWindow) record(now time.Time, cost int) {
	for i := 0; i < cost; i++ {
		w.events = append(w.events, now)
	}
}

// credentialState is one credential's live counters and cooldown.
type credentialState struct {
	Key    string
	Hint   string
	Limits Limits

	rpm *slidingWindow
	tpm *slidingWindow
	rpd *slidingWindow

	cooldownUntil  time.Time
	failureStreak  int
	lastCooldown   time.Duration
}

// Lease is returned by Acquire and must be passed back to Release.
type Lease struct {
	CredentialKey  string
	CredentialHint string
	acquiredAt     time.Time
}

// Rotator multiplexes calls across a pool of credentials.
type Rotator struct {
	mu          sync.Mutex
	credentials []*credentialState
	rrIndex     int
	statePath   string
	now         func() time.Time
}

// NewRotator builds a Rotator over the given credentials. statePath is
// where rotation state is persisted ("" disables persistence, used in
// tests).
func NewRotator(creds map[string]Limits, statePath string) *Rotator {
	r := &Rotator{statePath: statePath, now: time.Now}
	for key, lim := range creds {
		r.credentials = append(r.credentials, &credentialState{
			Key:    key,
			Hint:   hintFor(key),
			Limits: lim,
			rpm:    newSlidingWindow(60*time.Second, lim.RPM),
			tpm:    newSlidingWindow(60*time.Second, lim.TPM),
			rpd:    newSlidingWindow(24*time.Hour, lim.RPD),
		})
	}
	if statePath != "" {
		r.loadState()
	}
	return r
}

func hintFor(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// Acquire blocks until some credential admits a call estimated to cost
// estTokens (one request, estTokens tokens), selecting round-robin among
// eligible credentials. It returns ErrNoCredentialAvailable if no
// credential becomes available within maxWait.
func (r *Rotator) Acquire(ctx context.Context, estTokens int, maxWait time.Duration) (Lease, error) {
	deadline := r.now().Add(maxWait)
	for {
		if lease, ok := r.tryAcquire(estTokens); ok {
			return lease, nil
		}
		if r.now().After(deadline) {
			return Lease{}, domain.ErrNoCredentialAvailable
		}
		select {
		case <-ctx.Done():
			return Lease{}, ctx.Err()
		case <-time.After(minPollInterval(deadline, r.now())):
		}
	}
}

func minPollInterval(deadline, now time.Time) time.Duration {
	remaining := deadline.Sub(now)
	if remaining > 500*time.Millisecond {
		return 500 * time.Millisecond
	}
	if remaining < 10*time.Millisecond {
		return 10 * time.Millisecond
	}
	return remaining
}

func (r *Rotator) tryAcquire(estTokens int) (Lease, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := len(r.credentials)
	for i := 0; i < n; i++ {
		idx := (r.rrIndex + i) % n
		c := r.credentials[idx]
		if now.Before(c.cooldownUntil) {
			continue
		}
		if !c.rpm.admits(now, 1) || !c.tpm.admits(now, estTokens) || !c.rpd.admits(now, 1) {
			continue
		}
		c.rpm.record(now, 1)
		c.tpm.record(now, estTokens)
		c.rpd.record(now, 1)
		r.rrIndex = (idx + 1) % n
		return Lease{CredentialKey: c.Key, CredentialHint: c.Hint, acquiredAt: now}, true
	}
	return Lease{}, false
}

// Release reports the outcome of a call made under lease, adjusting the
// credential's token accounting and cooldown state.
func (r *Rotator) Release(lease Lease, actualTokens int, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.findByKey(lease.CredentialKey)
	if c == nil {
		return
	}

	now := r.now()
	if actualTokens > 0 {
		c.tpm.record(now, actualTokens)
	}

	switch result {
	case ResultOK:
		c.failureStreak = 0
	case ResultRateLimited:
		c.failureStreak++
		c.cooldownUntil = now.Add(nextCooldown(c))
	case ResultError:
		// Transport/provider errors don't by themselves cool a credential
		// down; the orchestrator's own retry/backoff governs those.
	}

	if r.statePath != "" {
		r.saveStateLocked()
	}
}

// nextCooldown doubles the previous cooldown (starting at baseCooldown),
// capped at maxCooldown, per repeated rate-limit offences on one credential.
func nextCooldown(c *credentialState) time.Duration {
	if c.lastCooldown == 0 {
		c.lastCooldown = baseCooldown
	} else {
		c.lastCooldown *= 2
	}
	if c.lastCooldown > maxCooldown {
		c.lastCooldown = maxCooldown
	}
	if c.lastCooldown < minCooldown {
		c.lastCooldown = minCooldown
	}
	return c.lastCooldown
}

// CooldownFromRetryAfter applies an explicit provider Retry-After hint,
// bounded to 60s as the contract specifies, instead of the doubling
// schedule.
func (r *Rotator) CooldownFromRetryAfter(lease Lease, retryAfter time.Duration) {
	if retryAfter > 60*time.Second {
		retryAfter = 60 * time.Second
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.findByKey(lease.CredentialKey)
	if c == nil {
		return
	}
	c.cooldownUntil = r.now().Add(retryAfter)
	c.lastCooldown = retryAfter
}

func (r *Rotator) findByKey(key string) *credentialState {
	for _, c := range r.credentials {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// CredentialStatus is one credential's externally visible state, for
// Status().
type CredentialStatus struct {
	Hint          string
	RPMUsed       int
	TPMUsed       int
	RPDUsed       int
	CooldownUntil time.Time
}

// Status reports the live state of every credential.
func (r *Rotator) Status() map[string]CredentialStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make(map[string]CredentialStatus, len(r.credentials))
	for _, c := range r.credentials {
		out[c.Hint] = CredentialStatus{
			Hint:          c.Hint,
			RPMUsed:       c.rpm.count(now),
			TPMUsed:       c.tpm.count(now),
			RPDUsed:       c.rpd.count(now),
			CooldownUntil: c.cooldownUntil,
		}
	}
	return out
}
