package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withFixedClock(r *Rotator, start time.Time) *time.Time {
	cur := start
	r.now = func() time.Time { return cur }
	return &cur
}

func TestAcquire_RoundRobinsAmongEligible(t *testing.T) {
	r := NewRotator(map[string]Limits{
		"key-aaaaaaaa": {RPM: 10, TPM: 10000, RPD: 1000},
		"key-bbbbbbbb": {RPM: 10, TPM: 10000, RPD: 1000},
	}, "")
	clock := withFixedClock(r, time.Unix(0, 0))
	_ = clock

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		lease, err := r.Acquire(context.Background(), 10, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[lease.CredentialKey] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both credentials to be used, got %v", seen)
	}
}

func TestAcquire_FailsAfterMaxWaitWhenAllCooledDown(t *testing.T) {
	r := NewRotator(map[string]Limits{"key-aaaaaaaa": {RPM: 1, TPM: 1000, RPD: 1000}}, "")

	lease, err := r.Acquire(context.Background(), 10, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Release(lease, 10, ResultRateLimited)

	_, err = r.Acquire(context.Background(), 10, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected ErrNoCredentialAvailable while credential is cooling down")
	}
}

func TestRelease_DoublesCooldownOnRepeatedRateLimit(t *testing.T) {
	r := NewRotator(map[string]Limits{"key-aaaaaaaa": {RPM: 1000, TPM: 1000000, RPD: 100000}}, "")
	clock := withFixedClock(r, time.Unix(0, 0))

	lease, _ := r.Acquire(context.Background(), 1, time.Second)
	r.Release(lease, 1, ResultRateLimited)
	c := r.credentials[0]
	first := c.lastCooldown
	if first != baseCooldown {
		t.Fatalf("expected first cooldown == baseCooldown, got %v", first)
	}

	*clock = c.cooldownUntil
	lease2, err := r.Acquire(context.Background(), 1, time.Second)
	if err != nil {
		t.Fatalf("unexpected error acquiring after cooldown elapsed: %v", err)
	}
	r.Release(lease2, 1, ResultRateLimited)
	if c.lastCooldown != first*2 {
		t.Fatalf("expected cooldown to double to %v, got %v", first*2, c.lastCooldown)
	}
}

func TestRelease_CooldownCapsAtMax(t *testing.T) {
	r := NewRotator(map[string]Limits{"key-aaaaaaaa": {RPM: 1000, TPM: 1000000, RPD: 100000}}, "")
	c := r.credentials[0]
	c.lastCooldown = maxCooldown
	clock := withFixedClock(r, time.Unix(0, 0))
	_ = clock

	lease := Lease{CredentialKey: c.Key}
	r.Release(lease, 0, ResultRateLimited)
	if c.lastCooldown != maxCooldown {
		t.Fatalf("expected cooldown capped at %v, got %v", maxCooldown, c.lastCooldown)
	}
}

func TestStatePersistence_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rotation_state.json")

	r := NewRotator(map[string]Limits{"key-aaaaaaaa": {RPM: 1000, TPM: 1000000, RPD: 100000}}, path)
	lease, _ := r.Acquire(context.Background(), 1, time.Second)
	r.Release(lease, 1, ResultRateLimited)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected state file to be written: %v", err)
	}

	r2 := NewRotator(map[string]Limits{"key-aaaaaaaa": {RPM: 1000, TPM: 1000000, RPD: 100000}}, path)
	if r2.credentials[0].cooldownUntil.IsZero() {
		t.Fatalf("expected cooldown to survive reload")
	}
}
