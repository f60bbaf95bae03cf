package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/podknow/seeder/internal/credential"
	"github.com/podknow/seeder/internal/domain"
	"github.com/podknow/seeder/internal/llm"
	"github.com/podknow/seeder/pkg/fn"
	"github.com/podknow/seeder/pkg/resilience"
)

// countingFailThenSucceed fails its first N calls with a Transient-
// classified error (so RotatingProvider.Complete retries), then succeeds,
// recording the credential key each attempt actually ran under.
type countingFailThenSucceed struct {
	failures   int
	calls      int
	usedByKeys []string
}

func (f *countingFailThenSucceed) build(key string) llm.Provider {
	return fakeKeyedProvider{key: key, parent: f}
}

type fakeKeyedProvider struct {
	key    string
	parent *countingFailThenSucceed
}

func (p fakeKeyedProvider) Complete(ctx context.Context, req llm.CompleteRequest) (llm.CompleteResponse, error) {
	p.parent.calls++
	p.parent.usedByKeys = append(p.parent.usedByKeys, p.key)
	if p.parent.calls <= p.parent.failures {
		return llm.CompleteResponse{}, &domain.TransientProviderError{Provider: "fake", Wrapped: context.DeadlineExceeded}
	}
	return llm.CompleteResponse{Text: "ok", InputTokens: 1, OutputTokens: 1}, nil
}

func withFastRetryAndLimiter(t *testing.T) {
	t.Helper()
	prevRetry := completeRetryOpts
	prevLimit := DefaultGlobalRateLimit
	completeRetryOpts = fn.RetryOpts{MaxAttempts: 5, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Jitter: false}
	DefaultGlobalRateLimit = resilience.LimiterOpts{Rate: 1000, Burst: 1000}
	t.Cleanup(func() {
		completeRetryOpts = prevRetry
		DefaultGlobalRateLimit = prevLimit
	})
}

func TestRotatingProvider_Complete_RetriesTransientFailureAndRotatesCredential(t *testing.T) {
	withFastRetryAndLimiter(t)

	fake := &countingFailThenSucceed{failures: 2}
	rotator := credential.NewRotator(map[string]credential.Limits{
		"key-aaaaaaaaaaaa": {RPM: 1000, TPM: 1000000, RPD: 1000000},
		"key-bbbbbbbbbbbb": {RPM: 1000, TPM: 1000000, RPD: 1000000},
	}, "")
	p := NewRotatingProvider(rotator, fake.build)

	resp, err := p.Complete(context.Background(), llm.CompleteRequest{SystemPrompt: "s", UserPrompt: "u"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("expected eventual success, got %q", resp.Text)
	}
	if fake.calls != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", fake.calls)
	}

	distinct := map[string]bool{}
	for _, k := range fake.usedByKeys {
		distinct[k] = true
	}
	if len(distinct) < 2 {
		t.Errorf("expected retries to rotate across credentials, only used %v", fake.usedByKeys)
	}
}

func TestRotatingProvider_Complete_PermanentFailureDoesNotRetry(t *testing.T) {
	withFastRetryAndLimiter(t)

	fake := &countingFailAlways{}
	rotator := credential.NewRotator(map[string]credential.Limits{
		"key-aaaaaaaaaaaa": {RPM: 1000, TPM: 1000000, RPD: 1000000},
	}, "")
	p := NewRotatingProvider(rotator, fake.build)

	_, err := p.Complete(context.Background(), llm.CompleteRequest{SystemPrompt: "s", UserPrompt: "u"})
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.Classify(err) != domain.FailurePermanent {
		t.Fatalf("expected a permanent-classified failure for this fixture, got %v", domain.Classify(err))
	}
	if fake.calls != 1 {
		t.Errorf("expected exactly 1 attempt for a non-transient failure, got %d", fake.calls)
	}
}

type countingFailAlways struct {
	calls int
}

func (f *countingFailAlways) build(key string) llm.Provider {
	return failAlwaysProvider{parent: f}
}

type failAlwaysProvider struct {
	parent *countingFailAlways
}

func (p failAlwaysProvider) Complete(ctx context.Context, req llm.CompleteRequest) (llm.CompleteResponse, error) {
	p.parent.calls++
	return llm.CompleteResponse{}, &domain.ConstraintConflictError{NodeLabel: "Entity", ID: "x"}
}
