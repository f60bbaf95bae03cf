package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/podknow/seeder/internal/credential"
	"github.com/podknow/seeder/internal/domain"
	"github.com/podknow/seeder/internal/llm"
	"github.com/podknow/seeder/pkg/fn"
	"github.com/podknow/seeder/pkg/resilience"
)

// DefaultGlobalRateLimit smooths the combined request rate across every
// credential a RotatingProvider rotates over. The rotator's own per-
// credential RPM windows cap each credential individually but don't stop
// every credential from being admitted in the same instant; this token
// bucket paces the aggregate regardless of which credential a given call
// lands on.
var DefaultGlobalRateLimit = resilience.LimiterOpts{Rate: 20, Burst: 20}

// completeRetryOpts bounds the retry-and-rotate loop a Transient-classified
// failure triggers. Each retry acquires a fresh lease from the rotator,
// which round-robins to the next credential, so a retry after a transient
// provider error also rotates credentials, per the retry policy in
// domain/errors.go's FailureClass doc.
var completeRetryOpts = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// estimateTokens is a rough chars/4 heuristic used only to pick a
// reasonable admission estimate for the rate limiter; actual usage from
// the response corrects the rotator's windows on Release.
func estimateTokens(systemPrompt, userPrompt string) int {
	return (len(systemPrompt) + len(userPrompt)) / 4
}

// RotatingProvider implements llm.Provider by acquiring a credential lease
// from the rotator before every call and releasing it with the real
// outcome afterward, so C3/C2's calls are rate-limited and rotated without
// either package knowing credentials exist.
type RotatingProvider struct {
	rotator *credential.Rotator
	build   func(apiKey string) llm.Provider
	maxWait func() int // not read; completeOnce always waits up to maxCredentialWait
	limiter *resilience.Limiter

	mu        sync.Mutex
	providers map[string]llm.Provider
}

// NewRotatingProvider binds a rotator to a provider factory (e.g.
// llm.NewAnthropicProvider) keyed by the leased credential's raw key.
func NewRotatingProvider(rotator *credential.Rotator, build func(apiKey string) llm.Provider) *RotatingProvider {
	return &RotatingProvider{
		rotator:   rotator,
		build:     build,
		limiter:   resilience.NewLimiter(DefaultGlobalRateLimit),
		providers: make(map[string]llm.Provider),
	}
}

func (p *RotatingProvider) providerFor(key string) llm.Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.providers[key]; ok {
		return existing
	}
	built := p.build(key)
	p.providers[key] = built
	return built
}

// Complete acquires a lease sized to the request, runs the underlying
// call, and releases the lease with the credential rotator's own
// classification of the outcome (ok / rate-limited / error). A
// Transient-classified failure (rate limit, timeout, 5xx) is retried with
// exponential backoff up to completeRetryOpts.MaxAttempts times; each
// retry re-acquires a lease, which rotates to a new credential. A
// Permanent or Fatal failure returns immediately without retrying, since
// only the orchestrator layer decides retry/skip/abort policy.
func (p *RotatingProvider) Complete(ctx context.Context, req llm.CompleteRequest) (llm.CompleteResponse, error) {
	var lastErr error
	result := fn.Retry(ctx, completeRetryOpts, func(ctx context.Context) fn.Result[llm.CompleteResponse] {
		resp, err := p.completeOnce(ctx, req)
		lastErr = err
		if err != nil && domain.Classify(err) == domain.FailureTransient {
			return fn.Err[llm.CompleteResponse](err)
		}
		return fn.Ok(resp)
	})
	resp, _ := result.Unwrap()
	return resp, lastErr
}

// completeOnce is a single lease-acquire/call/release attempt, the unit
// Complete retries.
func (p *RotatingProvider) completeOnce(ctx context.Context, req llm.CompleteRequest) (llm.CompleteResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return llm.CompleteResponse{}, err
	}

	estTokens := estimateTokens(req.SystemPrompt, req.UserPrompt) + int(req.MaxTokens)

	lease, err := p.rotator.Acquire(ctx, estTokens, maxCredentialWait)
	if err != nil {
		return llm.CompleteResponse{}, err
	}

	resp, callErr := p.providerFor(lease.CredentialKey).Complete(ctx, req)

	actualTokens := int(resp.InputTokens + resp.OutputTokens)
	if actualTokens == 0 {
		actualTokens = estTokens
	}

	switch {
	case callErr == nil:
		p.rotator.Release(lease, actualTokens, credential.ResultOK)
	case isRateLimit(callErr):
		p.rotator.Release(lease, actualTokens, credential.ResultRateLimited)
	default:
		p.rotator.Release(lease, actualTokens, credential.ResultError)
	}
	return resp, callErr
}

func isRateLimit(err error) bool {
	var rle *domain.RateLimitError
	return errors.As(err, &rle)
}
