package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, orthogonal to message text (§7 of the design).
// The orchestrator is the only component that decides whether to retry,
// skip, or abort based on these; lower layers never apply policy.
var (
	ErrValidation        = errors.New("validation error")
	ErrTransientProvider = errors.New("transient provider error")
	ErrRateLimit         = errors.New("rate limit error")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrConstraintConflict = errors.New("constraint conflict")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrCancelled         = errors.New("cancelled")

	// ErrNoCredentialAvailable is returned by the Credential Rotator when
	// every credential is in cooldown past MAX_WAIT.
	ErrNoCredentialAvailable = errors.New("no credential available")
)

// ValidationError wraps ErrValidation with field-level context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return errors.Join(ErrValidation, e.Wrapped) }

// NewValidationError builds a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// TransientProviderError wraps a retryable provider failure (5xx, timeout,
// network). Retries with backoff and credential rotation are exhausted
// before this becomes Permanent from the orchestrator's point of view.
type TransientProviderError struct {
	Provider string
	Attempt  int
	Wrapped  error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider error: %s (provider=%s attempt=%d)", e.Wrapped, e.Provider, e.Attempt)
}

func (e *TransientProviderError) Unwrap() error { return errors.Join(ErrTransientProvider, e.Wrapped) }

// RateLimitError signals a 429 / provider quota hit on a specific credential.
type RateLimitError struct {
	CredentialHint string
	RetryAfter     string // provider-supplied hint, if any; empty if none
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit error: credential=%s retry_after=%s", e.CredentialHint, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimit }

// StorageUnavailableError signals the graph database is down or
// unauthenticated; the orchestrator circuit-breaks per podcast DB.
type StorageUnavailableError struct {
	PodcastID string
	Wrapped   error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: podcast=%s: %s", e.PodcastID, e.Wrapped)
}

func (e *StorageUnavailableError) Unwrap() error { return errors.Join(ErrStorageUnavailable, e.Wrapped) }

// ConstraintConflictError signals a duplicate-id race during concurrent
// upsert; retrying the transaction lets MERGE see the existing node.
type ConstraintConflictError struct {
	NodeLabel string
	ID        string
}

func (e *ConstraintConflictError) Error() string {
	return fmt.Sprintf("constraint conflict: %s.id=%s", e.NodeLabel, e.ID)
}

func (e *ConstraintConflictError) Unwrap() error { return ErrConstraintConflict }

// ResourceExhaustedError signals OOM, disk full, or similar; halts the
// affected stage and propagates as Fatal.
type ResourceExhaustedError struct {
	Resource string
	Detail   string
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("resource exhausted: %s: %s", e.Resource, e.Detail)
}

func (e *ResourceExhaustedError) Unwrap() error { return ErrResourceExhausted }

// CancelledError signals a timeout or orchestrator-initiated abort.
type CancelledError struct {
	Scope string // e.g. "episode:<id>", "stage:<name>", "task:<unitId>"
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled: %s", e.Scope)
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }

// FailureClass is the orchestrator's classification of a stage or task
// failure, per §4.8/§7.
type FailureClass string

const (
	FailureTransient FailureClass = "transient" // retry with backoff
	FailurePermanent FailureClass = "permanent" // skip unit, continue episode
	FailureFatal     FailureClass = "fatal"     // abort episode, mark failed
)

// Classify maps an error into a FailureClass using the sentinel kinds
// above. Unrecognised errors are treated as Permanent (fail closed on the
// unit, not the whole episode).
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientProvider), errors.Is(err, ErrRateLimit):
		return FailureTransient
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrResourceExhausted):
		return FailureFatal
	case errors.Is(err, ErrCancelled):
		return FailureFatal
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConstraintConflict):
		return FailurePermanent
	default:
		return FailurePermanent
	}
}
