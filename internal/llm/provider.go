// Package llm defines the Provider capability interface and a
// schema-validated JSON-call helper shared by the Conversation Structurer
// (C2) and Combined Extractor (C3). Concrete providers are adapters that
// translate a third-party SDK to this interface, per the "dynamic dispatch
// over providers" design note.
package llm

import "context"

// CompleteRequest carries everything a single LLM call needs. SystemPrompt
// is expected to be stable/content-addressed across calls of the same kind
// so provider-side context caching can apply.
type CompleteRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int64
}

// CompleteResponse is the raw text response plus accounting fields used by
// the Credential Rotator to update its token-usage windows.
type CompleteResponse struct {
	Text            string
	InputTokens     int64
	OutputTokens    int64
}

// Provider is the capability interface for any LLM backend. Concrete
// adapters (anthropic.go) implement this against a real SDK; tests use an
// in-memory fake.
type Provider interface {
	Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error)
}

// Factory builds a named Provider instance from providers.yaml configuration
// (type+name keyed), per the design note on dynamic dispatch.
type Factory func(config map[string]any) (Provider, error)

// registry of known provider constructors, keyed by "class" from providers.yaml.
var registry = map[string]Factory{}

// Register adds a provider constructor under the given class name.
func Register(class string, f Factory) {
	registry[class] = f
}

// Build constructs a Provider for the given class using its config map.
func Build(class string, config map[string]any) (Provider, error) {
	f, ok := registry[class]
	if !ok {
		return nil, &UnknownProviderError{Class: class}
	}
	return f(config)
}

// UnknownProviderError is returned by Build for an unregistered class.
type UnknownProviderError struct{ Class string }

func (e *UnknownProviderError) Error() string { return "llm: unknown provider class " + e.Class }
