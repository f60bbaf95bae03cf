// Package embedding provides the batching, caching embedding service used
// by the orchestrator to embed unit text and by cluster centroid search in
// post-processing (C9).
package embedding

import "context"

// Provider is the capability interface for an embedding backend. It embeds
// a batch of texts in one round trip; order of the returned slice matches
// the order of the input slice.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Factory builds a named Provider from providers.yaml configuration.
type Factory func(config map[string]any) (Provider, error)

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

func (e *UnknownProviderError) Error() string { return "embedding: unknown provider class " + e.Class }
