package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/podknow/seeder/internal/domain"
)

// AnthropicProvider adapts the anthropic-sdk-go client to Provider. One
// instance is bound to a single credential; the Credential Rotator owns the
// pool of these and decides which one to use per call.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider builds a provider bound to apiKey. An empty apiKey
// falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	if apiKey == "" {
		return &AnthropicProvider{client: anthropic.NewClient()}
	}
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	})
	if err != nil {
		return CompleteResponse{}, classifyAnthropicErr(err)
	}

	return CompleteResponse{
		Text:         extractText(msg),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}

// classifyAnthropicErr maps the SDK's status-coded errors onto the
// sentinel error kinds the orchestrator dispatches on: 429 becomes a rate
// limit (credential should cool down), 5xx and network errors are
// transient (retry with backoff), everything else is a validation error
// (the request itself was malformed, retrying won't help).
func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &domain.RateLimitError{CredentialHint: "", RetryAfter: apiErr.Response.Header.Get("retry-after")}
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return &domain.TransientProviderError{Provider: "anthropic", Wrapped: err}
		}
		return domain.NewValidationError("anthropic_request", "", err)
	}
	return &domain.TransientProviderError{Provider: "anthropic", Wrapped: err}
}

func init() {
	Register("anthropic", func(config map[string]any) (Provider, error) {
		apiKey, _ := config["api_key"].(string)
		return NewAnthropicProvider(apiKey), nil
	})
}
