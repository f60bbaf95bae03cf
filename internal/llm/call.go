package llm

import (
	"context"
	"fmt"

	"github.com/podknow/seeder/internal/domain"
)

// CallJSONOptions configures CallJSON.
type CallJSONOptions struct {
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int64
}

// CallJSON makes one structured completion call and decodes the response
// into out. If the first response fails to decode, it retries exactly once
// with a repair prompt appended that echoes the parse error back to the
// model, mirroring the scratchpad/fence/object-extraction repair path of
// script.parseScript. It does not itself retry on transport errors; that
// policy belongs to the caller (the Credential Rotator governs backoff and
// rotation across credentials, not this helper).
func CallJSON(ctx context.Context, p Provider, userPrompt string, opts CallJSONOptions, out any) (CompleteResponse, error) {
	req := CompleteRequest{
		Model:        opts.Model,
		SystemPrompt: opts.SystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
	}

	resp, err := p.Complete(ctx, req)
	if err != nil {
		return resp, domain.NewValidationError("llm_call", "", err)
	}
	if resp.Text == "" {
		return resp, &EmptyResponseError{}
	}

	firstErr := DecodeJSON(resp.Text, out)
	if firstErr == nil {
		return resp, nil
	}

	repairPrompt := fmt.Sprintf("%s\n\nYour previous response could not be parsed as JSON: %s\n\nReturn ONLY the corrected JSON object, no markdown fences, no commentary.", userPrompt, firstErr)
	req.UserPrompt = repairPrompt

	resp2, err := p.Complete(ctx, req)
	if err != nil {
		return resp2, domain.NewValidationError("llm_call_repair", "", err)
	}
	if err := DecodeJSON(resp2.Text, out); err != nil {
		return resp2, domain.NewValidationError("llm_response_json", truncate(resp2.Text, 200), err)
	}
	return resp2, nil
}

// EmptyResponseError signals the provider returned no text content at all.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string { return "llm: empty response" }
