package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OllamaProvider embeds text via Ollama's HTTP /api/embeddings endpoint.
// Ollama has no native batch endpoint, so Embed issues one request per
// text; callers that need batching economics should prefer a provider that
// supports it natively and reserve this one for local/dev use.
type OllamaProvider struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

// NewOllamaProvider builds a provider bound to a running Ollama instance.
func NewOllamaProvider(baseURL, model string, dims int) *OllamaProvider {
	return &OllamaProvider{baseURL: baseURL, model: model, dims: dims, client: &http.Client{}}
}

func (c *OllamaProvider) Dimensions() int { return c.dims }

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (c *OllamaProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(ollamaEmbedReq{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: ollama: status %d", resp.StatusCode)
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding: ollama decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Embed embeds each text in texts, preserving order.
func (c *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding: batch item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func init() {
	Register("ollama", func(config map[string]any) (Provider, error) {
		baseURL, _ := config["base_url"].(string)
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model, _ := config["model"].(string)
		if model == "" {
			model = "nomic-embed-text"
		}
		dims := 768
		if d, ok := config["dimensions"].(int); ok && d > 0 {
			dims = d
		}
		return NewOllamaProvider(baseURL, model, dims), nil
	})
}
