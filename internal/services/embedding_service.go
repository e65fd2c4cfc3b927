package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// OllamaBaseURL is the default local embedding endpoint
	OllamaBaseURL = "http://localhost:11434"

	// DefaultEmbeddingDimension is the output dimensionality of the
	// default embedding model. Constant per deployment.
	DefaultEmbeddingDimension = 384
)

// EmbeddingClientInterface defines the embedding provider contract
type EmbeddingClientInterface interface {
	// Embed computes the embedding vector for one text.
	Embed(ctx context.Context, text string) (*EmbeddingResponse, error)

	// EmbedBatch computes embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// HealthCheck verifies the embedding backend is reachable.
	HealthCheck(ctx context.Context) error
}

// EmbeddingResponse represents one computed embedding
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model"`
}

// OllamaEmbeddingClient computes embeddings via a local Ollama server
type OllamaEmbeddingClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	retries    int
}

// NewOllamaEmbeddingClient creates a new embedding client with default settings
func NewOllamaEmbeddingClient(baseURL, model string) *OllamaEmbeddingClient {
	if baseURL == "" {
		baseURL = OllamaBaseURL
	}
	return &OllamaEmbeddingClient{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retries: 3,
	}
}

// Embed computes the embedding vector for one text
func (c *OllamaEmbeddingClient) Embed(ctx context.Context, text string) (*EmbeddingResponse, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	payload := map[string]string{
		"model":  c.model,
		"prompt": text,
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.doRequest(ctx, "/api/embeddings", payload, &result); err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embedding backend returned empty vector")
	}

	return &EmbeddingResponse{
		Embedding: result.Embedding,
		Dimension: len(result.Embedding),
		Model:     c.model,
	}, nil
}

// EmbedBatch computes embeddings for multiple texts, preserving order.
// Ollama's embeddings endpoint is single-text, so the batch is sequential;
// the caller sees one call either way.
func (c *OllamaEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		resp, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		embeddings[i] = resp.Embedding
	}
	return embeddings, nil
}

// HealthCheck verifies the embedding backend is reachable
func (c *OllamaEmbeddingClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding backend not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding backend returned status %d", resp.StatusCode)
	}

	return nil
}

// doRequest posts JSON and decodes the JSON response, retrying on
// transport errors
func (c *OllamaEmbeddingClient) doRequest(ctx context.Context, path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
			// Client errors won't improve on retry
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return lastErr
			}
			continue
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.retries+1, lastErr)
}
