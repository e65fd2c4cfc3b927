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
	// LMStudioBaseURL is the default local model server endpoint
	LMStudioBaseURL = "http://localhost:1234/v1"
)

// LLMClientInterface defines the single request/response contract this
// engine needs from a language model server. No streaming.
type LLMClientInterface interface {
	// Generate runs one completion. SystemPrompt and Context are optional.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// ListModels returns the models currently loaded on the server.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// HealthCheck verifies the server is reachable with a model loaded.
	HealthCheck(ctx context.Context) error
}

// GenerateRequest represents one completion request
type GenerateRequest struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Message      string  `json:"message"`
	Context      string  `json:"context,omitempty"` // prepended to the user turn
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// GenerateResponse represents the model's reply
type GenerateResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	TotalTokens  int    `json:"total_tokens,omitempty"`
}

// ModelInfo describes one model reported by the server
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// chatCompletionRequest is the OpenAI-compatible request format spoken by
// LM Studio and Ollama's /v1 endpoint
type chatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []completionMessage  `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Stream      bool                 `json:"stream"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the OpenAI-compatible response format
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// LLMService talks to a local OpenAI-compatible model server
type LLMService struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewLLMService creates a new LLM service instance
func NewLLMService(baseURL, defaultModel string) *LLMService {
	if baseURL == "" {
		baseURL = LMStudioBaseURL
	}
	return &LLMService{
		baseURL: baseURL,
		model:   defaultModel,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // LLMs can be slow
		},
	}
}

// Generate runs one completion against the model server
func (s *LLMService) Generate(ctx context.Context, genReq *GenerateRequest) (*GenerateResponse, error) {
	model := genReq.Model
	if model == "" {
		model = s.model
	}
	temperature := genReq.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := genReq.MaxTokens
	if maxTokens == 0 {
		maxTokens = -1 // no limit
	}

	messages := make([]completionMessage, 0, 2)
	if genReq.SystemPrompt != "" {
		messages = append(messages, completionMessage{Role: "system", Content: genReq.SystemPrompt})
	}

	userContent := genReq.Message
	if genReq.Context != "" {
		userContent = genReq.Context + "\n\n" + genReq.Message
	}
	messages = append(messages, completionMessage{Role: "user", Content: userContent})

	reqBody := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to model server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, string(body))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response from model server")
	}

	return &GenerateResponse{
		Content:      completion.Choices[0].Message.Content,
		Model:        completion.Model,
		PromptTokens: completion.Usage.PromptTokens,
		TotalTokens:  completion.Usage.TotalTokens,
	}, nil
}

// ListModels returns the models currently loaded on the server
func (s *LLMService) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model server not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server returned status %d", resp.StatusCode)
	}

	var listResp struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}

	return listResp.Data, nil
}

// HealthCheck verifies the model server is running and has a model loaded
func (s *LLMService) HealthCheck(ctx context.Context) error {
	models, err := s.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return fmt.Errorf("model server has no models loaded")
	}
	return nil
}
