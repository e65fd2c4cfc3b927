package models

import (
	"time"
)

// ModelCapabilities holds capability flags reported by (or inferred for) a
// language model
type ModelCapabilities struct {
	SupportsChat       bool `json:"supports_chat"`
	SupportsEmbeddings bool `json:"supports_embeddings"`
	SupportsVision     bool `json:"supports_vision,omitempty"`
}

// ModelMetadata describes a language model's context window and
// capabilities. Cached per model name with a TTL; when the live model
// service cannot be queried the metadata is inferred from family-name
// patterns and IsAvailable is false.
type ModelMetadata struct {
	ModelName    string            `json:"model_name"`
	ContextLimit int               `json:"context_limit"` // tokens
	Capabilities ModelCapabilities `json:"capabilities"`
	Parameters   string            `json:"parameters,omitempty"` // e.g. "7B"
	LastUpdated  time.Time         `json:"last_updated"`
	UserOverride bool              `json:"user_override"`
	IsAvailable  bool              `json:"is_available"`
	Source       string            `json:"source,omitempty"` // which resolver produced this record
}

// Validate checks if the model metadata is valid
func (m *ModelMetadata) Validate() error {
	if m.ModelName == "" {
		return &ValidationError{Field: "model_name", Message: "model name is required"}
	}
	if m.ContextLimit <= 0 {
		return &ValidationError{Field: "context_limit", Message: "context limit must be positive"}
	}
	return nil
}

// ModelContextBudget is the split of a model's token window into content
// and conversation-memory allowances. Pure function of ModelMetadata plus
// the configured safety-margin and memory-reserve fractions; recomputed on
// demand, never persisted.
type ModelContextBudget struct {
	TotalLimit      int `json:"total_limit"`
	SafetyMargin    int `json:"safety_margin"`
	MemoryReserve   int `json:"memory_reserve"`
	ContentBudget   int `json:"content_budget"`
	EstimatedTokens int `json:"estimated_tokens,omitempty"`
}
