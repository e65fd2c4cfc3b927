package models

import (
	"time"
)

// MessageRole identifies who produced a chat message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationMode selects the strategy used to answer a user message.
// Modeled as a typed enum so an unhandled mode is caught at the dispatch
// switch instead of at runtime string comparison.
type ConversationMode string

const (
	ModeVectorOnly ConversationMode = "vector-only"
	ModeRAG        ConversationMode = "rag"
	ModeDirectLLM  ConversationMode = "direct-llm"
)

// ParseConversationMode converts a stored setting value into a ConversationMode
func ParseConversationMode(s string) (ConversationMode, error) {
	switch ConversationMode(s) {
	case ModeVectorOnly, ModeRAG, ModeDirectLLM:
		return ConversationMode(s), nil
	}
	return "", &ValidationError{Field: "conversation_mode", Message: "unknown conversation mode: " + s}
}

// ChatMessage represents a single message in a conversation. History is
// append-only per conversation; ordering is by creation time.
type ChatMessage struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Role           MessageRole            `json:"role"`
	Content        string                 `json:"content"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks if the chat message is valid
func (m *ChatMessage) Validate() error {
	if m.ConversationID == "" {
		return &ValidationError{Field: "conversation_id", Message: "conversation ID is required"}
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return &ValidationError{Field: "role", Message: "role must be user or assistant"}
	}
	if m.Content == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	return nil
}

// ConversationMemory holds the rolling window of recent messages plus a
// compacted summary of everything older. It is a cache derived from the
// full history, invalidated by new messages and regenerated by compaction;
// the message history remains the source of truth.
type ConversationMemory struct {
	ConversationID   string        `json:"conversation_id"`
	ActiveMessages   []ChatMessage `json:"active_messages"`
	CompactedSummary string        `json:"compacted_summary,omitempty"`
	TotalExchanges   int           `json:"total_exchanges"`
	LastCompactionAt *time.Time    `json:"last_compaction_at,omitempty"`
}

// HasSummary reports whether a compaction has produced a summary.
func (m *ConversationMemory) HasSummary() bool {
	return m.CompactedSummary != ""
}
