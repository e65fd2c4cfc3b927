package repositories

import (
	"context"

	"transcript-chat/internal/models"
)

// ChatHistoryRepository defines append-only persistence for conversation
// messages. Ordering is by append order and must be preserved on replay.
type ChatHistoryRepository interface {
	// AppendMessages appends messages to the conversation in order,
	// atomically.
	AppendMessages(ctx context.Context, conversationID string, messages ...*models.ChatMessage) error

	// GetHistory returns the full ordered history for a conversation.
	// A conversation with no messages returns an empty slice, not an error.
	GetHistory(ctx context.Context, conversationID string) ([]models.ChatMessage, error)

	// CountMessages returns the number of stored messages.
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// DeleteHistory removes the whole conversation.
	DeleteHistory(ctx context.Context, conversationID string) error
}

// MemoryRepository persists compacted conversation memory, keyed by
// conversation id. Writes overwrite the prior record: memory is a cache
// reconstructable from history plus the last summary.
type MemoryRepository interface {
	SaveMemory(ctx context.Context, memory *models.ConversationMemory) error

	// GetMemory returns the stored memory, or ErrMemoryNotFound.
	GetMemory(ctx context.Context, conversationID string) (*models.ConversationMemory, error)

	DeleteMemory(ctx context.Context, conversationID string) error
}

// TranscriptRepository persists transcripts and their segments
type TranscriptRepository interface {
	Save(ctx context.Context, transcript *models.Transcript) error

	// Get returns the transcript, or ErrTranscriptNotFound.
	Get(ctx context.Context, transcriptID string) (*models.Transcript, error)

	// ListByProject returns all transcripts for a project, newest first.
	ListByProject(ctx context.Context, projectID string) ([]*models.Transcript, error)

	Delete(ctx context.Context, transcriptID string) error
}

// ModelMetadataRepository persists resolved model metadata by model name
type ModelMetadataRepository interface {
	SaveMetadata(ctx context.Context, metadata *models.ModelMetadata) error

	// GetMetadata returns the stored record, or ErrModelMetadataNotFound.
	GetMetadata(ctx context.Context, modelName string) (*models.ModelMetadata, error)
}

// SettingsRepository provides the key/value settings rows backing ChatConfig
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	Delete(ctx context.Context, key string) error
}

// ChatRepositoryError represents errors from the conversation-side
// repositories
type ChatRepositoryError struct {
	Operation string
	Key       string
	Err       error
	Message   string
	NotFound  bool
}

func (e *ChatRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + " (" + e.Key + "): " + e.Err.Error()
	}
	return e.Operation + " (" + e.Key + "): unknown error"
}

func (e *ChatRepositoryError) Unwrap() error {
	return e.Err
}

// NewChatRepositoryError creates a new conversation repository error
func NewChatRepositoryError(operation, key string, err error, message string) *ChatRepositoryError {
	return &ChatRepositoryError{
		Operation: operation,
		Key:       key,
		Err:       err,
		Message:   message,
	}
}

// Not-found error constructors. Callers distinguish these from transport
// failures to decide between fallback and propagation.
func notFoundError(operation, key, message string) error {
	return &ChatRepositoryError{Operation: operation, Key: key, Message: message, NotFound: true}
}

func MemoryNotFoundError(conversationID string) error {
	return notFoundError("get_memory", conversationID, "memory not found: "+conversationID)
}

func TranscriptNotFoundError(transcriptID string) error {
	return notFoundError("get_transcript", transcriptID, "transcript not found: "+transcriptID)
}

func ModelMetadataNotFoundError(modelName string) error {
	return notFoundError("get_model_metadata", modelName, "model metadata not found: "+modelName)
}

func SettingNotFoundError(key string) error {
	return notFoundError("get_setting", key, "setting not found: "+key)
}

// IsNotFound reports whether err is one of the repository not-found errors
func IsNotFound(err error) bool {
	repoErr, ok := err.(*ChatRepositoryError)
	return ok && repoErr.NotFound
}
