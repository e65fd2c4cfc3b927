package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"transcript-chat/internal/models"
)

const (
	// Redis key prefixes
	chatHistoryKeyPrefix = "chat:history:"
	memoryKeyPrefix      = "chat:memory:"
)

// RedisConversationRepository implements ChatHistoryRepository and
// MemoryRepository using Redis. History lives in a list per conversation
// (RPUSH preserves append order), memory in a JSON value per conversation.
type RedisConversationRepository struct {
	client *redis.Client
}

// NewRedisConversationRepository creates a new Redis-based conversation repository
func NewRedisConversationRepository(client *redis.Client) *RedisConversationRepository {
	return &RedisConversationRepository{
		client: client,
	}
}

// AppendMessages appends messages to the conversation atomically
func (r *RedisConversationRepository) AppendMessages(ctx context.Context, conversationID string, messages ...*models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		msg.ConversationID = conversationID
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		if err := msg.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return NewChatRepositoryError("append_messages", conversationID, err, "failed to marshal message")
		}
		values = append(values, data)
	}

	// Single RPUSH keeps the user/assistant pair ordered and atomic
	key := chatHistoryKeyPrefix + conversationID
	if err := r.client.RPush(ctx, key, values...).Err(); err != nil {
		return NewChatRepositoryError("append_messages", conversationID, err, "")
	}

	return nil
}

// GetHistory returns the full ordered history for a conversation
func (r *RedisConversationRepository) GetHistory(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	key := chatHistoryKeyPrefix + conversationID

	raw, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, NewChatRepositoryError("get_history", conversationID, err, "")
	}

	history := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, NewChatRepositoryError("get_history", conversationID, err, "failed to unmarshal message")
		}
		history = append(history, msg)
	}

	return history, nil
}

// CountMessages returns the number of stored messages
func (r *RedisConversationRepository) CountMessages(ctx context.Context, conversationID string) (int, error) {
	key := chatHistoryKeyPrefix + conversationID

	count, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, NewChatRepositoryError("count_messages", conversationID, err, "")
	}

	return int(count), nil
}

// DeleteHistory removes the whole conversation
func (r *RedisConversationRepository) DeleteHistory(ctx context.Context, conversationID string) error {
	key := chatHistoryKeyPrefix + conversationID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return NewChatRepositoryError("delete_history", conversationID, err, "")
	}

	return nil
}

// SaveMemory persists conversation memory, overwriting any prior record
func (r *RedisConversationRepository) SaveMemory(ctx context.Context, memory *models.ConversationMemory) error {
	if memory.ConversationID == "" {
		return NewChatRepositoryError("save_memory", "", nil, "conversation ID is required")
	}

	data, err := json.Marshal(memory)
	if err != nil {
		return NewChatRepositoryError("save_memory", memory.ConversationID, err, "failed to marshal memory")
	}

	key := memoryKeyPrefix + memory.ConversationID
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return NewChatRepositoryError("save_memory", memory.ConversationID, err, "")
	}

	return nil
}

// GetMemory returns the stored memory for a conversation
func (r *RedisConversationRepository) GetMemory(ctx context.Context, conversationID string) (*models.ConversationMemory, error) {
	key := memoryKeyPrefix + conversationID

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, MemoryNotFoundError(conversationID)
	}
	if err != nil {
		return nil, NewChatRepositoryError("get_memory", conversationID, err, "")
	}

	var memory models.ConversationMemory
	if err := json.Unmarshal([]byte(data), &memory); err != nil {
		return nil, NewChatRepositoryError("get_memory", conversationID, err, "failed to unmarshal memory")
	}

	return &memory, nil
}

// DeleteMemory removes the stored memory for a conversation
func (r *RedisConversationRepository) DeleteMemory(ctx context.Context, conversationID string) error {
	key := memoryKeyPrefix + conversationID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return NewChatRepositoryError("delete_memory", conversationID, err, "")
	}

	return nil
}
