package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-chat/internal/models"
)

func testMessage(conversationID string, role models.MessageRole, content string) *models.ChatMessage {
	return &models.ChatMessage{
		ID:             content + "-id",
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
}

func TestRedisConversationRepository_AppendAndGetHistory(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisConversationRepository(client)
	ctx := context.Background()

	conversationID := "crepo-history"
	defer repo.DeleteHistory(ctx, conversationID)

	require.NoError(t, repo.AppendMessages(ctx, conversationID,
		testMessage(conversationID, models.RoleUser, "what was decided about the budget"),
		testMessage(conversationID, models.RoleAssistant, "The budget was approved with a 10% cut."),
	))

	history, err := repo.GetHistory(ctx, conversationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.Equal(t, "what was decided about the budget", history[0].Content)

	count, err := repo.CountMessages(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRedisConversationRepository_GetHistory_Empty(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisConversationRepository(client)

	history, err := repo.GetHistory(context.Background(), "crepo-never-used")
	require.NoError(t, err)
	assert.Empty(t, history, "unknown conversation yields empty history, not an error")
}

func TestRedisConversationRepository_DeleteHistory(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisConversationRepository(client)
	ctx := context.Background()

	conversationID := "crepo-delete"
	require.NoError(t, repo.AppendMessages(ctx, conversationID,
		testMessage(conversationID, models.RoleUser, "hello"),
	))

	require.NoError(t, repo.DeleteHistory(ctx, conversationID))

	history, err := repo.GetHistory(ctx, conversationID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedisConversationRepository_MemoryRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisConversationRepository(client)
	ctx := context.Background()

	conversationID := "crepo-memory"
	defer repo.DeleteMemory(ctx, conversationID)

	now := time.Now().UTC()
	memory := &models.ConversationMemory{
		ConversationID:   conversationID,
		CompactedSummary: "Earlier the user asked about hiring and headcount.",
		ActiveMessages: []models.ChatMessage{
			*testMessage(conversationID, models.RoleUser, "and what about contractors"),
		},
		TotalExchanges:   7,
		LastCompactionAt: &now,
	}

	require.NoError(t, repo.SaveMemory(ctx, memory))

	stored, err := repo.GetMemory(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, memory.CompactedSummary, stored.CompactedSummary)
	assert.Equal(t, 7, stored.TotalExchanges)
	require.Len(t, stored.ActiveMessages, 1)
	assert.Equal(t, "and what about contractors", stored.ActiveMessages[0].Content)
	assert.True(t, stored.HasSummary())
}

func TestRedisConversationRepository_GetMemory_NotFound(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisConversationRepository(client)

	_, err := repo.GetMemory(context.Background(), "crepo-no-memory")
	assert.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRedisConversationRepository_DeleteMemory(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisConversationRepository(client)
	ctx := context.Background()

	conversationID := "crepo-memory-delete"
	memory := &models.ConversationMemory{
		ConversationID: conversationID,
		TotalExchanges: 1,
	}
	require.NoError(t, repo.SaveMemory(ctx, memory))
	require.NoError(t, repo.DeleteMemory(ctx, conversationID))

	_, err := repo.GetMemory(ctx, conversationID)
	assert.True(t, IsNotFound(err))
}
