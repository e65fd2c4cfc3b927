package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-chat/internal/models"
)

func TestRedisSettingsRepository_SetGetDelete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSettingsRepository(client)
	ctx := context.Background()

	key := "srepo-test-chunking-method"
	defer repo.Delete(ctx, key)

	require.NoError(t, repo.Set(ctx, key, "hybrid"))

	value, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hybrid", value)

	// Overwrite wins.
	require.NoError(t, repo.Set(ctx, key, "speaker"))
	value, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "speaker", value)

	require.NoError(t, repo.Delete(ctx, key))
	_, err = repo.Get(ctx, key)
	assert.True(t, IsNotFound(err))
}

func TestRedisSettingsRepository_All(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSettingsRepository(client)
	ctx := context.Background()

	keys := map[string]string{
		"srepo-all-limit":     "5",
		"srepo-all-min-score": "0.35",
	}
	for k, v := range keys {
		require.NoError(t, repo.Set(ctx, k, v))
		defer repo.Delete(ctx, k)
	}

	all, err := repo.All(ctx)
	require.NoError(t, err)
	for k, v := range keys {
		assert.Equal(t, v, all[k])
	}
}

func TestRedisSettingsRepository_MetadataRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSettingsRepository(client)
	ctx := context.Background()

	metadata := &models.ModelMetadata{
		ModelName:    "srepo-test-model",
		ContextLimit: 32768,
		Parameters:   "7B",
		LastUpdated:  time.Now().UTC(),
		UserOverride: true,
		IsAvailable:  true,
		Source:       "user_override",
	}
	defer client.Del(ctx, "model:metadata:"+metadata.ModelName)

	require.NoError(t, repo.SaveMetadata(ctx, metadata))

	stored, err := repo.GetMetadata(ctx, metadata.ModelName)
	require.NoError(t, err)
	assert.Equal(t, 32768, stored.ContextLimit)
	assert.Equal(t, "7B", stored.Parameters)
	assert.True(t, stored.UserOverride)
	assert.Equal(t, "user_override", stored.Source)
}

func TestRedisSettingsRepository_GetMetadata_NotFound(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSettingsRepository(client)

	_, err := repo.GetMetadata(context.Background(), "srepo-no-such-model")
	assert.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRedisSettingsRepository_SaveMetadata_Validation(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSettingsRepository(client)

	err := repo.SaveMetadata(context.Background(), &models.ModelMetadata{ContextLimit: 4096})
	assert.Error(t, err, "metadata without a model name must be rejected")
}
