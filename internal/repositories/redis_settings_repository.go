package repositories

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"transcript-chat/internal/models"
)

const (
	settingsKey          = "app:settings"
	modelMetadataPrefix  = "model:metadata:"
)

// RedisSettingsRepository implements SettingsRepository and
// ModelMetadataRepository using Redis. Settings live in a single hash so
// config loads are one round trip; model metadata is a JSON value per name.
type RedisSettingsRepository struct {
	client *redis.Client
}

// NewRedisSettingsRepository creates a new Redis-based settings repository
func NewRedisSettingsRepository(client *redis.Client) *RedisSettingsRepository {
	return &RedisSettingsRepository{
		client: client,
	}
}

// Get retrieves a single setting value by key
func (r *RedisSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.HGet(ctx, settingsKey, key).Result()
	if err == redis.Nil {
		return "", SettingNotFoundError(key)
	}
	if err != nil {
		return "", NewChatRepositoryError("get_setting", key, err, "")
	}
	return value, nil
}

// Set stores a single setting value
func (r *RedisSettingsRepository) Set(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, settingsKey, key, value).Err(); err != nil {
		return NewChatRepositoryError("set_setting", key, err, "")
	}
	return nil
}

// All returns every stored setting
func (r *RedisSettingsRepository) All(ctx context.Context) (map[string]string, error) {
	settings, err := r.client.HGetAll(ctx, settingsKey).Result()
	if err != nil {
		return nil, NewChatRepositoryError("all_settings", settingsKey, err, "")
	}
	return settings, nil
}

// Delete removes a setting
func (r *RedisSettingsRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, settingsKey, key).Err(); err != nil {
		return NewChatRepositoryError("delete_setting", key, err, "")
	}
	return nil
}

// SaveMetadata persists model metadata, overwriting any prior record
func (r *RedisSettingsRepository) SaveMetadata(ctx context.Context, metadata *models.ModelMetadata) error {
	if err := metadata.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return NewChatRepositoryError("save_model_metadata", metadata.ModelName, err, "failed to marshal metadata")
	}

	key := modelMetadataPrefix + metadata.ModelName
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return NewChatRepositoryError("save_model_metadata", metadata.ModelName, err, "")
	}

	return nil
}

// GetMetadata retrieves stored model metadata by model name
func (r *RedisSettingsRepository) GetMetadata(ctx context.Context, modelName string) (*models.ModelMetadata, error) {
	key := modelMetadataPrefix + modelName

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ModelMetadataNotFoundError(modelName)
	}
	if err != nil {
		return nil, NewChatRepositoryError("get_model_metadata", modelName, err, "")
	}

	var metadata models.ModelMetadata
	if err := json.Unmarshal([]byte(data), &metadata); err != nil {
		return nil, NewChatRepositoryError("get_model_metadata", modelName, err, "failed to unmarshal metadata")
	}

	return &metadata, nil
}
