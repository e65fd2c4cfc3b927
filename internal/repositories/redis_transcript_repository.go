package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"transcript-chat/internal/models"
)

const (
	transcriptKeyPrefix   = "transcript:"
	projectIndexKeyPrefix = "project:transcripts:"
)

// RedisTranscriptRepository implements TranscriptRepository using Redis.
// Transcripts are JSON values; a set per project indexes membership.
type RedisTranscriptRepository struct {
	client *redis.Client
}

// NewRedisTranscriptRepository creates a new Redis-based transcript repository
func NewRedisTranscriptRepository(client *redis.Client) *RedisTranscriptRepository {
	return &RedisTranscriptRepository{
		client: client,
	}
}

// Save stores a transcript, overwriting any existing record
func (r *RedisTranscriptRepository) Save(ctx context.Context, transcript *models.Transcript) error {
	if err := transcript.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = now
	}
	transcript.UpdatedAt = now

	data, err := json.Marshal(transcript)
	if err != nil {
		return NewChatRepositoryError("save_transcript", transcript.ID, err, "failed to marshal transcript")
	}

	// Use transaction to keep the record and project index consistent
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, transcriptKeyPrefix+transcript.ID, data, 0)
	if transcript.ProjectID != "" {
		pipe.SAdd(ctx, projectIndexKeyPrefix+transcript.ProjectID, transcript.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return NewChatRepositoryError("save_transcript", transcript.ID, err, "failed to execute transaction")
	}

	return nil
}

// Get retrieves a transcript by ID
func (r *RedisTranscriptRepository) Get(ctx context.Context, transcriptID string) (*models.Transcript, error) {
	data, err := r.client.Get(ctx, transcriptKeyPrefix+transcriptID).Result()
	if err == redis.Nil {
		return nil, TranscriptNotFoundError(transcriptID)
	}
	if err != nil {
		return nil, NewChatRepositoryError("get_transcript", transcriptID, err, "")
	}

	var transcript models.Transcript
	if err := json.Unmarshal([]byte(data), &transcript); err != nil {
		return nil, NewChatRepositoryError("get_transcript", transcriptID, err, "failed to unmarshal transcript")
	}

	return &transcript, nil
}

// ListByProject returns all transcripts for a project, newest first
func (r *RedisTranscriptRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Transcript, error) {
	ids, err := r.client.SMembers(ctx, projectIndexKeyPrefix+projectID).Result()
	if err != nil {
		return nil, NewChatRepositoryError("list_project_transcripts", projectID, err, "")
	}

	transcripts := make([]*models.Transcript, 0, len(ids))
	for _, id := range ids {
		transcript, err := r.Get(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				// Stale index entry; skip it
				continue
			}
			return nil, err
		}
		transcripts = append(transcripts, transcript)
	}

	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].CreatedAt.After(transcripts[j].CreatedAt)
	})

	return transcripts, nil
}

// Delete removes a transcript and its project index entry
func (r *RedisTranscriptRepository) Delete(ctx context.Context, transcriptID string) error {
	transcript, err := r.Get(ctx, transcriptID)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, transcriptKeyPrefix+transcriptID)
	if transcript.ProjectID != "" {
		pipe.SRem(ctx, projectIndexKeyPrefix+transcript.ProjectID, transcriptID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return NewChatRepositoryError("delete_transcript", transcriptID, err, "failed to execute transaction")
	}

	return nil
}
