package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

const indexJobMaxRetries = 3

// TranscriptService manages transcript records and their indexing
// lifecycle. Saving a transcript enqueues a background indexing job so the
// HTTP surface never blocks on embedding a long recording.
type TranscriptService struct {
	transcripts repositories.TranscriptRepository
	vectors     repositories.VectorRepository
	jobs        repositories.JobRepository
	logger      *log.Logger
}

// NewTranscriptService creates a new transcript service
func NewTranscriptService(
	transcripts repositories.TranscriptRepository,
	vectors repositories.VectorRepository,
	jobs repositories.JobRepository,
	logger *log.Logger,
) *TranscriptService {
	return &TranscriptService{
		transcripts: transcripts,
		vectors:     vectors,
		jobs:        jobs,
		logger:      logger,
	}
}

// SaveTranscript validates and persists a transcript, then enqueues an
// indexing job. A transcript that already existed is reindexed.
func (s *TranscriptService) SaveTranscript(ctx context.Context, transcript *models.Transcript) (*repositories.IndexJob, error) {
	if transcript.ID == "" {
		transcript.ID = uuid.New().String()
	}
	now := time.Now()
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = now
	}
	transcript.UpdatedAt = now

	if err := transcript.Validate(); err != nil {
		return nil, err
	}

	_, getErr := s.transcripts.Get(ctx, transcript.ID)
	existed := getErr == nil

	if err := s.transcripts.Save(ctx, transcript); err != nil {
		return nil, fmt.Errorf("failed to save transcript: %w", err)
	}

	job := &repositories.IndexJob{
		ID:           uuid.New().String(),
		TranscriptID: transcript.ID,
		Reindex:      existed,
		Status:       repositories.JobStatusPending,
		MaxRetries:   indexJobMaxRetries,
		CreatedAt:    now,
	}
	if err := s.jobs.EnqueueJob(ctx, job); err != nil {
		// The transcript is saved; indexing can be requested again later
		s.logger.Printf("Failed to enqueue indexing job for %s: %v", transcript.ID, err)
		return nil, fmt.Errorf("transcript saved but indexing could not be queued: %w", err)
	}

	s.logger.Printf("Transcript %s saved, indexing job %s queued (reindex: %v)", transcript.ID, job.ID, existed)
	return job, nil
}

// GetTranscript retrieves a transcript by id
func (s *TranscriptService) GetTranscript(ctx context.Context, transcriptID string) (*models.Transcript, error) {
	return s.transcripts.Get(ctx, transcriptID)
}

// ListProjectTranscripts lists a project's transcripts, newest first
func (s *TranscriptService) ListProjectTranscripts(ctx context.Context, projectID string) ([]*models.Transcript, error) {
	return s.transcripts.ListByProject(ctx, projectID)
}

// DeleteTranscript removes the transcript record and its indexed chunks
func (s *TranscriptService) DeleteTranscript(ctx context.Context, transcriptID string) error {
	deleted, err := s.vectors.DeleteTranscriptChunks(ctx, transcriptID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", transcriptID, err)
	}
	if err := s.transcripts.Delete(ctx, transcriptID); err != nil {
		return fmt.Errorf("failed to delete transcript %s: %w", transcriptID, err)
	}
	s.logger.Printf("Deleted transcript %s (%d chunks removed)", transcriptID, deleted)
	return nil
}

// RequestReindex enqueues a fresh indexing job for an existing transcript
func (s *TranscriptService) RequestReindex(ctx context.Context, transcriptID string) (*repositories.IndexJob, error) {
	if _, err := s.transcripts.Get(ctx, transcriptID); err != nil {
		return nil, err
	}

	job := &repositories.IndexJob{
		ID:           uuid.New().String(),
		TranscriptID: transcriptID,
		Reindex:      true,
		Status:       repositories.JobStatusPending,
		MaxRetries:   indexJobMaxRetries,
		CreatedAt:    time.Now(),
	}
	if err := s.jobs.EnqueueJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue reindex job: %w", err)
	}
	return job, nil
}

// GetIndexJob retrieves an indexing job by id
func (s *TranscriptService) GetIndexJob(ctx context.Context, jobID string) (*repositories.IndexJob, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// IndexQueueStats reports queue depth and chunk-store totals
func (s *TranscriptService) IndexQueueStats(ctx context.Context) (map[string]interface{}, error) {
	pending, err := s.jobs.QueueLength(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}
	stats, err := s.vectors.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector store stats: %w", err)
	}
	return map[string]interface{}{
		"pending_jobs":     pending,
		"chunk_count":      stats.ChunkCount,
		"transcript_count": stats.TranscriptCount,
	}, nil
}
