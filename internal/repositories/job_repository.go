package repositories

import (
	"context"
	"time"
)

// JobRepository defines the queue for background transcript-indexing work.
// Indexing (chunk, embed, store) can take a while for long recordings, so
// the HTTP surface enqueues and a worker drains.
type JobRepository interface {
	// EnqueueJob creates the job record and pushes it onto the pending queue.
	EnqueueJob(ctx context.Context, job *IndexJob) error

	// DequeueJob pops the oldest pending job, marking it processing.
	// Returns nil when the queue is empty.
	DequeueJob(ctx context.Context, workerID string) (*IndexJob, error)

	// CompleteJob marks a job finished with its result.
	CompleteJob(ctx context.Context, jobID string, result *IndexJobResult) error

	// FailJob records a failure. Jobs with retries remaining go back on
	// the queue; exhausted jobs stay failed.
	FailJob(ctx context.Context, jobID string, jobErr error) (requeued bool, err error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*IndexJob, error)

	// ListJobsByStatus lists jobs in a given status, newest first.
	ListJobsByStatus(ctx context.Context, status JobStatus) ([]*IndexJob, error)

	// QueueLength returns the number of pending jobs.
	QueueLength(ctx context.Context) (int, error)
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IndexJob represents one transcript-indexing request
type IndexJob struct {
	ID           string     `json:"id"`
	TranscriptID string     `json:"transcript_id"`
	Reindex      bool       `json:"reindex"` // delete existing chunks first
	Status       JobStatus  `json:"status"`
	Error        string     `json:"error,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	WorkerID     string     `json:"worker_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	Result *IndexJobResult `json:"result,omitempty"`
}

// IndexJobResult represents the outcome of a completed indexing job
type IndexJobResult struct {
	ChunkCount     int     `json:"chunk_count"`
	DeletedChunks  int     `json:"deleted_chunks,omitempty"`
	EmbeddingDims  int     `json:"embedding_dims,omitempty"`
	ProcessingTime float64 `json:"processing_time_ms"`
}

// Validate checks if the job is valid
func (j *IndexJob) Validate() error {
	if j.ID == "" {
		return NewChatRepositoryError("validate_job", "", nil, "job ID is required")
	}
	if j.TranscriptID == "" {
		return NewChatRepositoryError("validate_job", j.ID, nil, "transcript ID is required")
	}
	return nil
}
