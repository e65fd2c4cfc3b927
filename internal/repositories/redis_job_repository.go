package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes for indexing jobs
	jobKeyPrefix    = "index:job:"
	jobQueueKey     = "index:jobs:pending"
	jobStatusPrefix = "index:jobs:status:"
)

// RedisJobRepository implements JobRepository using Redis. The pending
// queue is a list (LPOP claims the oldest job atomically); job records are
// JSON values with status index sets.
type RedisJobRepository struct {
	client *redis.Client
}

// NewRedisJobRepository creates a new Redis-based job repository
func NewRedisJobRepository(client *redis.Client) *RedisJobRepository {
	return &RedisJobRepository{
		client: client,
	}
}

// EnqueueJob creates the job record and pushes it onto the pending queue
func (r *RedisJobRepository) EnqueueJob(ctx context.Context, job *IndexJob) error {
	if err := job.Validate(); err != nil {
		return err
	}

	job.Status = JobStatusPending
	job.CreatedAt = time.Now()
	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}

	pipe := r.client.TxPipeline()
	if err := r.writeJob(ctx, pipe, job); err != nil {
		return err
	}
	pipe.RPush(ctx, jobQueueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return NewChatRepositoryError("enqueue_job", job.ID, err, "failed to execute transaction")
	}

	return nil
}

// DequeueJob pops the oldest pending job and marks it processing
func (r *RedisJobRepository) DequeueJob(ctx context.Context, workerID string) (*IndexJob, error) {
	jobID, err := r.client.LPop(ctx, jobQueueKey).Result()
	if err == redis.Nil {
		return nil, nil // queue empty
	}
	if err != nil {
		return nil, NewChatRepositoryError("dequeue_job", jobQueueKey, err, "")
	}

	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job.Status = JobStatusProcessing
	job.StartedAt = &now
	job.WorkerID = workerID

	if err := r.updateJob(ctx, job, JobStatusPending); err != nil {
		return nil, err
	}

	return job, nil
}

// CompleteJob marks a job finished with its result
func (r *RedisJobRepository) CompleteJob(ctx context.Context, jobID string, result *IndexJobResult) error {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	prev := job.Status
	job.Status = JobStatusCompleted
	job.CompletedAt = &now
	job.Result = result
	job.Error = ""

	return r.updateJob(ctx, job, prev)
}

// FailJob records a failure, requeueing when retries remain
func (r *RedisJobRepository) FailJob(ctx context.Context, jobID string, jobErr error) (bool, error) {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	prev := job.Status
	job.Error = jobErr.Error()
	job.RetryCount++

	requeue := job.RetryCount <= job.MaxRetries
	if requeue {
		job.Status = JobStatusPending
		job.WorkerID = ""
		job.StartedAt = nil
	} else {
		now := time.Now()
		job.Status = JobStatusFailed
		job.CompletedAt = &now
	}

	if err := r.updateJob(ctx, job, prev); err != nil {
		return false, err
	}

	if requeue {
		if err := r.client.RPush(ctx, jobQueueKey, job.ID).Err(); err != nil {
			return false, NewChatRepositoryError("fail_job", jobID, err, "failed to requeue")
		}
	}

	return requeue, nil
}

// GetJob retrieves a job by ID
func (r *RedisJobRepository) GetJob(ctx context.Context, jobID string) (*IndexJob, error) {
	data, err := r.client.Get(ctx, jobKeyPrefix+jobID).Result()
	if err == redis.Nil {
		return nil, notFoundError("get_job", jobID, "job not found: "+jobID)
	}
	if err != nil {
		return nil, NewChatRepositoryError("get_job", jobID, err, "")
	}

	var job IndexJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, NewChatRepositoryError("get_job", jobID, err, "failed to unmarshal job")
	}

	return &job, nil
}

// ListJobsByStatus lists jobs in a given status, newest first
func (r *RedisJobRepository) ListJobsByStatus(ctx context.Context, status JobStatus) ([]*IndexJob, error) {
	ids, err := r.client.SMembers(ctx, jobStatusPrefix+string(status)).Result()
	if err != nil {
		return nil, NewChatRepositoryError("list_jobs", string(status), err, "")
	}

	jobs := make([]*IndexJob, 0, len(ids))
	for _, id := range ids {
		job, err := r.GetJob(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs, nil
}

// QueueLength returns the number of pending jobs
func (r *RedisJobRepository) QueueLength(ctx context.Context) (int, error) {
	length, err := r.client.LLen(ctx, jobQueueKey).Result()
	if err != nil {
		return 0, NewChatRepositoryError("queue_length", jobQueueKey, err, "")
	}
	return int(length), nil
}

// writeJob serializes the job and stages the record plus status index
// writes onto the pipeline
func (r *RedisJobRepository) writeJob(ctx context.Context, pipe redis.Pipeliner, job *IndexJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return NewChatRepositoryError("write_job", job.ID, err, "failed to marshal job")
	}
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, 0)
	pipe.SAdd(ctx, jobStatusPrefix+string(job.Status), job.ID)
	return nil
}

// updateJob rewrites a job record, moving it between status index sets
func (r *RedisJobRepository) updateJob(ctx context.Context, job *IndexJob, prevStatus JobStatus) error {
	pipe := r.client.TxPipeline()
	if prevStatus != job.Status {
		pipe.SRem(ctx, jobStatusPrefix+string(prevStatus), job.ID)
	}
	if err := r.writeJob(ctx, pipe, job); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return NewChatRepositoryError("update_job", job.ID, err, "failed to execute transaction")
	}
	return nil
}
