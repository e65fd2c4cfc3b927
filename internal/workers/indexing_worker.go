package workers

import (
	"context"
	"fmt"
	"time"

	"transcript-chat/internal/repositories"
	"transcript-chat/internal/services"
)

// IndexingWorker drains the transcript-indexing queue: each job is
// chunked, embedded and written to the vector store by the indexing
// service
type IndexingWorker struct {
	*BaseWorker
	jobRepo  repositories.JobRepository
	indexing *services.IndexingService
	logger   Logger
}

// IndexingWorkerConfig holds configuration for the indexing worker
type IndexingWorkerConfig struct {
	WorkerConfig WorkerConfig
	JobRepo      repositories.JobRepository
	Indexing     *services.IndexingService
	Logger       Logger
}

// NewIndexingWorker creates a new indexing worker
func NewIndexingWorker(config IndexingWorkerConfig) *IndexingWorker {
	logger := config.Logger
	if logger == nil {
		logger = &DefaultLogger{}
	}
	return &IndexingWorker{
		BaseWorker: NewBaseWorker(config.WorkerConfig),
		jobRepo:    config.JobRepo,
		indexing:   config.Indexing,
		logger:     logger,
	}
}

// Start begins processing indexing jobs
func (w *IndexingWorker) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	w.setRunning(true)
	w.logger.Info("Starting indexing worker: %s", w.Name())

	for i := 0; i < w.config.Concurrency; i++ {
		go w.processJobs(ctx, i)
	}
	return nil
}

// Stop gracefully shuts down the worker
func (w *IndexingWorker) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}

	w.logger.Info("Stopping indexing worker: %s", w.Name())

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()
	<-shutdownCtx.Done()

	w.setRunning(false)
	w.logger.Info("Indexing worker stopped: %s", w.Name())
	return nil
}

// processJobs polls the queue until the context is cancelled
func (w *IndexingWorker) processJobs(ctx context.Context, workerID int) {
	workerName := fmt.Sprintf("%s-goroutine-%d", w.Name(), workerID)
	w.logger.Info("Worker goroutine started: %s", workerName)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping: %s", workerName)
			return

		case <-ticker.C:
			if !w.IsRunning() {
				return
			}

			job, err := w.jobRepo.DequeueJob(ctx, workerName)
			if err != nil {
				w.logger.Error("Failed to dequeue job: %v", err)
				continue
			}
			if job == nil {
				continue
			}

			w.processJob(ctx, job)
		}
	}
}

// processJob runs one indexing job and records the outcome
func (w *IndexingWorker) processJob(ctx context.Context, job *repositories.IndexJob) {
	startTime := w.recordJobStart()
	w.logger.Info("Processing indexing job: %s (transcript: %s, reindex: %v)", job.ID, job.TranscriptID, job.Reindex)

	var err error
	var result *services.IndexingResult
	if w.config.EnableRecovery {
		result, err = w.indexWithRecovery(ctx, job)
	} else {
		result, err = w.indexing.IndexTranscript(ctx, job.TranscriptID, job.Reindex)
	}

	if err != nil {
		w.handleJobFailure(ctx, job, err, startTime)
		return
	}
	w.handleJobSuccess(ctx, job, result, startTime)
}

func (w *IndexingWorker) indexWithRecovery(ctx context.Context, job *repositories.IndexJob) (result *services.IndexingResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerPanicError{Panic: r}
			w.logger.Error("Panic while indexing %s: %v", job.TranscriptID, r)
		}
	}()
	return w.indexing.IndexTranscript(ctx, job.TranscriptID, job.Reindex)
}

func (w *IndexingWorker) handleJobSuccess(ctx context.Context, job *repositories.IndexJob, result *services.IndexingResult, startTime time.Time) {
	w.recordJobSuccess(startTime)

	jobResult := &repositories.IndexJobResult{
		ChunkCount:     result.ChunkCount,
		DeletedChunks:  result.DeletedChunks,
		ProcessingTime: float64(time.Since(startTime).Milliseconds()),
	}
	if err := w.jobRepo.CompleteJob(ctx, job.ID, jobResult); err != nil {
		w.logger.Error("Failed to mark job completed: %v", err)
	}

	w.logger.Info("Indexing job completed: %s (%d chunks, %v)", job.ID, result.ChunkCount, time.Since(startTime))
}

func (w *IndexingWorker) handleJobFailure(ctx context.Context, job *repositories.IndexJob, jobErr error, startTime time.Time) {
	w.recordJobFailure(startTime)

	// FailJob re-enqueues while retries remain; give transient upstream
	// failures a moment before the queue hands the job back out
	time.Sleep(w.config.RetryDelay)
	requeued, err := w.jobRepo.FailJob(ctx, job.ID, jobErr)
	if err != nil {
		w.logger.Error("Failed to record job failure for %s: %v", job.ID, err)
		return
	}
	if requeued {
		w.logger.Warn("Indexing job failed, requeued: %s - %v", job.ID, jobErr)
	} else {
		w.logger.Error("Indexing job failed permanently: %s - %v", job.ID, jobErr)
	}
}
