package workers

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Worker is a background job processor with a lifecycle and stats. The
// indexing worker is the one production implementation; the pool manages
// workers through this interface.
type Worker interface {
	// Start begins draining jobs. It returns once the worker's
	// goroutines are launched.
	Start(ctx context.Context) error

	// Stop shuts the worker down, waiting out the shutdown timeout
	Stop(ctx context.Context) error

	// Name returns the worker's unique name
	Name() string

	// IsRunning reports whether the worker is draining jobs
	IsRunning() bool

	// Stats returns a snapshot of the worker's counters
	Stats() WorkerStats
}

// WorkerStats is the stats snapshot exposed on the indexing stats
// endpoint alongside queue depth
type WorkerStats struct {
	WorkerName         string        `json:"worker_name"`
	JobsProcessed      int64         `json:"jobs_processed"`
	JobsSucceeded      int64         `json:"jobs_succeeded"`
	JobsFailed         int64         `json:"jobs_failed"`
	AverageProcessTime time.Duration `json:"average_process_time"`
	LastJobTime        time.Time     `json:"last_job_time,omitempty"`
	Uptime             time.Duration `json:"uptime"`
	IsRunning          bool          `json:"is_running"`
}

// WorkerConfig holds the knobs shared by all workers
type WorkerConfig struct {
	// WorkerName is a unique identifier for this worker instance
	WorkerName string

	// Concurrency is the number of polling goroutines to run
	Concurrency int

	// PollInterval is how often each goroutine checks the queue
	PollInterval time.Duration

	// ShutdownTimeout is how long Stop waits for in-flight jobs
	ShutdownTimeout time.Duration

	// RetryDelay is the pause before a failed job is handed back to
	// the queue for requeue accounting
	RetryDelay time.Duration

	// EnableRecovery turns panics during a job into job failures
	// instead of crashing the worker
	EnableRecovery bool
}

// DefaultWorkerConfig returns the worker knobs used in production
func DefaultWorkerConfig(workerName string) WorkerConfig {
	return WorkerConfig{
		WorkerName:      workerName,
		Concurrency:     3,
		PollInterval:    2 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RetryDelay:      5 * time.Second,
		EnableRecovery:  true,
	}
}

// BaseWorker carries the lifecycle flag and job counters so concrete
// workers only implement the drain loop
type BaseWorker struct {
	config  WorkerConfig
	running bool
	mu      sync.RWMutex

	jobsProcessed    int64
	jobsSucceeded    int64
	jobsFailed       int64
	totalProcessTime time.Duration
	startTime        time.Time
	lastJobTime      time.Time
	statsMu          sync.RWMutex
}

// NewBaseWorker creates the embedded base for a concrete worker
func NewBaseWorker(config WorkerConfig) *BaseWorker {
	return &BaseWorker{
		config: config,
	}
}

// Name returns the worker's unique name
func (w *BaseWorker) Name() string {
	return w.config.WorkerName
}

// IsRunning reports whether the worker is draining jobs
func (w *BaseWorker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *BaseWorker) setRunning(running bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = running
	if running {
		w.startTime = time.Now()
	}
}

// Stats returns a snapshot of the worker's counters
func (w *BaseWorker) Stats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	var avgProcessTime time.Duration
	if w.jobsProcessed > 0 {
		avgProcessTime = w.totalProcessTime / time.Duration(w.jobsProcessed)
	}

	var uptime time.Duration
	if !w.startTime.IsZero() {
		uptime = time.Since(w.startTime)
	}

	return WorkerStats{
		WorkerName:         w.config.WorkerName,
		JobsProcessed:      w.jobsProcessed,
		JobsSucceeded:      w.jobsSucceeded,
		JobsFailed:         w.jobsFailed,
		AverageProcessTime: avgProcessTime,
		LastJobTime:        w.lastJobTime,
		Uptime:             uptime,
		IsRunning:          w.IsRunning(),
	}
}

// recordJobStart marks the start of one job for duration tracking
func (w *BaseWorker) recordJobStart() time.Time {
	return time.Now()
}

func (w *BaseWorker) recordJobSuccess(startTime time.Time) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	duration := time.Since(startTime)
	w.jobsProcessed++
	w.jobsSucceeded++
	w.totalProcessTime += duration
	w.lastJobTime = time.Now()
}

func (w *BaseWorker) recordJobFailure(startTime time.Time) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	duration := time.Since(startTime)
	w.jobsProcessed++
	w.jobsFailed++
	w.totalProcessTime += duration
	w.lastJobTime = time.Now()
}

// WorkerPool holds the server's background workers so they start and
// stop together and report stats as one group
type WorkerPool struct {
	workers []Worker
	mu      sync.RWMutex
}

// NewWorkerPool creates an empty pool
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{
		workers: make([]Worker, 0),
	}
}

// AddWorker registers a worker with the pool
func (p *WorkerPool) AddWorker(worker Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = append(p.workers, worker)
}

// StartAll starts every worker, stopping at the first failure
func (p *WorkerPool) StartAll(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, worker := range p.workers {
		if err := worker.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every worker concurrently and joins their errors
func (p *WorkerPool) StopAll(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errs []error

	for _, worker := range p.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			if err := w.Stop(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(worker)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// GetAllStats returns one stats snapshot per registered worker
func (p *WorkerPool) GetAllStats() []WorkerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := make([]WorkerStats, 0, len(p.workers))
	for _, worker := range p.workers {
		stats = append(stats, worker.Stats())
	}
	return stats
}

// Count returns the number of registered workers
func (p *WorkerPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// Logger is the leveled logging interface workers log through
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// DefaultLogger logs through the standard logger with level prefixes
type DefaultLogger struct{}

func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	log.Printf("[INFO] "+msg, args...)
}

func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	log.Printf("[ERROR] "+msg, args...)
}

func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	log.Printf("[WARN] "+msg, args...)
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	log.Printf("[DEBUG] "+msg, args...)
}

// WorkerError is a lifecycle or processing error attributed to one worker
type WorkerError struct {
	WorkerName string
	Operation  string
	Err        error
	Message    string
}

func (e *WorkerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.WorkerName + ":" + e.Operation
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// NewWorkerError creates a new worker error
func NewWorkerError(workerName, operation string, err error, message string) *WorkerError {
	return &WorkerError{
		WorkerName: workerName,
		Operation:  operation,
		Err:        err,
		Message:    message,
	}
}

// WorkerPanicError wraps a panic recovered during job processing so it
// can be recorded as an ordinary job failure
type WorkerPanicError struct {
	Panic interface{}
}

func (e *WorkerPanicError) Error() string {
	return "worker panic: " + formatPanic(e.Panic)
}

func formatPanic(p interface{}) string {
	switch v := p.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return "unknown panic"
	}
}
