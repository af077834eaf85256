package jobs

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/logger"
	"github.com/vocalfuse/backend/internal/metrics"
)

const (
	// Default configuration values
	DefaultWorkerCount = 3
	DefaultMaxRetries  = 3
	DefaultJobTimeout  = 30 * time.Minute

	// Exponential backoff parameters
	baseBackoff = 1 * time.Second
	maxBackoff  = 5 * time.Minute
)

// JobProcessor runs one job through the pipeline. It reports progress via
// the queue itself; a returned error fails the attempt.
type JobProcessor func(ctx context.Context, job *Job) error

// TerminalFunc is invoked once a job reaches done or failed and will not
// be requeued. Used for webhook delivery.
type TerminalFunc func(ctx context.Context, job *Job)

// WorkerPool manages a pool of workers that process dubbing jobs
type WorkerPool struct {
	queue       *Queue
	workerCount int
	maxRetries  int
	jobTimeout  time.Duration
	processor   JobProcessor
	onTerminal  TerminalFunc
	log         *logger.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	mu       sync.RWMutex
	running  bool
}

// WorkerPoolConfig holds configuration for the worker pool
type WorkerPoolConfig struct {
	WorkerCount int
	MaxRetries  int
	JobTimeout  time.Duration
	OnTerminal  TerminalFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *Queue, processor JobProcessor, config *WorkerPoolConfig) *WorkerPool {
	if config == nil {
		config = &WorkerPoolConfig{}
	}

	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}

	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	jobTimeout := config.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	return &WorkerPool{
		queue:       queue,
		workerCount: workerCount,
		maxRetries:  maxRetries,
		jobTimeout:  jobTimeout,
		processor:   processor,
		onTerminal:  config.OnTerminal,
		log:         logger.Default().WithComponent("worker"),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the worker pool
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return
	}

	wp.running = true
	wp.stopChan = make(chan struct{})

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.log.Info(context.Background(), "worker pool started", map[string]interface{}{
		"workers": wp.workerCount,
	})
}

// Stop gracefully stops the worker pool, waiting for current jobs to complete
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return nil
	}
	wp.running = false
	close(wp.stopChan)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.log.Info(ctx, "worker pool stopped")
		return nil
	case <-ctx.Done():
		wp.log.Warn(ctx, "worker pool shutdown timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the worker pool is currently running
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

// worker is the main loop for a single worker
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.stopChan:
			return
		default:
			wp.processNextJob(id)
		}
	}
}

// processNextJob dequeues and processes the next available job
func (wp *WorkerPool) processNextJob(workerID int) {
	ctx := context.Background()

	job, err := wp.queue.Dequeue(ctx, 5*time.Second)
	if err != nil {
		if errors.Is(err, ErrQueueEmpty) {
			return
		}
		wp.log.Error(ctx, "failed to dequeue job", err, map[string]interface{}{
			"worker": workerID,
		})
		return
	}

	if length, err := wp.queue.QueueLength(ctx); err == nil {
		metrics.Default().SetJobQueueLength(length)
	}

	wp.processJob(ctx, workerID, job)
}

// processJob handles the full lifecycle of a single job attempt
func (wp *WorkerPool) processJob(ctx context.Context, workerID int, job *Job) {
	ctx = apperrors.WithJobID(ctx, job.ID)

	jobCtx, cancel := context.WithTimeout(ctx, wp.jobTimeout)
	defer cancel()
	jobCtx = apperrors.WithJobID(jobCtx, job.ID)

	metrics.Default().IncJobsInFlight()
	defer metrics.Default().DecJobsInFlight()

	wp.log.Info(ctx, "processing job", map[string]interface{}{
		"worker": workerID,
		"mode":   job.Mode,
		"retry":  job.RetryCount,
	})

	if err := wp.queue.MarkProcessing(ctx, job.ID); err != nil {
		wp.log.Error(ctx, "failed to mark job processing", err)
		return
	}

	err := wp.processor(jobCtx, job)

	if err != nil {
		wp.handleJobFailure(ctx, workerID, job, err)
		return
	}

	if err := wp.queue.MarkDone(ctx, job.ID); err != nil {
		wp.log.Error(ctx, "failed to mark job done", err)
	}

	metrics.Default().RecordJobOutcome(job.Mode, StatusDone)
	wp.log.Info(ctx, "job completed", map[string]interface{}{"worker": workerID})
	wp.notifyTerminal(ctx, job.ID)
}

// handleJobFailure requeues the job with exponential backoff when the
// error class is worth retrying, and finalizes it as failed otherwise.
// Failed is terminal, so the job is never marked failed ahead of a
// requeue decision.
func (wp *WorkerPool) handleJobFailure(ctx context.Context, workerID int, job *Job, jobErr error) {
	wp.log.Error(ctx, "job attempt failed", jobErr, map[string]interface{}{
		"worker": workerID,
		"retry":  job.RetryCount,
	})

	retryable := apperrors.IsRetryable(jobErr) || isTimeout(jobErr)

	if retryable && job.CanRetry(wp.maxRetries) {
		backoff := calculateBackoff(job.RetryCount)
		wp.log.Warn(ctx, "scheduling retry", map[string]interface{}{
			"backoff": backoff.String(),
			"attempt": job.RetryCount + 1,
			"max":     wp.maxRetries,
		})

		// The job stays processing through the backoff; an unclean stop
		// here is picked up by stale recovery on the next start.
		select {
		case <-time.After(backoff):
		case <-wp.stopChan:
			return
		}

		if err := wp.queue.IncrementRetry(ctx, job.ID); err != nil {
			wp.log.Error(ctx, "failed to requeue job for retry", err)
		}
		return
	}

	if err := wp.queue.MarkFailed(ctx, job.ID, jobErr.Error()); err != nil {
		wp.log.Error(ctx, "failed to mark job failed", err)
		return
	}

	metrics.Default().RecordJobOutcome(job.Mode, StatusFailed)
	wp.notifyTerminal(ctx, job.ID)
}

func (wp *WorkerPool) notifyTerminal(ctx context.Context, jobID string) {
	if wp.onTerminal == nil {
		return
	}
	job, err := wp.queue.GetJob(ctx, jobID)
	if err != nil {
		wp.log.Error(ctx, "failed to load job for terminal notification", err)
		return
	}
	wp.onTerminal(ctx, job)
}

// isTimeout covers attempts killed by the per-job deadline, which surface
// as context errors rather than AppErrors.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// calculateBackoff calculates the exponential backoff duration for a given retry count
func calculateBackoff(retryCount int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(retryCount))) * baseBackoff
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
