package jobs

import (
	"context"
	"time"

	"github.com/vocalfuse/backend/internal/logger"
)

// Service provides dubbing job management functionality
type Service struct {
	queue      *Queue
	workerPool *WorkerPool
	log        *logger.Logger
}

// ServiceConfig holds configuration for the job service
type ServiceConfig struct {
	RedisURL    string
	WorkerCount int
	MaxRetries  int
	JobTimeout  time.Duration
	OnTerminal  TerminalFunc
	Recorder    Recorder
}

// NewService creates a new job service
func NewService(config *ServiceConfig, processor JobProcessor) (*Service, error) {
	queue, err := NewQueue(config.RedisURL)
	if err != nil {
		return nil, err
	}

	if config.Recorder != nil {
		queue.SetRecorder(config.Recorder)
	}

	workerPool := NewWorkerPool(queue, processor, &WorkerPoolConfig{
		WorkerCount: config.WorkerCount,
		MaxRetries:  config.MaxRetries,
		JobTimeout:  config.JobTimeout,
		OnTerminal:  config.OnTerminal,
	})

	return &Service{
		queue:      queue,
		workerPool: workerPool,
		log:        logger.Default().WithComponent("jobs"),
	}, nil
}

// Start requeues jobs orphaned by an unclean shutdown, then starts the
// worker pool
func (s *Service) Start() {
	ctx := context.Background()

	recovered, err := s.queue.RecoverStale(ctx)
	if err != nil {
		s.log.Error(ctx, "stale job recovery failed", err)
	} else if recovered > 0 {
		s.log.Info(ctx, "requeued stale jobs", map[string]interface{}{
			"count": recovered,
		})
	}

	s.workerPool.Start()
}

// Stop gracefully stops the service
func (s *Service) Stop(ctx context.Context) error {
	if err := s.workerPool.Stop(ctx); err != nil {
		s.log.Error(ctx, "worker pool stop error", err)
	}
	return s.queue.Close()
}

// Queue returns the underlying job queue
func (s *Service) Queue() *Queue {
	return s.queue
}

// Submit accepts a new job
func (s *Service) Submit(ctx context.Context, params NewJobParams) (*Job, error) {
	return s.queue.Enqueue(ctx, params)
}

// GetJob retrieves a job by ID
func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.queue.GetJob(ctx, jobID)
}

// ListJobs retrieves all known jobs
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.queue.ListJobs(ctx)
}

// GetQueueLength returns the number of pending jobs
func (s *Service) GetQueueLength(ctx context.Context) (int64, error) {
	return s.queue.QueueLength(ctx)
}

// SubscribeToJobProgress returns a subscription for one job's progress events
func (s *Service) SubscribeToJobProgress(ctx context.Context, jobID string) *ProgressSubscription {
	pubsub := s.queue.SubscribeProgress(ctx, jobID)
	return &ProgressSubscription{
		pubsub: pubsub,
		ch:     pubsub.Channel(),
	}
}

// IsRunning returns whether the worker pool is running
func (s *Service) IsRunning() bool {
	return s.workerPool.IsRunning()
}
