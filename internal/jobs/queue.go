package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	keyJobQueue  = "dub:queue"
	keyJobState  = "dub:job:"
	keyProgress  = "dub:progress"

	// Default timeout for blocking operations
	defaultBlockTimeout = 5 * time.Second
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrQueueEmpty  = errors.New("queue is empty")
)

// Recorder mirrors job state into durable storage on every write. The
// Redis copy drives the pipeline; the mirror survives Redis restarts and
// feeds the job history endpoint.
type Recorder interface {
	RecordJob(ctx context.Context, job *Job) error
}

// Queue manages dubbing jobs using Redis
type Queue struct {
	client   *redis.Client
	recorder Recorder
}

// NewQueue creates a new job queue with the given Redis URL
func NewQueue(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

// SetRecorder attaches a durable mirror. Recorder failures never block
// queue operations.
func (q *Queue) SetRecorder(r Recorder) {
	q.recorder = r
}

// Client returns the underlying Redis client for pub/sub operations
func (q *Queue) Client() *redis.Client {
	return q.client
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.client.Close()
}

// NewJobParams carries everything needed to accept a job. ID is
// optional; callers that stage the source upload under the job's key
// prefix supply it up front.
type NewJobParams struct {
	ID          string
	Mode        string
	Title       string
	SourceLang  string
	TargetLang  string
	SourceKey   string
	CallbackURL string
}

// Enqueue accepts a new job and pushes it onto the work queue
func (q *Queue) Enqueue(ctx context.Context, params NewJobParams) (*Job, error) {
	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()
	job := &Job{
		ID:          id,
		Mode:        params.Mode,
		Title:       params.Title,
		SourceLang:  params.SourceLang,
		TargetLang:  params.TargetLang,
		SourceKey:   params.SourceKey,
		CallbackURL: params.CallbackURL,
		Status:      StatusQueued,
		Progress:    0,
		RetryCount:  0,
		Outputs:     make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}

	if err := q.client.LPush(ctx, keyJobQueue, job.ID).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job, nil
}

// Dequeue retrieves and removes a job from the queue (blocking)
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	if timeout == 0 {
		timeout = defaultBlockTimeout
	}

	result, err := q.client.BRPop(ctx, timeout, keyJobQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}

	jobID := result[1]
	return q.GetJob(ctx, jobID)
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, keyJobState+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// MarkProcessing flips a dequeued job to processing and stamps StartedAt
func (q *Queue) MarkProcessing(ctx context.Context, jobID string) error {
	return q.mutate(ctx, jobID, func(job *Job) error {
		job.Status = StatusProcessing
		if job.StartedAt == nil {
			now := time.Now()
			job.StartedAt = &now
		}
		return nil
	})
}

// SetStage advances a processing job to the given stage and progress.
// Transitions are forward-only and progress strictly increases; a
// violating call is rejected.
func (q *Queue) SetStage(ctx context.Context, jobID, stage string, progress int) error {
	return q.mutate(ctx, jobID, func(job *Job) error {
		if job.IsTerminal() {
			return fmt.Errorf("job %s is already %s", jobID, job.Status)
		}
		return job.advanceStage(stage, progress)
	})
}

// SetProgress bumps progress within the current stage
func (q *Queue) SetProgress(ctx context.Context, jobID string, progress int) error {
	return q.mutate(ctx, jobID, func(job *Job) error {
		if job.IsTerminal() {
			return fmt.Errorf("job %s is already %s", jobID, job.Status)
		}
		if progress <= job.Progress {
			return nil
		}
		job.Progress = progress
		return nil
	})
}

// SetDetectedLanguage records the language the STT service detected
func (q *Queue) SetDetectedLanguage(ctx context.Context, jobID, lang string) error {
	return q.mutate(ctx, jobID, func(job *Job) error {
		job.DetectedLang = lang
		return nil
	})
}

// RegisterOutput records a produced artifact. Re-runs overwrite the same
// key; entries are never removed.
func (q *Queue) RegisterOutput(ctx context.Context, jobID, kind, storageKey string) error {
	return q.mutate(ctx, jobID, func(job *Job) error {
		if job.Outputs == nil {
			job.Outputs = make(map[string]string)
		}
		job.Outputs[kind] = storageKey
		return nil
	})
}

// MarkDone finalizes a job at 100 percent
func (q *Queue) MarkDone(ctx context.Context, jobID string) error {
	return q.mutate(ctx, jobID, func(job *Job) error {
		job.Status = StatusDone
		job.Progress = 100
		job.Error = ""
		now := time.Now()
		job.CompletedAt = &now
		return nil
	})
}

// MarkFailed finalizes a job with an error message
func (q *Queue) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	return q.mutate(ctx, jobID, func(job *Job) error {
		job.Status = StatusFailed
		job.Error = errMsg
		now := time.Now()
		job.CompletedAt = &now
		return nil
	})
}

// IncrementRetry increments the retry count and requeues the job. The
// job restarts from the beginning of the pipeline, so stage and progress
// reset with the status.
func (q *Queue) IncrementRetry(ctx context.Context, jobID string) error {
	err := q.mutate(ctx, jobID, func(job *Job) error {
		job.RetryCount++
		job.Status = StatusQueued
		job.Stage = ""
		job.Progress = 0
		job.Error = ""
		job.CompletedAt = nil
		return nil
	})
	if err != nil {
		return err
	}

	return q.client.LPush(ctx, keyJobQueue, jobID).Err()
}

// RecoverStale requeues jobs stuck in processing after an unclean
// shutdown. Each stale job flips back to queued before its ID is
// pushed, so a second pass cannot requeue it again.
func (q *Queue) RecoverStale(ctx context.Context) (int, error) {
	jobs, err := q.ListJobs(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range jobs {
		if job.Status != StatusProcessing {
			continue
		}

		err := q.mutate(ctx, job.ID, func(j *Job) error {
			if j.Status != StatusProcessing {
				return fmt.Errorf("job %s no longer stale", j.ID)
			}
			j.Status = StatusQueued
			j.Stage = ""
			j.Progress = 0
			return nil
		})
		if err != nil {
			continue
		}

		if err := q.client.LPush(ctx, keyJobQueue, job.ID).Err(); err != nil {
			return recovered, fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		recovered++
	}

	return recovered, nil
}

// ListJobs returns all known jobs, newest first
func (q *Queue) ListJobs(ctx context.Context) ([]*Job, error) {
	pattern := keyJobState + "*"
	var jobs []*Job

	iter := q.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := q.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}

	return jobs, nil
}

// QueueLength returns the number of jobs waiting in the queue
func (q *Queue) QueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, keyJobQueue).Result()
}

// mutate runs a read-modify-write cycle on one job and publishes the
// resulting state. The worker owning a job is its only writer, so no
// cross-process locking is needed here.
func (q *Queue) mutate(ctx context.Context, jobID string, fn func(*Job) error) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := fn(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now()

	if err := q.saveJob(ctx, job); err != nil {
		return err
	}

	return q.publishProgress(ctx, job)
}

// saveJob saves a job to Redis and mirrors it to the recorder
func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.Set(ctx, keyJobState+job.ID, data, 0).Err(); err != nil {
		return err
	}

	if q.recorder != nil {
		// Best effort; the Redis copy is authoritative.
		q.recorder.RecordJob(ctx, job)
	}
	return nil
}

// publishProgress publishes a progress event via Redis Pub/Sub
func (q *Queue) publishProgress(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	channel := fmt.Sprintf("%s:%s", keyProgress, job.ID)
	return q.client.Publish(ctx, channel, data).Err()
}

// SubscribeProgress subscribes to progress events for a specific job
func (q *Queue) SubscribeProgress(ctx context.Context, jobID string) *redis.PubSub {
	channel := fmt.Sprintf("%s:%s", keyProgress, jobID)
	return q.client.Subscribe(ctx, channel)
}
