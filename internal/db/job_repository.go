package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vocalfuse/backend/internal/jobs"
)

var ErrJobNotFound = errors.New("job not found")

// JobRepository mirrors queue state into Postgres and serves job history.
// It implements jobs.Recorder.
type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// RecordJob upserts the full job row. Called on every queue write, so it
// must stay a single statement.
func (r *JobRepository) RecordJob(ctx context.Context, job *jobs.Job) error {
	outputs, err := json.Marshal(job.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, mode, title, source_lang, target_lang, detected_lang,
			source_key, callback_url, status, stage, progress, error,
			retry_count, outputs, created_at, updated_at, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
			detected_lang = EXCLUDED.detected_lang,
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			progress = EXCLUDED.progress,
			error = EXCLUDED.error,
			retry_count = EXCLUDED.retry_count,
			outputs = EXCLUDED.outputs,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.Mode, job.Title, job.SourceLang, job.TargetLang, job.DetectedLang,
		job.SourceKey, job.CallbackURL, job.Status, job.Stage, job.Progress, job.Error,
		job.RetryCount, outputs, job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}
	return nil
}

// GetJob loads one job row
func (r *JobRepository) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	query := `
		SELECT id, mode, title, source_lang, target_lang, detected_lang,
			source_key, callback_url, status, stage, progress, error,
			retry_count, outputs, created_at, updated_at, started_at, completed_at
		FROM jobs WHERE id = $1
	`
	return r.scanJob(r.db.QueryRowContext(ctx, query, jobID))
}

// ListRecent returns the newest jobs, most recent first
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, mode, title, source_lang, target_lang, detected_lang,
			source_key, callback_url, status, stage, progress, error,
			retry_count, outputs, created_at, updated_at, started_at, completed_at
		FROM jobs ORDER BY created_at DESC LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var result []*jobs.Job
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepository) scanJob(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var title, sourceLang, targetLang, detectedLang, callbackURL, stage, errMsg sql.NullString
	var outputs []byte

	err := row.Scan(
		&job.ID, &job.Mode, &title, &sourceLang, &targetLang, &detectedLang,
		&job.SourceKey, &callbackURL, &job.Status, &stage, &job.Progress, &errMsg,
		&job.RetryCount, &outputs, &job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Title = title.String
	job.SourceLang = sourceLang.String
	job.TargetLang = targetLang.String
	job.DetectedLang = detectedLang.String
	job.CallbackURL = callbackURL.String
	job.Stage = stage.String
	job.Error = errMsg.String

	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &job.Outputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outputs: %w", err)
		}
	}

	return &job, nil
}
