package jobs

import (
	"context"
	"os"
	"testing"
	"time"
)

func getTestRedisURL() string {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}
	return url
}

func testParams() NewJobParams {
	return NewJobParams{
		Mode:       ModeDub,
		Title:      "interview clip",
		SourceLang: "en",
		TargetLang: "fr",
		SourceKey:  "sources/test.mp4",
	}
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	queue, err := NewQueue(getTestRedisURL())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer queue.Close()

	ctx := context.Background()

	job, err := queue.Enqueue(ctx, testParams())
	if err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.Status != StatusQueued {
		t.Errorf("Expected status %s, got %s", StatusQueued, job.Status)
	}
	if job.Mode != ModeDub {
		t.Errorf("Expected mode %s, got %s", ModeDub, job.Mode)
	}

	dequeuedJob, err := queue.Dequeue(ctx, 1*time.Second)
	if err != nil {
		t.Fatalf("Failed to dequeue job: %v", err)
	}

	if dequeuedJob.ID != job.ID {
		t.Errorf("Expected job ID %s, got %s", job.ID, dequeuedJob.ID)
	}
}

func TestQueue_StageTransitions(t *testing.T) {
	queue, err := NewQueue(getTestRedisURL())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer queue.Close()

	ctx := context.Background()

	job, err := queue.Enqueue(ctx, testParams())
	if err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}

	if err := queue.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	if err := queue.SetStage(ctx, job.ID, StageUpload, 5); err != nil {
		t.Fatalf("SetStage(upload) failed: %v", err)
	}
	if err := queue.SetStage(ctx, job.ID, StageSTT, 10); err != nil {
		t.Fatalf("SetStage(stt) failed: %v", err)
	}

	// Backward stage transition must be rejected.
	if err := queue.SetStage(ctx, job.ID, StageUpload, 50); err == nil {
		t.Error("expected error moving stage backward")
	}

	updated, err := queue.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Stage != StageSTT {
		t.Errorf("Stage = %s, want %s", updated.Stage, StageSTT)
	}
	if updated.Progress != 10 {
		t.Errorf("Progress = %d, want 10", updated.Progress)
	}
	if updated.StartedAt == nil {
		t.Error("StartedAt should be set after MarkProcessing")
	}

	// Clean up
	queue.Dequeue(ctx, 1*time.Second)
}

func TestQueue_RegisterOutputAndDone(t *testing.T) {
	queue, err := NewQueue(getTestRedisURL())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer queue.Close()

	ctx := context.Background()

	job, err := queue.Enqueue(ctx, testParams())
	if err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}

	if err := queue.RegisterOutput(ctx, job.ID, ArtifactSRT, "jobs/x/subs.srt"); err != nil {
		t.Fatalf("RegisterOutput failed: %v", err)
	}
	// Re-registering the same kind overwrites.
	if err := queue.RegisterOutput(ctx, job.ID, ArtifactSRT, "jobs/x/subs-v2.srt"); err != nil {
		t.Fatalf("RegisterOutput overwrite failed: %v", err)
	}

	if err := queue.MarkDone(ctx, job.ID); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	updated, err := queue.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}

	if updated.Status != StatusDone {
		t.Errorf("Status = %s, want %s", updated.Status, StatusDone)
	}
	if updated.Progress != 100 {
		t.Errorf("Progress = %d, want 100", updated.Progress)
	}
	if updated.Outputs[ArtifactSRT] != "jobs/x/subs-v2.srt" {
		t.Errorf("Outputs[srt] = %s", updated.Outputs[ArtifactSRT])
	}
	if len(updated.Outputs) != 1 {
		t.Errorf("Outputs has %d entries, want 1", len(updated.Outputs))
	}
	if updated.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}

	// Terminal jobs reject further stage transitions.
	if err := queue.SetStage(ctx, job.ID, StageMux, 99); err == nil {
		t.Error("expected error advancing a done job")
	}

	// Clean up
	queue.Dequeue(ctx, 1*time.Second)
}

func TestQueue_IncrementRetry(t *testing.T) {
	queue, err := NewQueue(getTestRedisURL())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer queue.Close()

	ctx := context.Background()

	job, err := queue.Enqueue(ctx, testParams())
	if err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}

	if _, err := queue.Dequeue(ctx, 1*time.Second); err != nil {
		t.Fatalf("Failed to dequeue job: %v", err)
	}

	if err := queue.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if err := queue.SetStage(ctx, job.ID, StageSTT, 10); err != nil {
		t.Fatalf("SetStage failed: %v", err)
	}
	if err := queue.MarkFailed(ctx, job.ID, "stt timed out"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	if err := queue.IncrementRetry(ctx, job.ID); err != nil {
		t.Fatalf("Failed to increment retry: %v", err)
	}

	updated, err := queue.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}

	if updated.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", updated.RetryCount)
	}
	if updated.Status != StatusQueued {
		t.Errorf("Status = %s, want %s", updated.Status, StatusQueued)
	}
	// Requeued jobs restart from scratch.
	if updated.Stage != "" || updated.Progress != 0 {
		t.Errorf("Stage/Progress = %s/%d, want reset", updated.Stage, updated.Progress)
	}

	// Clean up
	queue.Dequeue(ctx, 1*time.Second)
}

func TestQueue_RecoverStale(t *testing.T) {
	queue, err := NewQueue(getTestRedisURL())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer queue.Close()

	ctx := context.Background()

	job, err := queue.Enqueue(ctx, testParams())
	if err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}
	if _, err := queue.Dequeue(ctx, 1*time.Second); err != nil {
		t.Fatalf("Failed to dequeue job: %v", err)
	}
	if err := queue.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if err := queue.SetStage(ctx, job.ID, StageSTT, 10); err != nil {
		t.Fatalf("SetStage failed: %v", err)
	}

	// Simulates a restart with the job still marked processing.
	recovered, err := queue.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale failed: %v", err)
	}
	if recovered < 1 {
		t.Fatalf("recovered = %d, want at least 1", recovered)
	}

	updated, err := queue.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != StatusQueued {
		t.Errorf("Status = %s, want %s", updated.Status, StatusQueued)
	}
	if updated.Stage != "" || updated.Progress != 0 {
		t.Errorf("Stage/Progress = %s/%d, want reset", updated.Stage, updated.Progress)
	}

	// A second pass finds nothing stale for this job.
	if err := queue.MarkDone(ctx, job.ID); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	// Clean up
	queue.Dequeue(ctx, 1*time.Second)
}

func TestQueue_SetDetectedLanguage(t *testing.T) {
	queue, err := NewQueue(getTestRedisURL())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer queue.Close()

	ctx := context.Background()

	params := testParams()
	params.SourceLang = "auto"
	job, err := queue.Enqueue(ctx, params)
	if err != nil {
		t.Fatalf("Failed to enqueue job: %v", err)
	}

	if err := queue.SetDetectedLanguage(ctx, job.ID, "es"); err != nil {
		t.Fatalf("SetDetectedLanguage failed: %v", err)
	}

	updated, err := queue.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.DetectedLang != "es" {
		t.Errorf("DetectedLang = %s, want es", updated.DetectedLang)
	}

	// Clean up
	queue.Dequeue(ctx, 1*time.Second)
}
