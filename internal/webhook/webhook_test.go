package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vocalfuse/backend/internal/jobs"
)

func TestNotifyTerminal(t *testing.T) {
	var gotBody []byte
	var gotSignature string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier("test-secret", "https://dub.example.com/", time.Second)
	now := time.Now()
	job := &jobs.Job{
		ID:          "job-1",
		Mode:        jobs.ModeDub,
		Status:      jobs.StatusDone,
		Progress:    100,
		CallbackURL: server.URL,
		Outputs:     map[string]string{jobs.ArtifactSRT: "jobs/job-1/subtitles.srt"},
		CompletedAt: &now,
	}

	notifier.NotifyTerminal(context.Background(), job)

	if len(gotBody) == 0 {
		t.Fatal("webhook was not delivered")
	}

	var payload Payload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.JobID != "job-1" || payload.Status != jobs.StatusDone {
		t.Errorf("payload = %+v", payload)
	}
	if payload.ResultURL != "https://dub.example.com/api/v1/jobs/job-1/result" {
		t.Errorf("ResultURL = %q", payload.ResultURL)
	}

	if !strings.HasPrefix(gotSignature, "sha256=") {
		t.Errorf("signature %q missing sha256= prefix", gotSignature)
	}
	if !VerifySignature("test-secret", gotBody, gotSignature) {
		t.Error("signature does not verify against the body")
	}
	if VerifySignature("wrong-secret", gotBody, gotSignature) {
		t.Error("signature verified with the wrong secret")
	}
}

func TestNotifyTerminalFailedOmitsResultURL(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier("test-secret", "https://dub.example.com", time.Second)
	notifier.NotifyTerminal(context.Background(), &jobs.Job{
		ID:          "job-4",
		Status:      jobs.StatusFailed,
		Error:       "speech synthesis failed",
		CallbackURL: server.URL,
	})

	var payload Payload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.ResultURL != "" {
		t.Errorf("ResultURL = %q, want empty on failed jobs", payload.ResultURL)
	}
	if payload.Error != "speech synthesis failed" {
		t.Errorf("Error = %q", payload.Error)
	}
}

func TestNotifyTerminalSkipsWithoutCallback(t *testing.T) {
	// No server: a delivery attempt would fail loudly, but a job with no
	// callback URL must be a silent no-op.
	notifier := NewNotifier("test-secret", "http://localhost:8080", time.Second)
	notifier.NotifyTerminal(context.Background(), &jobs.Job{ID: "job-2", Status: jobs.StatusFailed})
}

func TestNotifyTerminalSingleAttempt(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewNotifier("test-secret", "http://localhost:8080", time.Second)
	notifier.NotifyTerminal(context.Background(), &jobs.Job{
		ID:          "job-3",
		Status:      jobs.StatusDone,
		CallbackURL: server.URL,
	})

	if attempts != 1 {
		t.Errorf("delivery attempts = %d, want exactly 1", attempts)
	}
}

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"job_id":"x"}`)
	if Sign("s", body) != Sign("s", body) {
		t.Error("Sign is not deterministic")
	}
	if Sign("s", body) == Sign("other", body) {
		t.Error("different secrets produced the same signature")
	}
}
