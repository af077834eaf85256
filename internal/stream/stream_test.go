package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vocalfuse/backend/internal/jobs"
	"github.com/vocalfuse/backend/internal/storage"
)

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) StatObject(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &storage.ObjectInfo{Size: int64(len(data)), ContentType: "video/mp4"}, nil
}

func (f *fakeStore) GetObject(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), &storage.ObjectInfo{Size: int64(len(data))}, nil
}

func (f *fakeStore) GetObjectRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
}

type fakeGetter struct {
	jobs map[string]*jobs.Job
}

func (f *fakeGetter) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return job, nil
}

func newTestHandler(t *testing.T) (*Handler, *fakeStore) {
	t.Helper()
	store := &fakeStore{objects: map[string][]byte{
		"jobs/job-1/dubbed.mp4": []byte("0123456789abcdef"),
	}}
	getter := &fakeGetter{jobs: map[string]*jobs.Job{
		"job-1": {
			ID:     "job-1",
			Status: jobs.StatusDone,
			Outputs: map[string]string{
				jobs.ArtifactDubbedVideo: "jobs/job-1/dubbed.mp4",
			},
		},
	}}
	return NewHandler(getter, store), store
}

func serveArtifact(handler *Handler, jobID, kind, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID+"/artifacts/"+kind, nil)
	req.SetPathValue("id", jobID)
	req.SetPathValue("kind", kind)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeArtifact(rec, req)
	return rec
}

func TestServeArtifactFull(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serveArtifact(handler, "job-1", jobs.ArtifactDubbedVideo, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "0123456789abcdef" {
		t.Errorf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", ct)
	}
	if ar := rec.Header().Get("Accept-Ranges"); ar != "bytes" {
		t.Errorf("Accept-Ranges = %q, want bytes", ar)
	}
}

func TestServeArtifactRange(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serveArtifact(handler, "job-1", jobs.ArtifactDubbedVideo, "bytes=4-7")
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Body.String(); got != "4567" {
		t.Errorf("body = %q, want 4567", got)
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes 4-7/16" {
		t.Errorf("Content-Range = %q, want bytes 4-7/16", cr)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "4" {
		t.Errorf("Content-Length = %q, want 4", cl)
	}
}

func TestServeArtifactSuffixRange(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serveArtifact(handler, "job-1", jobs.ArtifactDubbedVideo, "bytes=-4")
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Body.String(); got != "cdef" {
		t.Errorf("body = %q, want cdef", got)
	}
}

func TestServeArtifactInvalidRange(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serveArtifact(handler, "job-1", jobs.ArtifactDubbedVideo, "bytes=99-")
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes */16" {
		t.Errorf("Content-Range = %q, want bytes */16", cr)
	}
}

func TestServeArtifactUnknownKind(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serveArtifact(handler, "job-1", jobs.ArtifactSRT, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServeArtifactUnknownJob(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serveArtifact(handler, "nope", jobs.ArtifactDubbedVideo, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header  string
		start   int64
		end     int64
		wantErr bool
		wantNil bool
	}{
		{"", 0, 0, false, true},
		{"bytes=0-499", 0, 499, false, false},
		{"bytes=500-", 500, 999, false, false},
		{"bytes=-200", 800, 999, false, false},
		{"bytes=0-1999", 0, 999, false, false},
		{"bytes=0-499,600-700", 0, 499, false, false},
		{"bits=0-499", 0, 0, true, false},
		{"bytes=-", 0, 0, true, false},
		{"bytes=700-600", 0, 0, true, false},
		{"bytes=1000-", 0, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			spec, err := parseRange(tt.header, 1000)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if spec != nil {
					t.Fatalf("expected nil spec, got %+v", spec)
				}
				return
			}
			if spec.start != tt.start || spec.end != tt.end {
				t.Errorf("range = %d-%d, want %d-%d", spec.start, spec.end, tt.start, tt.end)
			}
		})
	}
}
