package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/vocalfuse/backend/internal/errors"
)

func TestTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stt" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["audio_url"] != "http://storage/audio.wav" {
			t.Errorf("audio_url = %v", req["audio_url"])
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"detected_language": "en",
			"segments": []map[string]interface{}{
				{"start": 2.0, "end": 3.5, "text": "world"},
				{"start": 0.0, "end": 1.5, "text": "hello"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.Transcribe(context.Background(), "job-1", "http://storage/audio.wav", "auto")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if result.DetectedLanguage != "en" {
		t.Errorf("DetectedLanguage = %q, want en", result.DetectedLanguage)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(result.Segments))
	}
	// Segments come back sorted by start regardless of service order.
	if result.Segments[0].Text != "hello" {
		t.Errorf("first segment text = %q, want hello", result.Segments[0].Text)
	}
	if result.Segments[0].OriginalText != "hello" {
		t.Errorf("OriginalText = %q, want hello", result.Segments[0].OriginalText)
	}
}

func TestTranscribeServiceWarming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Transcribe(context.Background(), "job-1", "http://storage/audio.wav", "en")

	if !apperrors.HasCode(err, apperrors.CodeServiceWarming) {
		t.Errorf("error = %v, want SERVICE_WARMING", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Error("warming error must be retryable")
	}
}

func TestTranscribeBadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cannot decode audio stream", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Transcribe(context.Background(), "job-1", "http://storage/audio.wav", "en")

	if !apperrors.HasCode(err, apperrors.CodeMalformedMedia) {
		t.Errorf("error = %v, want MALFORMED_MEDIA", err)
	}
	if apperrors.IsRetryable(err) {
		t.Error("malformed media must not be retryable")
	}
}

func TestTranscribeRejectsMalformedSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detected_language": "en",
			"segments": []map[string]interface{}{
				{"start": 5.0, "end": 1.0, "text": "inverted"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Transcribe(context.Background(), "job-1", "http://storage/audio.wav", "en")

	if !apperrors.HasCode(err, apperrors.CodeMalformedSegments) {
		t.Errorf("error = %v, want MALFORMED_SEGMENTS", err)
	}
}
