package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/vocalfuse/backend/internal/errors"
)

func TestSynthesize(t *testing.T) {
	audio := []byte("fake-mp3-bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text    string `json:"text"`
			VoiceID string `json:"voice_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.VoiceID != "voice-42" {
			t.Errorf("voice_id = %q, want voice-42", req.VoiceID)
		}
		w.Write(audio)
	}))
	defer server.Close()

	client := NewClient(server.URL, "default-voice")
	got, err := client.Synthesize(context.Background(), "hello", "voice-42", "en")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("audio = %q, want %q", got, audio)
	}
}

func TestSynthesizeUsesDefaultVoiceWhenUnassigned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			VoiceID string `json:"voice_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.VoiceID != "default-voice" {
			t.Errorf("voice_id = %q, want default-voice", req.VoiceID)
		}
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "default-voice")
	if _, err := client.Synthesize(context.Background(), "hello", "", "en"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
}

func TestSynthesizeErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  string
		retryable bool
	}{
		{"voice not found", http.StatusNotFound, apperrors.CodeVoiceNotFound, false},
		{"quota exhausted", http.StatusTooManyRequests, apperrors.CodeQuotaExhausted, false},
		{"model warming", http.StatusServiceUnavailable, apperrors.CodeServiceWarming, true},
		{"server error", http.StatusInternalServerError, apperrors.CodeTTSError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, "default-voice")
			_, err := client.Synthesize(context.Background(), "hello", "voice-42", "en")

			if !apperrors.HasCode(err, tt.wantCode) {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
			if apperrors.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", apperrors.IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "default-voice")
	_, err := client.Synthesize(context.Background(), "hello", "voice-42", "en")

	if !apperrors.HasCode(err, apperrors.CodeTTSError) {
		t.Errorf("error = %v, want TTS_ERROR", err)
	}
}
