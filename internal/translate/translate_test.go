package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/segment"
)

func TestTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Segments   []segment.Segment `json:"segments"`
			SourceLang string            `json:"source_lang"`
			TargetLang string            `json:"target_lang"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TargetLang != "fr" {
			t.Errorf("target_lang = %q, want fr", req.TargetLang)
		}

		out := make([]segment.Segment, len(req.Segments))
		copy(out, req.Segments)
		for i := range out {
			out[i].Text = "[fr] " + out[i].Text
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"segments": out})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	input := []segment.Segment{
		{Start: 0, End: 1, Text: "hello", OriginalText: "hello"},
		{Start: 1, End: 2, Text: "world", OriginalText: "world"},
	}

	got, err := client.Translate(context.Background(), input, "en", "fr")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2", len(got))
	}
	if got[0].Text != "[fr] hello" {
		t.Errorf("translated text = %q", got[0].Text)
	}
	if got[0].OriginalText != "hello" {
		t.Errorf("OriginalText = %q, must survive translation", got[0].OriginalText)
	}
}

func TestTranslateCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One segment short of the input.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"segments": []segment.Segment{{Start: 0, End: 1, Text: "seul"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	input := []segment.Segment{
		{Start: 0, End: 1, Text: "hello"},
		{Start: 1, End: 2, Text: "world"},
	}

	_, err := client.Translate(context.Background(), input, "en", "fr")
	if !apperrors.HasCode(err, apperrors.CodeTranslationError) {
		t.Errorf("error = %v, want TRANSLATION_ERROR", err)
	}
}

func TestTranslateQuotaExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Translate(context.Background(),
		[]segment.Segment{{Start: 0, End: 1, Text: "x"}}, "en", "fr")

	if !apperrors.HasCode(err, apperrors.CodeQuotaExhausted) {
		t.Errorf("error = %v, want QUOTA_EXHAUSTED", err)
	}
	if apperrors.IsRetryable(err) {
		t.Error("quota exhaustion must not be retryable")
	}
}
