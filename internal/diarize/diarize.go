package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/segment"
)

const requestTimeout = 3 * time.Minute

// Client talks to the speaker diarization service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a diarization client for the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type diarizeRequest struct {
	AudioURL        string            `json:"audio_url"`
	WhisperSegments []segment.Segment `json:"whisper_segments"`
}

// Annotation carries speaker attribution for one transcript segment.
// The service echoes timing back; the pipeline validates it against the
// input before merging.
type Annotation struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	SpeakerID string  `json:"speaker_id"`
	VoiceID   string  `json:"voice_id"`
	Gender    string  `json:"gender"`
}

// Diarize sends audio plus transcript segments and returns one annotation
// per input segment, same order.
func (c *Client) Diarize(ctx context.Context, audioURL string, segments []segment.Segment) ([]Annotation, error) {
	payload, err := json.Marshal(diarizeRequest{
		AudioURL:        audioURL,
		WhisperSegments: segments,
	})
	if err != nil {
		return nil, apperrors.DiarizationError(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diarize", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.DiarizationError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.ExternalTimeout("diarize").WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusServiceUnavailable:
		// Speaker embedding models load lazily on the service side.
		return nil, apperrors.ServiceWarming("diarize")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.DiarizationError(fmt.Sprintf("service returned %d: %s", resp.StatusCode, body))
	}

	var annotations []Annotation
	if err := json.NewDecoder(resp.Body).Decode(&annotations); err != nil {
		return nil, apperrors.DiarizationError(fmt.Sprintf("failed to decode response: %v", err))
	}

	return annotations, nil
}
