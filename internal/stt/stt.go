package stt

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

const requestTimeout = 5 * time.Minute

// Client talks to the speech-to-text service. Transcription of long media
// is slow, so the client timeout is generous; callers bound it further
// with their context.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a speech-to-text client for the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Result is a completed transcription
type Result struct {
	DetectedLanguage string            `json:"detected_language"`
	Segments         []segment.Segment `json:"segments"`
}

type transcribeRequest struct {
	JobID      string `json:"job_id"`
	AudioURL   string `json:"audio_url"`
	SourceLang string `json:"source_lang,omitempty"`
}

// Transcribe sends normalized audio to the STT service and returns timed
// segments plus the detected language. SourceLang "auto" or empty lets
// the model detect the language itself.
func (c *Client) Transcribe(ctx context.Context, jobID, audioURL, sourceLang string) (*Result, error) {
	if sourceLang == "auto" {
		sourceLang = ""
	}

	payload, err := json.Marshal(transcribeRequest{
		JobID:      jobID,
		AudioURL:   audioURL,
		SourceLang: sourceLang,
	})
	if err != nil {
		return nil, apperrors.STTError(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stt", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.STTError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.ExternalTimeout("stt").WithCause(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.STTError(fmt.Sprintf("failed to decode response: %v", err))
	}

	if err := segment.Validate(result.Segments); err != nil {
		return nil, err
	}
	segment.SortByStart(result.Segments)

	// The transcript as first produced is pinned before any stage mutates text.
	for i := range result.Segments {
		result.Segments[i].OriginalText = result.Segments[i].Text
	}

	return &result, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		// The model is still loading; retry on a slow schedule.
		return apperrors.ServiceWarming("stt")
	case resp.StatusCode == http.StatusBadRequest:
		return apperrors.MalformedMedia(readErrorBody(resp))
	case resp.StatusCode >= 500:
		return apperrors.STTError(fmt.Sprintf("service returned %d: %s", resp.StatusCode, readErrorBody(resp)))
	default:
		return apperrors.New(apperrors.CodeSTTError,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, readErrorBody(resp)),
			apperrors.CategoryClient, http.StatusBadGateway)
	}
}

func readErrorBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	return string(body)
}
