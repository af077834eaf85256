package translate

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

// Client talks to the translation service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a translation client for the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type translateRequest struct {
	Segments   []segment.Segment `json:"segments"`
	SourceLang string            `json:"source_lang"`
	TargetLang string            `json:"target_lang"`
}

type translateResponse struct {
	Segments []segment.Segment `json:"segments"`
}

// Translate sends segments for translation into targetLang. The service
// must return exactly one segment per input, same order; a count mismatch
// is an error so the caller never partially applies a translation.
func (c *Client) Translate(ctx context.Context, segments []segment.Segment, sourceLang, targetLang string) ([]segment.Segment, error) {
	payload, err := json.Marshal(translateRequest{
		Segments:   segments,
		SourceLang: sourceLang,
		TargetLang: targetLang,
	})
	if err != nil {
		return nil, apperrors.TranslationError(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.TranslationError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.ExternalTimeout("translate").WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, apperrors.ServiceWarming("translate")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.QuotaExhausted("translate")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.TranslationError(fmt.Sprintf("service returned %d: %s", resp.StatusCode, body))
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.TranslationError(fmt.Sprintf("failed to decode response: %v", err))
	}

	if len(result.Segments) != len(segments) {
		return nil, apperrors.TranslationError(fmt.Sprintf(
			"segment count mismatch: sent %d, received %d", len(segments), len(result.Segments)))
	}

	return result.Segments, nil
}
