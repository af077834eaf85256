package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/vocalfuse/backend/internal/errors"
)

const requestTimeout = 2 * time.Minute

// Client talks to the speech synthesis service
type Client struct {
	baseURL        string
	defaultVoiceID string
	httpClient     *http.Client
}

// NewClient creates a synthesis client. defaultVoiceID is used when a
// segment has no assigned voice or its voice no longer exists upstream.
func NewClient(baseURL, defaultVoiceID string) *Client {
	return &Client{
		baseURL:        baseURL,
		defaultVoiceID: defaultVoiceID,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// DefaultVoiceID returns the configured fallback voice
func (c *Client) DefaultVoiceID() string {
	return c.defaultVoiceID
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	VoiceID  string `json:"voice_id"`
	Language string `json:"language,omitempty"`
}

// Synthesize renders one segment's text as audio with the given voice and
// returns the encoded audio bytes. A missing voice and an exhausted quota
// are permanent errors the caller must not retry with the same inputs.
func (c *Client) Synthesize(ctx context.Context, text, voiceID, language string) ([]byte, error) {
	if voiceID == "" {
		voiceID = c.defaultVoiceID
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:     text,
		VoiceID:  voiceID,
		Language: language,
	})
	if err != nil {
		return nil, apperrors.TTSError(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.TTSError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.ExternalTimeout("tts").WithCause(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperrors.VoiceNotFound(voiceID)
	case http.StatusTooManyRequests:
		return nil, apperrors.QuotaExhausted("tts")
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, apperrors.New(apperrors.CodeTTSError, "synthesis service rejected credentials",
			apperrors.CategoryServer, http.StatusBadGateway)
	case http.StatusServiceUnavailable:
		return nil, apperrors.ServiceWarming("tts")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.TTSError(fmt.Sprintf("service returned %d: %s", resp.StatusCode, body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.TTSError(fmt.Sprintf("failed to read audio: %v", err))
	}
	if len(audio) == 0 {
		return nil, apperrors.TTSError("service returned empty audio")
	}

	return audio, nil
}
