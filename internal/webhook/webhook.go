package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vocalfuse/backend/internal/jobs"
	"github.com/vocalfuse/backend/internal/logger"
)

const (
	// SignatureHeader carries the HMAC of the request body
	SignatureHeader = "X-Signature"

	defaultTimeout = 5 * time.Second
)

// Payload is the body posted to a job's callback URL on terminal state.
// ResultURL is set only when the job finished, Error only when it failed.
type Payload struct {
	JobID       string            `json:"job_id"`
	Status      string            `json:"status"`
	Mode        string            `json:"mode"`
	Progress    int               `json:"progress"`
	ResultURL   string            `json:"result_url,omitempty"`
	Error       string            `json:"error,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Notifier delivers terminal-state callbacks. Delivery is single-attempt
// and best-effort: a dead callback endpoint must never affect job state.
type Notifier struct {
	secret     string
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewNotifier creates a notifier signing payloads with secret. baseURL is
// the externally reachable address of this server, used to build the
// result link in done payloads.
func NewNotifier(secret, baseURL string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger.Default().WithComponent("webhook"),
	}
}

// NotifyTerminal posts the job's terminal state to its callback URL.
// Jobs without a callback URL are skipped.
func (n *Notifier) NotifyTerminal(ctx context.Context, job *jobs.Job) {
	if job.CallbackURL == "" {
		return
	}

	payload := Payload{
		JobID:       job.ID,
		Status:      job.Status,
		Mode:        job.Mode,
		Progress:    job.Progress,
		Error:       job.Error,
		Outputs:     job.Outputs,
		CompletedAt: job.CompletedAt,
	}
	if job.Status == jobs.StatusDone {
		payload.ResultURL = fmt.Sprintf("%s/api/v1/jobs/%s/result", n.baseURL, job.ID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error(ctx, "failed to encode webhook payload", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.CallbackURL, bytes.NewReader(body))
	if err != nil {
		n.log.Error(ctx, "failed to build webhook request", err, map[string]interface{}{
			"url": job.CallbackURL,
		})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(n.secret, body))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.Warn(ctx, "webhook delivery failed", map[string]interface{}{
			"url":   job.CallbackURL,
			"error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn(ctx, "webhook endpoint rejected delivery", map[string]interface{}{
			"url":    job.CallbackURL,
			"status": resp.StatusCode,
		})
		return
	}

	n.log.Info(ctx, "webhook delivered", map[string]interface{}{
		"url":    job.CallbackURL,
		"status": resp.StatusCode,
	})
}

// Sign computes the signature header value for a payload
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature checks a received signature against a payload. Receivers
// use this to authenticate callbacks.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
