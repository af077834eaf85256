package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/jobs"
	"github.com/vocalfuse/backend/internal/logger"
	"github.com/vocalfuse/backend/internal/segment"
	"github.com/vocalfuse/backend/internal/storage"
)

const (
	// multipartMemoryLimit caps how much of an upload buffers in memory
	// before spilling to disk
	multipartMemoryLimit = 32 << 20

	// presignExpiry bounds the lifetime of result download links
	presignExpiry = 15 * time.Minute
)

// JobService is the job lifecycle surface the handlers drive.
type JobService interface {
	Submit(ctx context.Context, params jobs.NewJobParams) (*jobs.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context) ([]*jobs.Job, error)
}

// UploadStore stages source media and reads back stored artifacts.
type UploadStore interface {
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	ObjectExists(ctx context.Context, key string) (bool, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error)
}

// URLSigner mints presigned download links for result artifacts.
type URLSigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// JobHandlers serves the job submission and inspection endpoints.
type JobHandlers struct {
	service JobService
	store   UploadStore
	signer  URLSigner
	log     *logger.Logger
}

// NewJobHandlers creates the job endpoint handlers.
func NewJobHandlers(service JobService, store UploadStore, signer URLSigner) *JobHandlers {
	return &JobHandlers{
		service: service,
		store:   store,
		signer:  signer,
		log:     logger.Default().WithComponent("api"),
	}
}

// CreateJobRequest is the JSON submission body, used when the source
// media already lives in object storage.
type CreateJobRequest struct {
	StoragePath string `json:"storage_path"`
	Mode        string `json:"mode"`
	Title       string `json:"title,omitempty"`
	SourceLang  string `json:"source_lang,omitempty"`
	TargetLang  string `json:"target_lang,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// CreateJobResponse acknowledges an accepted job.
type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobStatusResponse is the job inspection payload.
type JobStatusResponse struct {
	JobID        string  `json:"job_id"`
	Mode         string  `json:"mode"`
	Title        string  `json:"title,omitempty"`
	Status       string  `json:"status"`
	Stage        string  `json:"stage,omitempty"`
	Progress     int     `json:"progress"`
	Error        string  `json:"error,omitempty"`
	SourceLang   string  `json:"source_lang,omitempty"`
	TargetLang   string  `json:"target_lang,omitempty"`
	DetectedLang string  `json:"detected_lang,omitempty"`
	RetryCount   int     `json:"retry_count,omitempty"`
	CreatedAt    string  `json:"created_at"`
	StartedAt    *string `json:"started_at,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

// ArtifactHandle points at one downloadable result artifact.
type ArtifactHandle struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"path"`
}

// ResultResponse carries the finished job's transcript and artifact
// download handles.
type ResultResponse struct {
	JobID        string                    `json:"job_id"`
	Mode         string                    `json:"mode"`
	DetectedLang string                    `json:"detected_lang,omitempty"`
	Transcript   []segment.Segment         `json:"transcript"`
	Artifacts    map[string]ArtifactHandle `json:"artifacts"`
}

// CreateJob handles POST /api/v1/jobs. The source arrives either as a
// multipart upload or as a JSON body naming an object already in the
// bucket. Accepted jobs return 202 immediately; all processing is
// asynchronous.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := apperrors.GetRequestID(ctx)

	var params jobs.NewJobParams
	var err error

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		params, err = h.acceptMultipart(ctx, r)
	} else {
		params, err = h.acceptJSON(ctx, r)
	}
	if err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	if err := validateParams(&params); err != nil {
		apperrors.WriteError(w, requestID, err)
		return
	}

	job, err := h.service.Submit(ctx, params)
	if err != nil {
		h.log.Error(ctx, "job submission failed", err)
		apperrors.WriteError(w, requestID, apperrors.InternalError("failed to accept job"))
		return
	}

	h.log.Info(ctx, "job accepted", map[string]interface{}{
		"job_id": job.ID,
		"mode":   job.Mode,
	})
	apperrors.WriteJSON(w, requestID, http.StatusAccepted, CreateJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// acceptMultipart stages the uploaded file under the new job's key
// prefix before the job is enqueued.
func (h *JobHandlers) acceptMultipart(ctx context.Context, r *http.Request) (jobs.NewJobParams, error) {
	var params jobs.NewJobParams

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return params, apperrors.BadRequest("invalid multipart body")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return params, apperrors.BadRequest("file field is required")
	}
	defer file.Close()

	params.ID = uuid.New().String()
	params.Mode = r.FormValue("mode")
	params.Title = r.FormValue("title")
	params.SourceLang = r.FormValue("source_lang")
	params.TargetLang = r.FormValue("target_lang")
	params.CallbackURL = r.FormValue("callback_url")
	params.SourceKey = storage.SourceKey(params.ID, header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.store.PutObject(ctx, params.SourceKey, file, header.Size, contentType); err != nil {
		h.log.Error(ctx, "source upload failed", err, map[string]interface{}{
			"key": params.SourceKey,
		})
		return params, apperrors.StorageError("failed to store source media")
	}

	return params, nil
}

// acceptJSON validates that the referenced object actually exists so a
// typoed path fails at submission, not minutes later in a worker.
func (h *JobHandlers) acceptJSON(ctx context.Context, r *http.Request) (jobs.NewJobParams, error) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return jobs.NewJobParams{}, apperrors.BadRequest("invalid request body")
	}

	if req.StoragePath == "" {
		return jobs.NewJobParams{}, apperrors.ValidationError("storage_path is required")
	}

	exists, err := h.store.ObjectExists(ctx, req.StoragePath)
	if err != nil {
		return jobs.NewJobParams{}, apperrors.StorageError("failed to check source media")
	}
	if !exists {
		return jobs.NewJobParams{}, apperrors.ValidationError(fmt.Sprintf("no object at %s", req.StoragePath))
	}

	return jobs.NewJobParams{
		Mode:        req.Mode,
		Title:       req.Title,
		SourceLang:  req.SourceLang,
		TargetLang:  req.TargetLang,
		CallbackURL: req.CallbackURL,
		SourceKey:   req.StoragePath,
	}, nil
}

func validateParams(params *jobs.NewJobParams) error {
	if !jobs.ValidMode(params.Mode) {
		return apperrors.UnsupportedMode(params.Mode)
	}

	if params.SourceLang == "" {
		params.SourceLang = "auto"
	}
	if params.SourceLang != "auto" {
		if _, err := language.Parse(params.SourceLang); err != nil {
			return apperrors.InvalidLanguage(params.SourceLang)
		}
	}

	if params.Mode == jobs.ModeTranslate || params.Mode == jobs.ModeDub {
		if params.TargetLang == "" {
			return apperrors.ValidationError("target_lang is required for " + params.Mode)
		}
		if _, err := language.Parse(params.TargetLang); err != nil {
			return apperrors.InvalidLanguage(params.TargetLang)
		}
	}

	if params.CallbackURL != "" {
		u, err := url.Parse(params.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.ValidationError("callback_url must be an absolute http(s) URL")
		}
	}

	return nil
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := apperrors.GetRequestID(ctx)

	job, err := h.service.GetJob(ctx, r.PathValue("id"))
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.JobNotFound())
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, statusResponse(job))
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := apperrors.GetRequestID(ctx)

	all, err := h.service.ListJobs(ctx)
	if err != nil {
		h.log.Error(ctx, "job listing failed", err)
		apperrors.WriteError(w, requestID, apperrors.InternalError("failed to list jobs"))
		return
	}

	responses := make([]JobStatusResponse, 0, len(all))
	for _, job := range all {
		responses = append(responses, statusResponse(job))
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, map[string]interface{}{
		"jobs": responses,
	})
}

// GetResult handles GET /api/v1/jobs/{id}/result. Results exist only
// for done jobs; anything earlier gets 409 with the current status.
func (h *JobHandlers) GetResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := apperrors.GetRequestID(ctx)

	job, err := h.service.GetJob(ctx, r.PathValue("id"))
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.JobNotFound())
		return
	}

	if job.Status != jobs.StatusDone {
		apperrors.WriteError(w, requestID, apperrors.ResultNotReady(job.Status))
		return
	}

	transcript, err := h.loadTranscript(ctx, job)
	if err != nil {
		h.log.Error(ctx, "transcript load failed", err, map[string]interface{}{
			"job_id": job.ID,
		})
		apperrors.WriteError(w, requestID, apperrors.StorageError("failed to load transcript"))
		return
	}

	artifacts := make(map[string]ArtifactHandle, len(job.Outputs))
	for kind, key := range job.Outputs {
		handle := ArtifactHandle{
			Path: fmt.Sprintf("/api/v1/jobs/%s/artifacts/%s", job.ID, kind),
		}
		if h.signer != nil {
			if signed, err := h.signer.PresignGet(ctx, key, presignExpiry); err == nil {
				handle.URL = signed
			}
		}
		artifacts[kind] = handle
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, ResultResponse{
		JobID:        job.ID,
		Mode:         job.Mode,
		DetectedLang: job.DetectedLang,
		Transcript:   transcript,
		Artifacts:    artifacts,
	})
}

func (h *JobHandlers) loadTranscript(ctx context.Context, job *jobs.Job) ([]segment.Segment, error) {
	key, ok := job.Outputs[jobs.ArtifactTranscriptJSON]
	if !ok {
		return nil, fmt.Errorf("job %s has no transcript artifact", job.ID)
	}

	reader, _, err := h.store.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var transcript []segment.Segment
	if err := json.NewDecoder(reader).Decode(&transcript); err != nil {
		return nil, fmt.Errorf("failed to decode transcript %s: %w", key, err)
	}
	return transcript, nil
}

func statusResponse(job *jobs.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:        job.ID,
		Mode:         job.Mode,
		Title:        job.Title,
		Status:       job.Status,
		Stage:        job.Stage,
		Progress:     job.Progress,
		Error:        job.Error,
		SourceLang:   job.SourceLang,
		TargetLang:   job.TargetLang,
		DetectedLang: job.DetectedLang,
		RetryCount:   job.RetryCount,
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.StartedAt != nil {
		s := job.StartedAt.UTC().Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if job.CompletedAt != nil {
		s := job.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}
