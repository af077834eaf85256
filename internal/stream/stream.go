package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/jobs"
	"github.com/vocalfuse/backend/internal/logger"
	"github.com/vocalfuse/backend/internal/storage"
)

// ObjectStore is the storage surface needed to serve artifacts.
type ObjectStore interface {
	StatObject(ctx context.Context, key string) (*storage.ObjectInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error)
	GetObjectRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
}

// JobGetter looks up a job's current state.
type JobGetter interface {
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
}

// Handler serves job artifacts straight from object storage.
type Handler struct {
	getter  JobGetter
	storage ObjectStore
	log     *logger.Logger
}

// NewHandler creates a new artifact streaming handler.
func NewHandler(getter JobGetter, store ObjectStore) *Handler {
	return &Handler{
		getter:  getter,
		storage: store,
		log:     logger.Default().WithComponent("stream"),
	}
}

// rangeSpec represents a parsed HTTP Range header.
type rangeSpec struct {
	start int64
	end   int64
}

var rangePattern = regexp.MustCompile(`^(\d*)-(\d*)$`)

// parseRange parses an HTTP Range header value.
// Supports formats: "bytes=0-499", "bytes=500-", "bytes=-500"
func parseRange(rangeHeader string, totalSize int64) (*rangeSpec, error) {
	if rangeHeader == "" {
		return nil, nil
	}

	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return nil, errors.New("invalid range unit")
	}

	spec := strings.TrimPrefix(rangeHeader, "bytes=")

	// Multiple ranges are not supported, serve the first one
	if strings.Contains(spec, ",") {
		spec = strings.Split(spec, ",")[0]
	}

	matches := rangePattern.FindStringSubmatch(strings.TrimSpace(spec))
	if matches == nil {
		return nil, errors.New("invalid range format")
	}

	startStr, endStr := matches[1], matches[2]
	result := &rangeSpec{}

	switch {
	case startStr == "" && endStr == "":
		return nil, errors.New("invalid range: both start and end are empty")

	case startStr == "":
		// Suffix range: -500 means last 500 bytes
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid suffix length: %w", err)
		}
		result.start = totalSize - suffix
		if result.start < 0 {
			result.start = 0
		}
		result.end = totalSize - 1

	case endStr == "":
		// Open-ended range: 500- means from byte 500 to end
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start position: %w", err)
		}
		result.start = start
		result.end = totalSize - 1

	default:
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start position: %w", err)
		}
		end, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid end position: %w", err)
		}
		result.start = start
		result.end = end
	}

	if result.start < 0 || result.start >= totalSize {
		return nil, errors.New("range start out of bounds")
	}
	if result.end >= totalSize {
		result.end = totalSize - 1
	}
	if result.start > result.end {
		return nil, errors.New("invalid range: start > end")
	}

	return result, nil
}

// contentType prefers the stored metadata over the kind-derived type.
func contentType(kind, storageContentType string) string {
	if storageContentType != "" && storageContentType != "application/octet-stream" {
		return storageContentType
	}
	return storage.ArtifactContentType(kind)
}

// ServeArtifact handles GET /api/v1/jobs/{id}/artifacts/{kind}.
// Range requests are honored so video players can seek in the dubbed
// output without downloading the whole file.
func (h *Handler) ServeArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := apperrors.GetRequestID(ctx)

	jobID := r.PathValue("id")
	kind := r.PathValue("kind")

	job, err := h.getter.GetJob(ctx, jobID)
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.JobNotFound())
		return
	}

	storageKey, ok := job.Outputs[kind]
	if !ok || storageKey == "" {
		apperrors.WriteError(w, requestID, apperrors.ArtifactNotFound(kind))
		return
	}

	objInfo, err := h.storage.StatObject(ctx, storageKey)
	if err != nil {
		h.log.Error(ctx, "artifact missing from storage", err, map[string]interface{}{
			"key": storageKey,
		})
		apperrors.WriteError(w, requestID, apperrors.ArtifactNotFound(kind))
		return
	}

	totalSize := objInfo.Size

	rangeHeader := r.Header.Get("Range")
	spec, err := parseRange(rangeHeader, totalSize)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", totalSize))
		apperrors.WriteError(w, requestID, apperrors.New(
			apperrors.CodeInvalidRequest, "invalid range", apperrors.CategoryClient,
			http.StatusRequestedRangeNotSatisfiable))
		return
	}

	w.Header().Set("Content-Type", contentType(kind, objInfo.ContentType))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(storageKey)))
	// Registered artifacts never change, safe to cache for a day
	w.Header().Set("Cache-Control", "public, max-age=86400")

	if spec != nil {
		contentLength := spec.end - spec.start + 1
		w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", spec.start, spec.end, totalSize))
		w.WriteHeader(http.StatusPartialContent)

		reader, err := h.storage.GetObjectRange(ctx, storageKey, spec.start, spec.end)
		if err != nil {
			h.log.Error(ctx, "failed to open artifact range", err, map[string]interface{}{
				"key": storageKey,
			})
			return // Headers already sent
		}
		defer reader.Close()

		if _, err := io.Copy(w, reader); err != nil {
			h.log.Warn(ctx, "artifact range stream interrupted", map[string]interface{}{
				"key":   storageKey,
				"error": err.Error(),
			})
		}
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(totalSize, 10))
	w.WriteHeader(http.StatusOK)

	reader, _, err := h.storage.GetObject(ctx, storageKey)
	if err != nil {
		h.log.Error(ctx, "failed to open artifact", err, map[string]interface{}{
			"key": storageKey,
		})
		return // Headers already sent
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		h.log.Warn(ctx, "artifact stream interrupted", map[string]interface{}{
			"key":   storageKey,
			"error": err.Error(),
		})
	}
}
