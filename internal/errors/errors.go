package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

// Common error codes
const (
	// Client errors (4xx)
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"

	// Job/pipeline input errors
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeArtifactNotFound  = "ARTIFACT_NOT_FOUND"
	CodeResultNotReady    = "RESULT_NOT_READY"
	CodeUnsupportedMode   = "UNSUPPORTED_MODE"
	CodeInvalidLanguage   = "INVALID_LANGUAGE"
	CodeMalformedSegments = "MALFORMED_SEGMENTS"
	CodeMalformedMedia    = "MALFORMED_MEDIA"

	// Server errors (5xx)
	CodeInternalError  = "INTERNAL_ERROR"
	CodeDatabaseError  = "DATABASE_ERROR"
	CodeStorageError   = "STORAGE_ERROR"
	CodeTranscodeError = "TRANSCODE_ERROR"

	// External service errors
	CodeSTTError         = "STT_ERROR"
	CodeDiarizationError = "DIARIZATION_ERROR"
	CodeTranslationError = "TRANSLATION_ERROR"
	CodeTTSError         = "TTS_ERROR"
	CodeDialectError     = "DIALECT_ERROR"
	CodeExternalTimeout  = "EXTERNAL_TIMEOUT"
	CodeServiceWarming   = "SERVICE_WARMING"
	CodeQuotaExhausted   = "QUOTA_EXHAUSTED"
	CodeVoiceNotFound    = "VOICE_NOT_FOUND"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// ErrorResponse is the JSON structure returned to clients
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error details
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// Client error constructors

func BadRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, CategoryClient, http.StatusBadRequest)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message, CategoryClient, http.StatusBadRequest)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), CategoryClient, http.StatusNotFound)
}

func JobNotFound() *AppError {
	return New(CodeJobNotFound, "job not found", CategoryClient, http.StatusNotFound)
}

func ArtifactNotFound(kind string) *AppError {
	return New(CodeArtifactNotFound, fmt.Sprintf("artifact %s not available", kind), CategoryClient, http.StatusNotFound)
}

func ResultNotReady(status string) *AppError {
	return New(CodeResultNotReady, fmt.Sprintf("job is %s, result is available once done", status), CategoryClient, http.StatusConflict)
}

func UnsupportedMode(mode string) *AppError {
	return New(CodeUnsupportedMode, fmt.Sprintf("unsupported mode: %s", mode), CategoryClient, http.StatusBadRequest)
}

func InvalidLanguage(tag string) *AppError {
	return New(CodeInvalidLanguage, fmt.Sprintf("invalid language code: %s", tag), CategoryClient, http.StatusBadRequest)
}

// MalformedSegments marks a segment batch that violates the segment
// invariants (missing timestamps, end <= start, out of order). Input
// error: the stage fails immediately, without retry.
func MalformedSegments(message string) *AppError {
	return New(CodeMalformedSegments, message, CategoryClient, http.StatusBadRequest)
}

// MalformedMedia marks source media that cannot be decoded. Input error,
// fatal at the stage where it is detected.
func MalformedMedia(message string) *AppError {
	return New(CodeMalformedMedia, message, CategoryClient, http.StatusBadRequest)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, CategoryClient, http.StatusConflict)
}

func RateLimited() *AppError {
	return New(CodeRateLimited, "rate limit exceeded", CategoryClient, http.StatusTooManyRequests)
}

// Server error constructors

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message, CategoryServer, http.StatusInternalServerError)
}

func StorageError(message string) *AppError {
	return New(CodeStorageError, message, CategoryServer, http.StatusInternalServerError)
}

// TranscodeError marks a local ffmpeg/ffprobe failure. Treated as
// permanent: a non-zero exit will not change on retry with the same
// inputs.
func TranscodeError(message string) *AppError {
	return New(CodeTranscodeError, message, CategoryServer, http.StatusInternalServerError)
}

// External service error constructors

func STTError(message string) *AppError {
	return New(CodeSTTError, message, CategoryExternal, http.StatusBadGateway)
}

func DiarizationError(message string) *AppError {
	return New(CodeDiarizationError, message, CategoryExternal, http.StatusBadGateway)
}

func TranslationError(message string) *AppError {
	return New(CodeTranslationError, message, CategoryExternal, http.StatusBadGateway)
}

func TTSError(message string) *AppError {
	return New(CodeTTSError, message, CategoryExternal, http.StatusBadGateway)
}

func DialectError(message string) *AppError {
	return New(CodeDialectError, message, CategoryExternal, http.StatusBadGateway)
}

func ExternalTimeout(service string) *AppError {
	return New(CodeExternalTimeout, fmt.Sprintf("%s request timed out", service), CategoryExternal, http.StatusGatewayTimeout)
}

// ServiceWarming marks a collaborator that answered 503 while its model
// is still loading. Retryable, on the fixed-delay warmup schedule.
func ServiceWarming(service string) *AppError {
	return New(CodeServiceWarming, fmt.Sprintf("%s is still loading", service), CategoryExternal, http.StatusServiceUnavailable)
}

// QuotaExhausted marks a collaborator account with no capacity left.
// External but permanent: retrying will not restore quota.
func QuotaExhausted(service string) *AppError {
	return New(CodeQuotaExhausted, fmt.Sprintf("%s quota exhausted", service), CategoryExternal, http.StatusBadGateway)
}

// VoiceNotFound marks a synthesis voice id missing from the provider
// account. Permanent for that voice; callers fall back to a default.
func VoiceNotFound(voiceID string) *AppError {
	return New(CodeVoiceNotFound, fmt.Sprintf("voice %s not found", voiceID), CategoryExternal, http.StatusBadGateway)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, requestID string, err error) {
	var appErr *AppError

	switch e := err.(type) {
	case *AppError:
		appErr = e
	default:
		// Wrap unknown errors as internal errors
		appErr = InternalError("an unexpected error occurred").WithCause(err)
	}

	resp := ErrorResponse{
		Error: ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			RequestID: requestID,
			Details:   appErr.Details,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// permanentExternalCodes are external failures that retrying cannot fix.
var permanentExternalCodes = map[string]bool{
	CodeQuotaExhausted: true,
	CodeVoiceNotFound:  true,
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	// External service errors are typically retryable
	if appErr.Category == CategoryExternal {
		return !permanentExternalCodes[appErr.Code]
	}

	// Storage hiccups are worth retrying; everything else server-side is not
	if appErr.Category == CategoryServer {
		return appErr.Code == CodeStorageError
	}

	return false
}

// IsClientError returns true if the error is a client error
func IsClientError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryClient
}

// IsServerError returns true if the error is a server error
func IsServerError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryServer
}

// IsExternalError returns true if the error is an external service error
func IsExternalError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryExternal
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}
