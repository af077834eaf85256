package jobs

import (
	"fmt"
	"time"
)

// Job status constants representing the job lifecycle
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Processing modes
const (
	ModeTranscribe = "transcribe"
	ModeTranslate  = "translate"
	ModeDub        = "dub"
)

// Pipeline stages, in execution order
const (
	StageUpload    = "upload"
	StageSTT       = "stt"
	StageTranslate = "translate"
	StageTTS       = "tts"
	StageMux       = "mux"
)

// Artifact kinds registered in Job.Outputs
const (
	ArtifactTranscriptJSON = "transcriptJson"
	ArtifactSRT            = "srt"
	ArtifactVTT            = "vtt"
	ArtifactDubbedVideo    = "dubbedVideo"
)

// stageRank fixes the forward-only stage order
var stageRank = map[string]int{
	StageUpload:    0,
	StageSTT:       1,
	StageTranslate: 2,
	StageTTS:       3,
	StageMux:       4,
}

// StageRank returns the position of a stage in the pipeline, or -1 for an
// unknown stage.
func StageRank(stage string) int {
	if r, ok := stageRank[stage]; ok {
		return r
	}
	return -1
}

// ValidMode reports whether mode names a supported processing mode
func ValidMode(mode string) bool {
	return mode == ModeTranscribe || mode == ModeTranslate || mode == ModeDub
}

// Job represents one dubbing/transcription task in the queue
type Job struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Title        string            `json:"title,omitempty"`
	SourceLang   string            `json:"source_lang"`
	TargetLang   string            `json:"target_lang,omitempty"`
	DetectedLang string            `json:"detected_lang,omitempty"`
	SourceKey    string            `json:"source_key"`
	CallbackURL  string            `json:"callback_url,omitempty"`
	Status       string            `json:"status"`
	Stage        string            `json:"stage,omitempty"`
	Progress     int               `json:"progress"`
	Error        string            `json:"error,omitempty"`
	RetryCount   int               `json:"retry_count"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

// CanRetry returns true if the job has attempts left before it must be
// finalized as failed
func (j *Job) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries
}

// NeedsTranslation reports whether the translate stage applies to this job
func (j *Job) NeedsTranslation() bool {
	if j.Mode != ModeTranslate && j.Mode != ModeDub {
		return false
	}
	source := j.SourceLang
	if j.DetectedLang != "" && (source == "" || source == "auto") {
		source = j.DetectedLang
	}
	return j.TargetLang != "" && j.TargetLang != source
}

// NeedsDubbing reports whether the tts and mux stages apply to this job
func (j *Job) NeedsDubbing() bool {
	return j.Mode == ModeDub
}

// advanceStage validates a forward-only stage transition with strictly
// increasing progress, mutating the job on success.
func (j *Job) advanceStage(stage string, progress int) error {
	newRank := StageRank(stage)
	if newRank < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if j.Stage != "" && newRank < StageRank(j.Stage) {
		return fmt.Errorf("stage cannot move backward from %s to %s", j.Stage, stage)
	}
	if progress <= j.Progress {
		return fmt.Errorf("progress must increase: %d -> %d", j.Progress, progress)
	}

	j.Stage = stage
	j.Progress = progress
	return nil
}
