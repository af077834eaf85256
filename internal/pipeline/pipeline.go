package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vocalfuse/backend/internal/dialect"
	"github.com/vocalfuse/backend/internal/diarize"
	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/jobs"
	"github.com/vocalfuse/backend/internal/logger"
	"github.com/vocalfuse/backend/internal/media"
	"github.com/vocalfuse/backend/internal/metrics"
	"github.com/vocalfuse/backend/internal/segment"
	"github.com/vocalfuse/backend/internal/storage"
	"github.com/vocalfuse/backend/internal/stt"
)

// Transcriber produces timed segments from normalized audio
type Transcriber interface {
	Transcribe(ctx context.Context, jobID, audioURL, sourceLang string) (*stt.Result, error)
}

// Diarizer attributes segments to speakers and voices
type Diarizer interface {
	Diarize(ctx context.Context, audioURL string, segments []segment.Segment) ([]diarize.Annotation, error)
}

// Translator rewrites segment text into the target language
type Translator interface {
	Translate(ctx context.Context, segments []segment.Segment, sourceLang, targetLang string) ([]segment.Segment, error)
}

// Synthesizer renders text as speech audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, language string) ([]byte, error)
	DefaultVoiceID() string
}

// Transcoder is the local ffmpeg surface the pipeline needs
type Transcoder interface {
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
	Duration(ctx context.Context, path string) (float64, error)
	StretchAudio(ctx context.Context, inputPath, outputPath string, actualSec, targetSec float64) error
	AssembleTrack(ctx context.Context, clips []media.TimedClip, totalSec float64, outputPath string) error
	Mux(ctx context.Context, videoPath, audioPath, subtitlePath, outputPath string) error
}

// MediaStore moves media and artifacts between object storage and the
// job's working directory
type MediaStore interface {
	DownloadToFile(ctx context.Context, key, filePath string) error
	PutFile(ctx context.Context, key, filePath, contentType string) error
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// URLSigner mints fetchable URLs for objects handed to collaborators
type URLSigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// JobTracker is the queue surface the pipeline mutates as it advances
type JobTracker interface {
	SetStage(ctx context.Context, jobID, stage string, progress int) error
	SetProgress(ctx context.Context, jobID string, progress int) error
	SetDetectedLanguage(ctx context.Context, jobID, lang string) error
	RegisterOutput(ctx context.Context, jobID, kind, storageKey string) error
}

// SegmentRefiner applies dialect correction before translation
type SegmentRefiner interface {
	RefineSegments(ctx context.Context, segments []segment.Segment) []segment.Segment
	Enabled() bool
}

// Pipeline runs one job through its stages in order
type Pipeline struct {
	transcriber Transcriber
	diarizer    Diarizer
	translator  Translator
	synthesizer Synthesizer
	transcoder  Transcoder
	store       MediaStore
	signer      URLSigner
	tracker     JobTracker
	refiner     SegmentRefiner
	workDir     string
	log         *logger.Logger
}

// Config wires the pipeline's collaborators
type Config struct {
	Transcriber Transcriber
	Diarizer    Diarizer
	Translator  Translator
	Synthesizer Synthesizer
	Transcoder  Transcoder
	Store       MediaStore
	Signer      URLSigner
	Tracker     JobTracker
	Refiner     SegmentRefiner
	WorkDir     string
}

// New creates a pipeline
func New(cfg *Config) *Pipeline {
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Pipeline{
		transcriber: cfg.Transcriber,
		diarizer:    cfg.Diarizer,
		translator:  cfg.Translator,
		synthesizer: cfg.Synthesizer,
		transcoder:  cfg.Transcoder,
		store:       cfg.Store,
		signer:      cfg.Signer,
		tracker:     cfg.Tracker,
		refiner:     cfg.Refiner,
		workDir:     workDir,
		log:         logger.Default().WithComponent("pipeline"),
	}
}

// jobState carries a single run's working data between stages. Each job
// owns its working directory exclusively for the run's lifetime.
type jobState struct {
	job       *jobs.Job
	dir       string
	videoPath string
	audioPath string
	audioURL  string
	duration  float64
	segments  []segment.Segment
	clips     []media.TimedClip
}

// Process implements jobs.JobProcessor
func (p *Pipeline) Process(ctx context.Context, job *jobs.Job) error {
	state := &jobState{
		job: job,
		dir: filepath.Join(p.workDir, "vocalfuse-"+job.ID),
	}

	if err := os.MkdirAll(state.dir, 0o755); err != nil {
		return apperrors.InternalError(fmt.Sprintf("failed to create work dir: %v", err))
	}
	defer os.RemoveAll(state.dir)

	if err := p.timed(ctx, jobs.StageUpload, state, p.runUpload); err != nil {
		return err
	}
	if err := p.timed(ctx, jobs.StageSTT, state, p.runSTT); err != nil {
		return err
	}
	if job.NeedsTranslation() {
		if err := p.timed(ctx, jobs.StageTranslate, state, p.runTranslate); err != nil {
			return err
		}
	}

	// Transcript artifacts reflect the final segment text, so they go
	// out as soon as translation settles, before any dubbing work.
	if err := p.publishTranscriptArtifacts(ctx, state); err != nil {
		return err
	}

	if !job.NeedsDubbing() {
		return nil
	}
	if err := p.timed(ctx, jobs.StageTTS, state, p.runTTS); err != nil {
		return err
	}
	return p.timed(ctx, jobs.StageMux, state, p.runMux)
}

func (p *Pipeline) timed(ctx context.Context, stage string, state *jobState, run func(context.Context, *jobState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := run(ctx, state)
	metrics.Default().RecordStageDuration(stage, time.Since(start))
	return err
}

// runUpload fetches the source media and normalizes its audio track
func (p *Pipeline) runUpload(ctx context.Context, state *jobState) error {
	job := state.job
	if err := p.tracker.SetStage(ctx, job.ID, jobs.StageUpload, 5); err != nil {
		return err
	}

	state.videoPath = filepath.Join(state.dir, "source"+filepath.Ext(job.SourceKey))
	if err := apperrors.Retry(ctx, apperrors.StorageRetryConfig(), func(ctx context.Context) error {
		return p.store.DownloadToFile(ctx, job.SourceKey, state.videoPath)
	}); err != nil {
		return apperrors.StorageError(fmt.Sprintf("failed to fetch source media: %v", err))
	}

	state.audioPath = filepath.Join(state.dir, "audio.wav")
	if err := p.transcoder.ExtractAudio(ctx, state.videoPath, state.audioPath); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Extraction failing means the container has no usable audio.
		return apperrors.MalformedMedia(fmt.Sprintf("audio extraction failed: %v", err))
	}

	dur, err := p.transcoder.Duration(ctx, state.audioPath)
	if err != nil {
		return err
	}
	state.duration = dur

	audioKey := storage.AudioKey(job.ID)
	if err := apperrors.Retry(ctx, apperrors.StorageRetryConfig(), func(ctx context.Context) error {
		return p.store.PutFile(ctx, audioKey, state.audioPath, "audio/wav")
	}); err != nil {
		return apperrors.StorageError(fmt.Sprintf("failed to store normalized audio: %v", err))
	}

	url, err := p.signer.PresignGet(ctx, audioKey, time.Hour)
	if err != nil {
		return apperrors.StorageError(fmt.Sprintf("failed to presign audio: %v", err))
	}
	state.audioURL = url

	return nil
}

// runSTT transcribes, optionally refines dialect text, and merges
// diarization. Transcription failure is fatal; diarization never is.
func (p *Pipeline) runSTT(ctx context.Context, state *jobState) error {
	job := state.job
	if err := p.tracker.SetStage(ctx, job.ID, jobs.StageSTT, 10); err != nil {
		return err
	}

	result, err := apperrors.RetryWithResult(ctx, apperrors.STTRetryConfig(), func(ctx context.Context) (*stt.Result, error) {
		return p.transcriber.Transcribe(ctx, job.ID, state.audioURL, job.SourceLang)
	})
	if err != nil {
		return err
	}

	state.segments = result.Segments

	if result.DetectedLanguage != "" {
		job.DetectedLang = result.DetectedLanguage
		if err := p.tracker.SetDetectedLanguage(ctx, job.ID, result.DetectedLanguage); err != nil {
			p.log.Warn(ctx, "failed to record detected language", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if p.refiner != nil && p.refiner.Enabled() && needsRefinement(job) {
		state.segments = p.refiner.RefineSegments(ctx, state.segments)
	}

	p.tracker.SetProgress(ctx, job.ID, 30)

	p.mergeDiarization(ctx, state)
	p.tracker.SetProgress(ctx, job.ID, 40)

	return nil
}

// runTranslate rewrites segment text into the target language. A failed
// or inconsistent translation keeps the originals untouched.
func (p *Pipeline) runTranslate(ctx context.Context, state *jobState) error {
	job := state.job
	if err := p.tracker.SetStage(ctx, job.ID, jobs.StageTranslate, 45); err != nil {
		return err
	}

	sourceLang := job.SourceLang
	if job.DetectedLang != "" && (sourceLang == "" || sourceLang == "auto") {
		sourceLang = job.DetectedLang
	}

	translated, err := apperrors.RetryWithResult(ctx, apperrors.DefaultRetryConfig(), func(ctx context.Context) ([]segment.Segment, error) {
		return p.translator.Translate(ctx, state.segments, sourceLang, job.TargetLang)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn(ctx, "translation failed, continuing with untranslated text", map[string]interface{}{
			"error": err.Error(),
		})
		p.tracker.SetProgress(ctx, job.ID, 55)
		return nil
	}

	state.segments = translated
	p.tracker.SetProgress(ctx, job.ID, 55)
	return nil
}

func needsRefinement(job *jobs.Job) bool {
	lang := job.SourceLang
	if job.DetectedLang != "" && (lang == "" || lang == "auto") {
		lang = job.DetectedLang
	}
	return dialect.NeedsRefinement(lang)
}
