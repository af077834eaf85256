package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/vocalfuse/backend/internal/diarize"
	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/jobs"
	"github.com/vocalfuse/backend/internal/media"
	"github.com/vocalfuse/backend/internal/segment"
	"github.com/vocalfuse/backend/internal/storage"
)

// diarizeTolerance is the largest per-boundary drift, in seconds,
// allowed between transcription and diarization timestamps before the
// annotations are considered to describe a different segmentation.
const diarizeTolerance = 0.05

// mergeDiarization folds speaker annotations into the transcript. The
// job proceeds with anonymous speakers when diarization fails or
// disagrees with the transcription's segmentation.
func (p *Pipeline) mergeDiarization(ctx context.Context, state *jobState) {
	if p.diarizer == nil {
		return
	}

	annotations, err := apperrors.RetryWithResult(ctx, apperrors.DefaultRetryConfig(), func(ctx context.Context) ([]diarize.Annotation, error) {
		return p.diarizer.Diarize(ctx, state.audioURL, state.segments)
	})
	if err != nil {
		p.log.Warn(ctx, "diarization failed, continuing without speaker labels", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if len(annotations) != len(state.segments) {
		p.log.Warn(ctx, "diarization returned a different segment count, discarding", map[string]interface{}{
			"expected": len(state.segments),
			"received": len(annotations),
		})
		return
	}

	for i, ann := range annotations {
		seg := &state.segments[i]
		if math.Abs(ann.Start-seg.Start) > diarizeTolerance || math.Abs(ann.End-seg.End) > diarizeTolerance {
			p.log.Warn(ctx, "diarization timestamps diverge from transcription, discarding", map[string]interface{}{
				"segment": i,
			})
			return
		}
	}

	for i, ann := range annotations {
		state.segments[i].SpeakerID = ann.SpeakerID
		state.segments[i].VoiceID = ann.VoiceID
		state.segments[i].Gender = ann.Gender
	}
}

// publishTranscriptArtifacts uploads the transcript JSON and both
// subtitle renderings, registering each on the job
func (p *Pipeline) publishTranscriptArtifacts(ctx context.Context, state *jobState) error {
	job := state.job

	transcript, err := json.MarshalIndent(state.segments, "", "  ")
	if err != nil {
		return apperrors.InternalError(fmt.Sprintf("failed to encode transcript: %v", err))
	}

	artifacts := []struct {
		kind string
		body []byte
	}{
		{jobs.ArtifactTranscriptJSON, transcript},
		{jobs.ArtifactSRT, []byte(segment.RenderSRT(state.segments))},
		{jobs.ArtifactVTT, []byte(segment.RenderVTT(state.segments))},
	}

	for _, artifact := range artifacts {
		key := storage.ArtifactKey(job.ID, artifact.kind)
		contentType := storage.ArtifactContentType(artifact.kind)
		body := artifact.body
		if err := apperrors.Retry(ctx, apperrors.StorageRetryConfig(), func(ctx context.Context) error {
			return p.store.PutObject(ctx, key, bytes.NewReader(body), int64(len(body)), contentType)
		}); err != nil {
			return apperrors.StorageError(fmt.Sprintf("failed to store %s artifact: %v", artifact.kind, err))
		}
		if err := p.tracker.RegisterOutput(ctx, job.ID, artifact.kind, key); err != nil {
			return err
		}
	}

	return nil
}

// runTTS synthesizes each segment into a timed audio clip. A segment
// whose voice is unknown falls back to the default voice; a segment
// that still cannot be synthesized is dropped and its span stays
// silent. Exhausted quota and a fully failed batch abort the job.
func (p *Pipeline) runTTS(ctx context.Context, state *jobState) error {
	job := state.job
	if err := p.tracker.SetStage(ctx, job.ID, jobs.StageTTS, 60); err != nil {
		return err
	}

	targetLang := job.TargetLang
	clips := make([]media.TimedClip, 0, len(state.segments))
	failed := 0

	for i, seg := range state.segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		audio, err := p.synthesizeSegment(ctx, text, seg.VoiceID, targetLang)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeQuotaExhausted) || ctx.Err() != nil {
				return err
			}
			failed++
			p.log.Warn(ctx, "segment synthesis failed, leaving span silent", map[string]interface{}{
				"segment": i,
				"error":   err.Error(),
			})
			continue
		}

		rawPath := filepath.Join(state.dir, fmt.Sprintf("clip-%04d-raw.mp3", i))
		if err := os.WriteFile(rawPath, audio, 0o644); err != nil {
			return apperrors.InternalError(fmt.Sprintf("failed to write clip: %v", err))
		}

		clipPath, err := p.fitClipToWindow(ctx, rawPath, state.dir, i, seg.Duration())
		if err != nil {
			return err
		}

		clips = append(clips, media.TimedClip{
			Path:    clipPath,
			StartMs: int64(math.Round(seg.Start * 1000)),
		})
	}

	if len(clips) == 0 && failed > 0 {
		return apperrors.TTSError("synthesis failed for every segment")
	}

	state.clips = clips
	p.tracker.SetProgress(ctx, job.ID, 75)
	return nil
}

// synthesizeSegment tries the segment's assigned voice first and falls
// back to the default voice when that voice does not exist
func (p *Pipeline) synthesizeSegment(ctx context.Context, text, voiceID, language string) ([]byte, error) {
	audio, err := apperrors.RetryWithResult(ctx, apperrors.TTSRetryConfig(), func(ctx context.Context) ([]byte, error) {
		return p.synthesizer.Synthesize(ctx, text, voiceID, language)
	})
	if err == nil {
		return audio, nil
	}

	if apperrors.HasCode(err, apperrors.CodeVoiceNotFound) && voiceID != "" && voiceID != p.synthesizer.DefaultVoiceID() {
		return apperrors.RetryWithResult(ctx, apperrors.TTSRetryConfig(), func(ctx context.Context) ([]byte, error) {
			return p.synthesizer.Synthesize(ctx, text, p.synthesizer.DefaultVoiceID(), language)
		})
	}

	return nil, err
}

// fitClipToWindow time-stretches a clip whose duration strays too far
// from the segment's span on the original timeline
func (p *Pipeline) fitClipToWindow(ctx context.Context, rawPath, dir string, index int, targetSec float64) (string, error) {
	actualSec, err := p.transcoder.Duration(ctx, rawPath)
	if err != nil {
		return "", err
	}
	if targetSec <= 0 || !media.NeedsStretch(actualSec, targetSec) {
		return rawPath, nil
	}

	fittedPath := filepath.Join(dir, fmt.Sprintf("clip-%04d.mp3", index))
	if err := p.transcoder.StretchAudio(ctx, rawPath, fittedPath, actualSec, targetSec); err != nil {
		return "", err
	}
	return fittedPath, nil
}

// runMux assembles the dubbed track, burns subtitles, and uploads the
// final video
func (p *Pipeline) runMux(ctx context.Context, state *jobState) error {
	job := state.job
	if err := p.tracker.SetStage(ctx, job.ID, jobs.StageMux, 80); err != nil {
		return err
	}

	trackPath := filepath.Join(state.dir, "dubbed-track.wav")
	if err := p.transcoder.AssembleTrack(ctx, state.clips, state.duration, trackPath); err != nil {
		return err
	}

	subtitlePath := filepath.Join(state.dir, "subtitles.srt")
	if err := os.WriteFile(subtitlePath, []byte(segment.RenderSRT(state.segments)), 0o644); err != nil {
		return apperrors.InternalError(fmt.Sprintf("failed to write subtitles: %v", err))
	}

	outputPath := filepath.Join(state.dir, "dubbed.mp4")
	if err := p.transcoder.Mux(ctx, state.videoPath, trackPath, subtitlePath, outputPath); err != nil {
		return err
	}

	key := storage.ArtifactKey(job.ID, jobs.ArtifactDubbedVideo)
	if err := apperrors.Retry(ctx, apperrors.StorageRetryConfig(), func(ctx context.Context) error {
		return p.store.PutFile(ctx, key, outputPath, storage.ArtifactContentType(jobs.ArtifactDubbedVideo))
	}); err != nil {
		return apperrors.StorageError(fmt.Sprintf("failed to store dubbed video: %v", err))
	}
	if err := p.tracker.RegisterOutput(ctx, job.ID, jobs.ArtifactDubbedVideo, key); err != nil {
		return err
	}

	return nil
}
