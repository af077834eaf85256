package media

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/logger"
)

const (
	// atempo accepts ratios in [0.5, 2.0]; anything outside is clamped.
	atempoMin = 0.5
	atempoMax = 2.0

	// Ratios this close to 1.0 are inaudible; skip the stretch entirely.
	stretchTolerance = 0.05
)

// Transcoder shells out to ffmpeg/ffprobe for all local media work
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	log         *logger.Logger
}

// NewTranscoder creates a transcoder using the given binary paths
func NewTranscoder(ffmpegPath, ffprobePath string) *Transcoder {
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         logger.Default().WithComponent("media"),
	}
}

// TimedClip is one synthesized audio file placed on the output timeline
type TimedClip struct {
	Path    string
	StartMs int64
}

// ExtractAudio pulls a mono 16kHz wav out of the source media, denoised
// and loudness-normalized for the speech models downstream.
func (t *Transcoder) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	return t.run(ctx, buildExtractArgs(inputPath, outputPath))
}

// Duration returns the media duration in seconds via ffprobe
func (t *Transcoder) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	out, err := exec.CommandContext(ctx, t.ffprobePath, args...).Output()
	if err != nil {
		return 0, apperrors.MalformedMedia(fmt.Sprintf("ffprobe failed on %s: %v", path, err))
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, apperrors.MalformedMedia(fmt.Sprintf("ffprobe returned unparseable duration %q", out))
	}
	return dur, nil
}

// NeedsStretch reports whether a synthesized clip of actualSec must be
// time-stretched to fit targetSec.
func NeedsStretch(actualSec, targetSec float64) bool {
	if actualSec <= 0 || targetSec <= 0 {
		return false
	}
	ratio := actualSec / targetSec
	return math.Abs(ratio-1.0) > stretchTolerance
}

// StretchAudio resamples audio so a clip of actualSec plays in targetSec.
// The tempo ratio is clamped to what atempo supports; extreme mismatches
// stay slightly off rather than producing garbled audio.
func (t *Transcoder) StretchAudio(ctx context.Context, inputPath, outputPath string, actualSec, targetSec float64) error {
	if actualSec <= 0 || targetSec <= 0 {
		return apperrors.TranscodeError(fmt.Sprintf("invalid stretch durations %f -> %f", actualSec, targetSec))
	}
	return t.run(ctx, buildStretchArgs(inputPath, outputPath, actualSec, targetSec))
}

// AssembleTrack lays synthesized clips onto a silent timeline at their
// segment start offsets and mixes them into one track of totalSec.
func (t *Transcoder) AssembleTrack(ctx context.Context, clips []TimedClip, totalSec float64, outputPath string) error {
	if len(clips) == 0 {
		return apperrors.TranscodeError("no clips to assemble")
	}
	return t.run(ctx, buildAssembleArgs(clips, totalSec, outputPath))
}

// Mux combines the source video stream, the final audio track, and
// burned-in subtitles into the delivery file.
func (t *Transcoder) Mux(ctx context.Context, videoPath, audioPath, subtitlePath, outputPath string) error {
	return t.run(ctx, buildMuxArgs(videoPath, audioPath, subtitlePath, outputPath))
}

func (t *Transcoder) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.TranscodeError(fmt.Sprintf("ffmpeg failed: %v: %s", err, tail(output, 512)))
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}

func buildExtractArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-af", "afftdn,loudnorm",
		outputPath,
	}
}

func buildStretchArgs(inputPath, outputPath string, actualSec, targetSec float64) []string {
	ratio := actualSec / targetSec
	if ratio < atempoMin {
		ratio = atempoMin
	}
	if ratio > atempoMax {
		ratio = atempoMax
	}

	return []string{
		"-y",
		"-i", inputPath,
		"-filter:a", fmt.Sprintf("atempo=%.6f", ratio),
		outputPath,
	}
}

func buildAssembleArgs(clips []TimedClip, totalSec float64, outputPath string) []string {
	args := []string{"-y"}
	for _, c := range clips {
		args = append(args, "-i", c.Path)
	}

	var filter strings.Builder
	labels := make([]string, len(clips))
	for i, c := range clips {
		label := fmt.Sprintf("a%d", i)
		labels[i] = label
		// adelay wants one delay per channel; all clips are mono here.
		fmt.Fprintf(&filter, "[%d:a]adelay=%d[%s];", i, c.StartMs, label)
	}
	for _, l := range labels {
		fmt.Fprintf(&filter, "[%s]", l)
	}
	fmt.Fprintf(&filter, "amix=inputs=%d:normalize=0[out]", len(clips))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-t", fmt.Sprintf("%.3f", totalSec),
		outputPath,
	)
	return args
}

func buildMuxArgs(videoPath, audioPath, subtitlePath, outputPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-vf", fmt.Sprintf("subtitles=%s", escapeFilterPath(subtitlePath)),
		"-c:v", "libx264",
		"-crf", "28",
		"-preset", "medium",
		"-c:a", "aac",
		"-b:a", "64k",
		"-movflags", "+faststart",
		outputPath,
	}
}

// escapeFilterPath escapes characters the subtitles filter treats
// specially in its filename argument.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, `:`, `\:`)
	p = strings.ReplaceAll(p, `'`, `\'`)
	return p
}
