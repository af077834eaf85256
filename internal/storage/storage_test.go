package storage

import (
	"testing"

	"github.com/vocalfuse/backend/internal/jobs"
)

func TestSourceKey(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"clip.mp4", "jobs/j1/source.mp4"},
		{"audio.webm", "jobs/j1/source.webm"},
		{"noextension", "jobs/j1/source.mp4"},
	}

	for _, tt := range tests {
		if got := SourceKey("j1", tt.filename); got != tt.want {
			t.Errorf("SourceKey(j1, %q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestArtifactKey(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{jobs.ArtifactTranscriptJSON, "jobs/j1/transcript.json"},
		{jobs.ArtifactSRT, "jobs/j1/subtitles.srt"},
		{jobs.ArtifactVTT, "jobs/j1/subtitles.vtt"},
		{jobs.ArtifactDubbedVideo, "jobs/j1/dubbed.mp4"},
	}

	for _, tt := range tests {
		if got := ArtifactKey("j1", tt.kind); got != tt.want {
			t.Errorf("ArtifactKey(j1, %s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestArtifactContentType(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{jobs.ArtifactTranscriptJSON, "application/json"},
		{jobs.ArtifactSRT, "application/x-subrip"},
		{jobs.ArtifactVTT, "text/vtt"},
		{jobs.ArtifactDubbedVideo, "video/mp4"},
		{"unknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := ArtifactContentType(tt.kind); got != tt.want {
			t.Errorf("ArtifactContentType(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
