package media

import (
	"strings"
	"testing"
)

func TestBuildExtractArgs(t *testing.T) {
	args := buildExtractArgs("/tmp/in.mp4", "/tmp/out.wav")
	joined := strings.Join(args, " ")

	for _, want := range []string{"-vn", "-ac 1", "-ar 16000", "afftdn,loudnorm", "/tmp/in.mp4", "/tmp/out.wav"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestNeedsStretch(t *testing.T) {
	tests := []struct {
		name      string
		actual    float64
		target    float64
		want      bool
	}{
		{"exact fit", 2.0, 2.0, false},
		{"within tolerance", 2.05, 2.0, false},
		{"too long", 3.0, 2.0, true},
		{"too short", 1.0, 2.0, true},
		{"zero actual", 0, 2.0, false},
		{"zero target", 2.0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsStretch(tt.actual, tt.target); got != tt.want {
				t.Errorf("NeedsStretch(%v, %v) = %v, want %v", tt.actual, tt.target, got, tt.want)
			}
		})
	}
}

func TestBuildStretchArgsClampsRatio(t *testing.T) {
	tests := []struct {
		name   string
		actual float64
		target float64
		want   string
	}{
		{"moderate stretch", 3.0, 2.0, "atempo=1.500000"},
		{"clamped high", 10.0, 2.0, "atempo=2.000000"},
		{"clamped low", 1.0, 10.0, "atempo=0.500000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := buildStretchArgs("in.mp3", "out.mp3", tt.actual, tt.target)
			joined := strings.Join(args, " ")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("args = %s, want filter %q", joined, tt.want)
			}
		})
	}
}

func TestBuildAssembleArgs(t *testing.T) {
	clips := []TimedClip{
		{Path: "/tmp/seg0.mp3", StartMs: 0},
		{Path: "/tmp/seg1.mp3", StartMs: 1500},
	}

	args := buildAssembleArgs(clips, 10.0, "/tmp/track.wav")
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-i /tmp/seg0.mp3 -i /tmp/seg1.mp3") {
		t.Errorf("inputs missing or out of order: %s", joined)
	}
	if !strings.Contains(joined, "[1:a]adelay=1500[a1]") {
		t.Errorf("missing adelay for second clip: %s", joined)
	}
	if !strings.Contains(joined, "amix=inputs=2:normalize=0[out]") {
		t.Errorf("missing amix filter: %s", joined)
	}
	if !strings.Contains(joined, "-t 10.000") {
		t.Errorf("missing duration cap: %s", joined)
	}
}

func TestBuildMuxArgs(t *testing.T) {
	args := buildMuxArgs("/tmp/video.mp4", "/tmp/track.wav", "/tmp/subs.srt", "/tmp/final.mp4")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-map 0:v",
		"-map 1:a",
		"-c:v libx264",
		"-crf 28",
		"-preset medium",
		"-c:a aac",
		"-b:a 64k",
		"-movflags +faststart",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}

	if !strings.Contains(joined, `subtitles=/tmp/subs.srt`) {
		t.Errorf("missing subtitles filter: %s", joined)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := escapeFilterPath(`C:\media\it's.srt`)
	if !strings.Contains(got, `\:`) || !strings.Contains(got, `\'`) {
		t.Errorf("escapeFilterPath = %q", got)
	}
}
