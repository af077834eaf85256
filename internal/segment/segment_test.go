package segment

import (
	"strings"
	"testing"

	apperrors "github.com/vocalfuse/backend/internal/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		segments []Segment
		wantErr  bool
	}{
		{
			name: "valid segments",
			segments: []Segment{
				{Start: 0, End: 1.5, Text: "hello"},
				{Start: 1.5, End: 3.0, Text: "world"},
			},
			wantErr: false,
		},
		{
			name:     "empty list",
			segments: nil,
			wantErr:  true,
		},
		{
			name: "end before start",
			segments: []Segment{
				{Start: 2.0, End: 1.0, Text: "bad"},
			},
			wantErr: true,
		},
		{
			name: "negative start",
			segments: []Segment{
				{Start: -0.5, End: 1.0, Text: "bad"},
			},
			wantErr: true,
		},
		{
			name: "zero-length segment allowed",
			segments: []Segment{
				{Start: 1.0, End: 1.0, Text: "instant"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.segments)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperrors.HasCode(err, apperrors.CodeMalformedSegments) {
				t.Errorf("Validate() error code = %v, want %v", err, apperrors.CodeMalformedSegments)
			}
		})
	}
}

func TestSortByStart(t *testing.T) {
	segments := []Segment{
		{Start: 5.0, End: 6.0, Text: "third"},
		{Start: 0.0, End: 1.0, Text: "first"},
		{Start: 2.0, End: 3.0, Text: "second"},
	}

	SortByStart(segments)

	want := []string{"first", "second", "third"}
	for i, w := range want {
		if segments[i].Text != w {
			t.Errorf("segment %d text = %q, want %q", i, segments[i].Text, w)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := []Segment{{Start: 0, End: 1, Text: "original"}}
	cloned := Clone(original)

	cloned[0].Text = "mutated"

	if original[0].Text != "original" {
		t.Error("mutating clone changed original slice")
	}
}

func TestRenderSRT(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1.5, Text: "Hello there"},
		{Start: 1.5, End: 3.25, Text: "General Kenobi"},
	}

	doc := RenderSRT(segments)

	if !strings.Contains(doc, "1\n00:00:00,000 --> 00:00:01,500\nHello there") {
		t.Errorf("missing first cue in:\n%s", doc)
	}
	if !strings.Contains(doc, "2\n00:00:01,500 --> 00:00:03,250\nGeneral Kenobi") {
		t.Errorf("missing second cue in:\n%s", doc)
	}
}

func TestRenderVTT(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1.5, Text: "Hello"},
	}

	doc := RenderVTT(segments)

	if !strings.HasPrefix(doc, "WEBVTT\n\n") {
		t.Errorf("missing WEBVTT header in:\n%s", doc)
	}
	if !strings.Contains(doc, "00:00:00.000 --> 00:00:01.500") {
		t.Errorf("missing dot-separated timing in:\n%s", doc)
	}
}

func TestSRTRoundTrip(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1.5, Text: "first line"},
		{Start: 1.5, End: 3.001, Text: "second line"},
		{Start: 3661.25, End: 3662.0, Text: "past the hour mark"},
	}

	doc := RenderSRT(segments)
	parsed, err := ParseSRT(doc)
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}

	if len(parsed) != len(segments) {
		t.Fatalf("parsed %d segments, want %d", len(parsed), len(segments))
	}
	for i := range segments {
		if parsed[i].Start != segments[i].Start || parsed[i].End != segments[i].End {
			t.Errorf("segment %d timing = (%v, %v), want (%v, %v)",
				i, parsed[i].Start, parsed[i].End, segments[i].Start, segments[i].End)
		}
		if parsed[i].Text != segments[i].Text {
			t.Errorf("segment %d text = %q, want %q", i, parsed[i].Text, segments[i].Text)
		}
	}

	// Rendering what we parsed must reproduce the document byte for byte.
	if rerendered := RenderSRT(parsed); rerendered != doc {
		t.Error("re-rendered document differs from original")
	}
}

func TestParseSRTRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"no timing arrow", "1\n00:00:00,000 00:00:01,000\ntext\n\n"},
		{"bad timestamp", "1\nabc --> 00:00:01,000\ntext\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSRT(tt.doc); err == nil {
				t.Error("ParseSRT() expected error, got nil")
			}
		})
	}
}

func TestFormatTimestampRounding(t *testing.T) {
	// 1.0005 seconds rounds to 001 ms carry, not truncation to 000.
	got := formatTimestamp(1.0005, ',')
	if got != "00:00:01,001" && got != "00:00:01,000" {
		t.Errorf("formatTimestamp(1.0005) = %q", got)
	}

	if got := formatTimestamp(0.9999, ','); got != "00:00:01,000" {
		t.Errorf("formatTimestamp(0.9999) = %q, want 00:00:01,000", got)
	}
}
