package segment

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/vocalfuse/backend/internal/errors"
)

// RenderSRT produces an indexed SubRip document from segments. Output is
// deterministic for a given input: same segments, same bytes.
func RenderSRT(segments []Segment) string {
	var b strings.Builder
	for i, s := range segments {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		b.WriteString(formatTimestamp(s.Start, ','))
		b.WriteString(" --> ")
		b.WriteString(formatTimestamp(s.End, ','))
		b.WriteByte('\n')
		b.WriteString(strings.TrimSpace(s.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// RenderVTT produces a WebVTT document from segments.
func RenderVTT(segments []Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, s := range segments {
		b.WriteString(formatTimestamp(s.Start, '.'))
		b.WriteString(" --> ")
		b.WriteString(formatTimestamp(s.End, '.'))
		b.WriteByte('\n')
		b.WriteString(strings.TrimSpace(s.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// ParseSRT reads a SubRip document back into segments. Only timing and
// text survive the round trip; speaker metadata is not encoded in SRT.
func ParseSRT(doc string) ([]Segment, error) {
	blocks := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n\n")
	segments := make([]Segment, 0, len(blocks))

	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.SplitN(block, "\n", 3)
		if len(lines) < 2 {
			return nil, apperrors.MalformedSegments("subtitle block missing timing line")
		}

		// First line is the index, second the timing.
		timing := lines[1]
		parts := strings.Split(timing, " --> ")
		if len(parts) != 2 {
			return nil, apperrors.MalformedSegments(fmt.Sprintf("bad timing line %q", timing))
		}

		start, err := parseTimestamp(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		end, err := parseTimestamp(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, err
		}

		text := ""
		if len(lines) == 3 {
			text = strings.TrimSpace(lines[2])
		}

		segments = append(segments, Segment{Start: start, End: end, Text: text})
	}

	if len(segments) == 0 {
		return nil, apperrors.MalformedSegments("subtitle document has no cues")
	}
	return segments, nil
}

// formatTimestamp renders seconds as HH:MM:SS<sep>mmm. Milliseconds are
// rounded, not truncated, so render/parse round-trips to the millisecond.
func formatTimestamp(seconds float64, msSep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))
	ms := totalMs % 1000
	totalSec := totalMs / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, msSep, ms)
}

func parseTimestamp(ts string) (float64, error) {
	// Accept both the comma and dot millisecond separators.
	ts = strings.Replace(ts, ",", ".", 1)
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, apperrors.MalformedSegments(fmt.Sprintf("bad timestamp %q", ts))
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, apperrors.MalformedSegments(fmt.Sprintf("bad hours in %q", ts))
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, apperrors.MalformedSegments(fmt.Sprintf("bad minutes in %q", ts))
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, apperrors.MalformedSegments(fmt.Sprintf("bad seconds in %q", ts))
	}

	return float64(h)*3600 + float64(m)*60 + sec, nil
}
