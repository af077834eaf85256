package segment

import (
	"fmt"
	"sort"

	apperrors "github.com/vocalfuse/backend/internal/errors"
)

// Segment is a timed utterance flowing through the pipeline. Text is the
// current working text and is overwritten by text-mutating stages;
// OriginalText keeps the transcript as first produced.
type Segment struct {
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Text           string  `json:"text"`
	OriginalText   string  `json:"original_text,omitempty"`
	NormalizedText string  `json:"normalized_text,omitempty"`
	EditedText     string  `json:"edited_text,omitempty"`
	SpeakerID      string  `json:"speaker_id,omitempty"`
	VoiceID        string  `json:"voice_id,omitempty"`
	Gender         string  `json:"gender,omitempty"`
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Validate checks batch well-formedness. Timestamps must be present and
// ordered within each segment; callers reject invalid batches before any
// stage touches them.
func Validate(segments []Segment) error {
	if len(segments) == 0 {
		return apperrors.MalformedSegments("empty segment list")
	}
	for i, s := range segments {
		if s.Start < 0 {
			return apperrors.MalformedSegments(fmt.Sprintf("segment %d: negative start %.3f", i, s.Start))
		}
		// Zero-length cues pass; STT services emit them for point events.
		if s.End < s.Start {
			return apperrors.MalformedSegments(fmt.Sprintf("segment %d: end %.3f before start %.3f", i, s.End, s.Start))
		}
	}
	return nil
}

// SortByStart orders segments by ascending start time, in place.
// Ordering by start is the canonical segment order for every stage.
func SortByStart(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// Clone returns a deep copy of the slice so a stage can mutate its working
// set without touching the previous stage's persisted state.
func Clone(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)
	return out
}
