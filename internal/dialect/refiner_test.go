package dialect

import (
	"context"
	"errors"
	"testing"

	"github.com/vocalfuse/backend/internal/segment"
)

type fakeCorrector struct {
	results map[string]*Refinement
	err     error
	calls   int
}

func (f *fakeCorrector) Correct(ctx context.Context, text string) (*Refinement, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if ref, ok := f.results[text]; ok {
		return ref, nil
	}
	return &Refinement{Corrected: text, Score: 1}, nil
}

func (f *fakeCorrector) Enabled() bool { return true }

func TestNeedsRefinement(t *testing.T) {
	tests := []struct {
		lang string
		want bool
	}{
		{"tn", true},
		{"TN", true},
		{"aeb", true},
		{"en", false},
		{"fr", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := NeedsRefinement(tt.lang); got != tt.want {
			t.Errorf("NeedsRefinement(%q) = %v, want %v", tt.lang, got, tt.want)
		}
	}
}

func TestRefineSegments(t *testing.T) {
	corrector := &fakeCorrector{
		results: map[string]*Refinement{
			"chnia hwelek": {Corrected: "chniya hwalek", English: "how are you", Score: 0.9},
		},
	}
	refiner := NewRefiner(corrector, nil)

	segments := []segment.Segment{
		{Start: 0, End: 1, Text: "chnia hwelek"},
		{Start: 1, End: 2, Text: ""},
	}

	got := refiner.RefineSegments(context.Background(), segments)

	if got[0].Text != "chniya hwalek" {
		t.Errorf("refined text = %q, want chniya hwalek", got[0].Text)
	}
	if got[0].NormalizedText != "chnia hwelek" {
		t.Errorf("NormalizedText = %q, want original text", got[0].NormalizedText)
	}
	// Empty segments never reach the helper.
	if corrector.calls != 1 {
		t.Errorf("corrector called %d times, want 1", corrector.calls)
	}
	// Input slice stays untouched.
	if segments[0].Text != "chnia hwelek" {
		t.Error("input slice was mutated")
	}
}

func TestRefineSegmentsDegradesOnFailure(t *testing.T) {
	corrector := &fakeCorrector{err: errors.New("helper crashed")}
	refiner := NewRefiner(corrector, nil)

	segments := []segment.Segment{
		{Start: 0, End: 1, Text: "some text"},
		{Start: 1, End: 2, Text: "more text"},
	}

	got := refiner.RefineSegments(context.Background(), segments)

	for i := range got {
		if got[i].Text != segments[i].Text {
			t.Errorf("segment %d text changed despite failure: %q", i, got[i].Text)
		}
	}
}

func TestRefineSegmentsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	corrector := &fakeCorrector{}
	refiner := NewRefiner(corrector, nil)

	segments := []segment.Segment{{Start: 0, End: 1, Text: "text"}}
	got := refiner.RefineSegments(ctx, segments)

	if corrector.calls != 0 {
		t.Errorf("corrector called %d times after cancel, want 0", corrector.calls)
	}
	if got[0].Text != "text" {
		t.Errorf("text = %q, want unchanged", got[0].Text)
	}
}
