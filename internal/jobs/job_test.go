package jobs

import "testing"

func TestAdvanceStage(t *testing.T) {
	job := &Job{Status: StatusProcessing}

	if err := job.advanceStage(StageUpload, 5); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}
	if err := job.advanceStage(StageSTT, 10); err != nil {
		t.Fatalf("forward transition failed: %v", err)
	}

	// Backward transitions are rejected.
	if err := job.advanceStage(StageUpload, 50); err == nil {
		t.Error("expected error moving stage backward")
	}

	// Progress must strictly increase.
	if err := job.advanceStage(StageTranslate, 10); err == nil {
		t.Error("expected error for non-increasing progress")
	}
	if err := job.advanceStage(StageTranslate, 9); err == nil {
		t.Error("expected error for decreasing progress")
	}

	// Re-entering the same stage with higher progress is allowed.
	if err := job.advanceStage(StageSTT, 30); err != nil {
		t.Errorf("same-stage progress bump failed: %v", err)
	}

	if err := job.advanceStage("unknown", 99); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestStageRank(t *testing.T) {
	order := []string{StageUpload, StageSTT, StageTranslate, StageTTS, StageMux}
	for i := 1; i < len(order); i++ {
		if StageRank(order[i]) <= StageRank(order[i-1]) {
			t.Errorf("stage %s should rank after %s", order[i], order[i-1])
		}
	}
	if StageRank("bogus") != -1 {
		t.Error("unknown stage should rank -1")
	}
}

func TestNeedsTranslation(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"transcribe never translates", Job{Mode: ModeTranscribe, SourceLang: "en", TargetLang: "fr"}, false},
		{"translate with differing langs", Job{Mode: ModeTranslate, SourceLang: "en", TargetLang: "fr"}, true},
		{"dub with differing langs", Job{Mode: ModeDub, SourceLang: "en", TargetLang: "fr"}, true},
		{"same language skips translate", Job{Mode: ModeDub, SourceLang: "en", TargetLang: "en"}, false},
		{"no target language", Job{Mode: ModeTranslate, SourceLang: "en"}, false},
		{"auto source uses detected", Job{Mode: ModeDub, SourceLang: "auto", DetectedLang: "fr", TargetLang: "fr"}, false},
		{"auto source detected differs", Job{Mode: ModeDub, SourceLang: "auto", DetectedLang: "en", TargetLang: "fr"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.NeedsTranslation(); got != tt.want {
				t.Errorf("NeedsTranslation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidMode(t *testing.T) {
	for _, mode := range []string{ModeTranscribe, ModeTranslate, ModeDub} {
		if !ValidMode(mode) {
			t.Errorf("ValidMode(%q) = false", mode)
		}
	}
	if ValidMode("remix") {
		t.Error("ValidMode(remix) = true")
	}
}

func TestIsTerminal(t *testing.T) {
	if (&Job{Status: StatusProcessing}).IsTerminal() {
		t.Error("processing job should not be terminal")
	}
	if !(&Job{Status: StatusDone}).IsTerminal() {
		t.Error("done job should be terminal")
	}
	if !(&Job{Status: StatusFailed}).IsTerminal() {
		t.Error("failed job should be terminal")
	}
}
