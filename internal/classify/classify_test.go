package classify_test

import (
	"testing"

	"github.com/vaultmind/memcore/internal/classify"
	"github.com/vaultmind/memcore/pkg/types"
)

func TestClassify_Task(t *testing.T) {
	if got := classify.Classify("Finish the quarterly report, deadline Friday"); got != types.TypeTask {
		t.Errorf("want task, got %s", got)
	}
}

func TestClassify_Preference(t *testing.T) {
	if got := classify.Classify("I prefer dark roast coffee over light roast"); got != types.TypePreference {
		t.Errorf("want preference, got %s", got)
	}
}

func TestClassify_Emotion(t *testing.T) {
	if got := classify.Classify("I felt really happy about the news today"); got != types.TypeEmotion {
		t.Errorf("want emotion, got %s", got)
	}
}

func TestClassify_Procedure(t *testing.T) {
	if got := classify.Classify("Here is how to restart the service safely"); got != types.TypeProcedure {
		t.Errorf("want procedure, got %s", got)
	}
}

func TestClassify_FactDefault(t *testing.T) {
	if got := classify.Classify("Paris is the capital of France"); got != types.TypeFact {
		t.Errorf("want fact, got %s", got)
	}
}

func TestClassify_ThreadFallback(t *testing.T) {
	if got := classify.Classify("xyz qux plonk zibble"); got != types.TypeThread {
		t.Errorf("want thread, got %s", got)
	}
}

func TestScore_HighImportance(t *testing.T) {
	got := classify.Score("The password for prod is X — deadline tomorrow")
	if got < 0.9 {
		t.Errorf("want importance >= 0.9, got %f", got)
	}
}

func TestScore_LowImportance(t *testing.T) {
	got := classify.Score("the weather is nice and everything is fine")
	if got > 0.4 {
		t.Errorf("want importance <= 0.4, got %f", got)
	}
}

func TestScore_ClampsToRange(t *testing.T) {
	got := classify.Score("")
	if got < 0.1 || got > 1.0 {
		t.Errorf("score must be clamped to [0.1, 1.0], got %f", got)
	}
}

func TestScore_LongContentBoost(t *testing.T) {
	short := classify.Score("a plain short note")
	long := classify.Score(repeat("a plain note about nothing special ", 10))
	if long <= short {
		t.Errorf("longer content should score higher: short=%f long=%f", short, long)
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
