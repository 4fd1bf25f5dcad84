package sequence

import "testing"

func TestSequenceCanTransition(t *testing.T) {
	tests := []struct {
		name   string
		from   string
		target string
		want   bool
	}{
		{"draft to active", StatusDraft, StatusActive, true},
		{"active to paused", StatusActive, StatusPaused, true},
		{"paused to active", StatusPaused, StatusActive, true},
		{"draft to paused", StatusDraft, StatusPaused, false},
		{"active to draft", StatusActive, StatusDraft, false},
		{"paused to draft", StatusPaused, StatusDraft, false},
		{"active to active", StatusActive, StatusActive, false},
		{"unknown status", "archived", StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := &Sequence{Status: tt.from}
			if got := seq.CanTransition(tt.target); got != tt.want {
				t.Errorf("CanTransition(%q→%q) = %v, want %v", tt.from, tt.target, got, tt.want)
			}
		})
	}
}

func TestValidDelayUnit(t *testing.T) {
	for _, unit := range []string{"minutes", "hours", "days"} {
		if !ValidDelayUnit(unit) {
			t.Errorf("%q should be a valid unit", unit)
		}
	}
	for _, unit := range []string{"seconds", "weeks", "", "Minutes"} {
		if ValidDelayUnit(unit) {
			t.Errorf("%q should not be a valid unit", unit)
		}
	}
}
