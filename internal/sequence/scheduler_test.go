package sequence

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDelaySeconds(t *testing.T) {
	tests := []struct {
		name  string
		value int
		unit  DelayUnit
		want  int64
	}{
		{"zero minutes", 0, UnitMinutes, 0},
		{"one minute", 1, UnitMinutes, 60},
		{"ninety minutes", 90, UnitMinutes, 5400},
		{"one hour", 1, UnitHours, 3600},
		{"one day", 1, UnitDays, 86400},
		{"two days", 2, UnitDays, 172800},
		{"negative clamps to zero", -5, UnitHours, 0},
		{"unknown unit", 10, DelayUnit("weeks"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DelaySeconds(tt.value, tt.unit); got != tt.want {
				t.Errorf("DelaySeconds(%d, %q) = %d, want %d", tt.value, tt.unit, got, tt.want)
			}
		})
	}
}

func TestBuildStepRuns(t *testing.T) {
	enrolledAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	enrollment := &Enrollment{
		ID:         uuid.New(),
		SequenceID: uuid.New(),
		MemberID:   "mem_1",
		Status:     EnrollmentActive,
		EnrolledAt: enrolledAt,
	}

	// Steps intentionally out of position order, with a positional gap.
	steps := []Step{
		{ID: uuid.New(), Position: 3, DelayValue: 1, DelayUnit: UnitDays},
		{ID: uuid.New(), Position: 1, DelayValue: 0, DelayUnit: UnitMinutes},
		{ID: uuid.New(), Position: 4, DelayValue: 2, DelayUnit: UnitDays},
	}

	runs := BuildStepRuns(enrollment, steps)
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}

	// Ascending position order: 1, 3, 4
	if runs[0].StepID != steps[1].ID {
		t.Error("first run should belong to position 1")
	}
	if !runs[0].ScheduledAt.Equal(enrolledAt) {
		t.Errorf("position 1 scheduled at %v, want enrollment time", runs[0].ScheduledAt)
	}
	if !runs[1].ScheduledAt.Equal(enrolledAt.Add(24 * time.Hour)) {
		t.Errorf("position 3 scheduled at %v, want +86400s", runs[1].ScheduledAt)
	}
	if !runs[2].ScheduledAt.Equal(enrolledAt.Add(48 * time.Hour)) {
		t.Errorf("position 4 scheduled at %v, want +172800s", runs[2].ScheduledAt)
	}

	for i, run := range runs {
		if run.Status != RunPending {
			t.Errorf("run %d status = %q, want pending", i, run.Status)
		}
		if run.MemberID != "mem_1" {
			t.Errorf("run %d member = %q", i, run.MemberID)
		}
		if run.EnrollmentID != enrollment.ID {
			t.Errorf("run %d not bound to enrollment", i)
		}
	}
}

// With delays non-decreasing in position order, scheduled times must be
// non-decreasing too (ties allowed: several steps may share a due time).
func TestBuildStepRunsMonotonic(t *testing.T) {
	enrollment := &Enrollment{ID: uuid.New(), MemberID: "mem_2", EnrolledAt: time.Now().UTC()}
	steps := []Step{
		{ID: uuid.New(), Position: 1, DelayValue: 0, DelayUnit: UnitMinutes},
		{ID: uuid.New(), Position: 2, DelayValue: 0, DelayUnit: UnitMinutes},
		{ID: uuid.New(), Position: 3, DelayValue: 30, DelayUnit: UnitMinutes},
		{ID: uuid.New(), Position: 4, DelayValue: 1, DelayUnit: UnitHours},
		{ID: uuid.New(), Position: 5, DelayValue: 1, DelayUnit: UnitDays},
	}

	runs := BuildStepRuns(enrollment, steps)
	for i := 1; i < len(runs); i++ {
		if runs[i].ScheduledAt.Before(runs[i-1].ScheduledAt) {
			t.Errorf("run %d due %v before run %d due %v", i, runs[i].ScheduledAt, i-1, runs[i-1].ScheduledAt)
		}
	}
}

func TestBuildStepRunsEmpty(t *testing.T) {
	enrollment := &Enrollment{ID: uuid.New(), MemberID: "mem_3", EnrolledAt: time.Now().UTC()}
	if runs := BuildStepRuns(enrollment, nil); len(runs) != 0 {
		t.Errorf("no steps should produce no runs, got %d", len(runs))
	}
}

func TestRetryBackoff(t *testing.T) {
	base := time.Minute
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{0, time.Minute}, // clamped
	}
	for _, tt := range tests {
		if got := RetryBackoff(base, tt.attempt); got != tt.want {
			t.Errorf("RetryBackoff(1m, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
