package sequence

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DelaySeconds converts a step delay to seconds.
// minutes ×60, hours ×3600, days ×86400.
func DelaySeconds(value int, unit DelayUnit) int64 {
	if value < 0 {
		return 0
	}
	switch unit {
	case UnitMinutes:
		return int64(value) * 60
	case UnitHours:
		return int64(value) * 3600
	case UnitDays:
		return int64(value) * 86400
	}
	return 0
}

// BuildStepRuns produces one pending run per step for a fresh enrollment,
// in ascending position order. Every delay is relative to the enrollment
// time, not cumulative from the prior step, so editing one step's delay
// never shifts another step's fire time.
func BuildStepRuns(enrollment *Enrollment, steps []Step) []StepRun {
	ordered := make([]Step, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	runs := make([]StepRun, 0, len(ordered))
	for _, step := range ordered {
		offset := time.Duration(DelaySeconds(step.DelayValue, step.DelayUnit)) * time.Second
		runs = append(runs, StepRun{
			ID:           uuid.New(),
			StepID:       step.ID,
			EnrollmentID: enrollment.ID,
			MemberID:     enrollment.MemberID,
			ScheduledAt:  enrollment.EnrolledAt.Add(offset),
			Status:       RunPending,
		})
	}
	return runs
}

// RetryBackoff computes the delay before a transiently-failed run becomes
// due again: base doubled per prior attempt (base, 2×base, 4×base, ...).
func RetryBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
