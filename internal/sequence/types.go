// Package sequence holds the automation domain model and its Postgres
// store: sequences, their ordered steps, member enrollments, and the
// per-member step runs that anchor exactly-once dispatch.
package sequence

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/sequence-engine/internal/event"
)

// Sequence statuses. draft → active ⇄ paused; no other transitions.
const (
	StatusDraft  = "draft"
	StatusActive = "active"
	StatusPaused = "paused"
)

// StepRun statuses. pending → sending → {sent | skipped | failed},
// with sending → pending allowed for bounded retries.
const (
	RunPending = "pending"
	RunSending = "sending"
	RunSent    = "sent"
	RunSkipped = "skipped"
	RunFailed  = "failed"
)

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
)

// Campaign send modes. Attaching a step to a sequence forces the
// campaign into automation mode.
const (
	SendModeManual     = "manual"
	SendModeAutomation = "automation"
)

// DelayUnit is the unit a step's delay is expressed in. Closed set.
type DelayUnit string

const (
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
)

// ValidDelayUnit reports whether s names one of the allowed units.
func ValidDelayUnit(s string) bool {
	switch DelayUnit(s) {
	case UnitMinutes, UnitHours, UnitDays:
		return true
	}
	return false
}

var (
	// ErrAlreadyEnrolled is returned when a member already has an
	// enrollment in the sequence. Expected under duplicate webhook
	// delivery; the loser performs no further work.
	ErrAlreadyEnrolled = errors.New("member already enrolled in sequence")

	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for a status change outside the
	// sequence state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPositionTaken is returned when a step patch moves a step onto a
	// position another step in the sequence already holds.
	ErrPositionTaken = errors.New("position already taken in sequence")
)

// Sequence is an ordered, event-triggered list of steps owned by a company.
// TriggerEvent is immutable after creation.
type Sequence struct {
	ID           uuid.UUID  `json:"id"`
	CompanyID    string     `json:"company_id"`
	Name         string     `json:"name"`
	TriggerEvent event.Code `json:"trigger_event"`
	Status       string     `json:"status"`
	AllowReentry bool       `json:"allow_reentry"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanTransition reports whether a sequence may move from its current
// status to target. draft activates; active and paused toggle.
func (s *Sequence) CanTransition(target string) bool {
	switch s.Status {
	case StatusDraft:
		return target == StatusActive
	case StatusActive:
		return target == StatusPaused
	case StatusPaused:
		return target == StatusActive
	}
	return false
}

// Step is one email in a sequence. Position is 1-based and unique within
// the sequence; gaps are permitted after deletions. Delay is relative to
// enrollment time, not to the prior step.
type Step struct {
	ID         uuid.UUID         `json:"id"`
	SequenceID uuid.UUID         `json:"sequence_id"`
	CampaignID uuid.UUID         `json:"campaign_id"`
	Position   int               `json:"position"`
	DelayValue int               `json:"delay_value"`
	DelayUnit  DelayUnit         `json:"delay_unit"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Campaign is the sendable content a step references. AutomationStatus
// mirrors the owning sequence's status at attach time only; it is not
// kept in sync afterwards.
type Campaign struct {
	ID                   uuid.UUID  `json:"id"`
	CompanyID            string     `json:"company_id"`
	Subject              string     `json:"subject"`
	FromName             string     `json:"from_name"`
	FromEmail            string     `json:"from_email"`
	HTMLContent          string     `json:"html_content"`
	SendMode             string     `json:"send_mode"`
	AutomationSequenceID *uuid.UUID `json:"automation_sequence_id,omitempty"`
	AutomationStatus     string     `json:"automation_status,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Enrollment is a member's single participation instance in a sequence.
// Created once per qualifying event, never mutated except to close it.
type Enrollment struct {
	ID         uuid.UUID `json:"id"`
	SequenceID uuid.UUID `json:"sequence_id"`
	MemberID   string    `json:"member_id"`
	Status     string    `json:"status"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// StepRun is one scheduled/executed instance of a step for one member.
// The unique (enrollment_id, step_id) pair is the system's idempotency
// anchor; duplicate deliveries are already stopped at the enrollment.
type StepRun struct {
	ID           uuid.UUID  `json:"id"`
	StepID       uuid.UUID  `json:"step_id"`
	EnrollmentID uuid.UUID  `json:"enrollment_id"`
	MemberID     string     `json:"member_id"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Status       string     `json:"status"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	AttemptCount int        `json:"attempt_count"`
	LastError    string     `json:"last_error,omitempty"`
}

// ClaimedRun is a step run claimed by a dispatcher worker, joined with
// everything needed to send it without further lookups.
type ClaimedRun struct {
	RunID        uuid.UUID
	StepID       uuid.UUID
	EnrollmentID uuid.UUID
	MemberID     string
	AttemptCount int
	Position     int
	CampaignID   uuid.UUID
	Subject      string
	FromName     string
	FromEmail    string
	HTMLContent  string
	CompanyID    string
	SequenceID   uuid.UUID
}
