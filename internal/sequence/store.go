package sequence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/sequence-engine/internal/event"
	"github.com/lib/pq"
)

// Store handles all SQL for sequences, steps, campaigns, enrollments and
// step runs. Every mutating operation that matters under concurrency is a
// single conditional statement, never a read-then-write pair.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ---------------------------------------------------------------------------
// Sequences

func (s *Store) CreateSequence(ctx context.Context, seq *Sequence) error {
	if seq.ID == uuid.Nil {
		seq.ID = uuid.New()
	}
	if seq.Status == "" {
		seq.Status = StatusDraft
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sequences (id, company_id, name, trigger_event, status, allow_reentry)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		seq.ID, seq.CompanyID, seq.Name, string(seq.TriggerEvent), seq.Status, seq.AllowReentry)
	if err != nil {
		return fmt.Errorf("create sequence: %w", err)
	}
	return nil
}

func (s *Store) GetSequence(ctx context.Context, id uuid.UUID) (*Sequence, error) {
	var seq Sequence
	var trigger string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, name, trigger_event, status, allow_reentry, created_at, updated_at
		FROM sequences WHERE id = $1`, id,
	).Scan(&seq.ID, &seq.CompanyID, &seq.Name, &trigger, &seq.Status, &seq.AllowReentry, &seq.CreatedAt, &seq.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	seq.TriggerEvent = event.Code(trigger)
	return &seq, nil
}

func (s *Store) ListSequences(ctx context.Context, companyID string) ([]Sequence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, name, trigger_event, status, allow_reentry, created_at, updated_at
		FROM sequences WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSequences(rows)
}

// ResolveActive finds the company's active sequences subscribed to the
// canonical event. An empty result is success, not an error.
func (s *Store) ResolveActive(ctx context.Context, companyID string, code event.Code) ([]Sequence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, name, trigger_event, status, allow_reentry, created_at, updated_at
		FROM sequences WHERE company_id = $1 AND trigger_event = $2 AND status = 'active'`,
		companyID, string(code))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSequences(rows)
}

func scanSequences(rows *sql.Rows) ([]Sequence, error) {
	var out []Sequence
	for rows.Next() {
		var seq Sequence
		var trigger string
		if err := rows.Scan(&seq.ID, &seq.CompanyID, &seq.Name, &trigger, &seq.Status,
			&seq.AllowReentry, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return nil, err
		}
		seq.TriggerEvent = event.Code(trigger)
		out = append(out, seq)
	}
	return out, rows.Err()
}

// TransitionSequence moves a sequence along the draft → active ⇄ paused
// machine. The allowed source statuses are part of the WHERE clause, so a
// concurrent transition cannot double-apply.
func (s *Store) TransitionSequence(ctx context.Context, id uuid.UUID, target string) error {
	var from []string
	switch target {
	case StatusActive:
		from = []string{StatusDraft, StatusPaused}
	case StatusPaused:
		from = []string{StatusActive}
	default:
		return ErrInvalidTransition
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sequences SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`,
		id, target, pq.Array(from))
	if err != nil {
		return fmt.Errorf("transition sequence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetSequence(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// ---------------------------------------------------------------------------
// Steps

// CreateStep appends a step to a sequence at position max+1. The position
// is computed inside the INSERT so two concurrent appends cannot read the
// same max; the unique (sequence_id, position) index breaks any remaining
// tie.
func (s *Store) CreateStep(ctx context.Context, step *Step) error {
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	meta, err := json.Marshal(step.Metadata)
	if err != nil {
		return fmt.Errorf("marshal step metadata: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO sequence_steps (id, sequence_id, campaign_id, position, delay_value, delay_unit, metadata)
		SELECT $1, $2, $3, COALESCE(MAX(position), 0) + 1, $4, $5, $6
		FROM sequence_steps WHERE sequence_id = $2
		RETURNING position`,
		step.ID, step.SequenceID, step.CampaignID, step.DelayValue, string(step.DelayUnit), meta,
	).Scan(&step.Position)
	if err != nil {
		return fmt.Errorf("create step: %w", err)
	}
	return nil
}

func (s *Store) GetStep(ctx context.Context, id uuid.UUID) (*Step, error) {
	var step Step
	var unit string
	var meta []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sequence_id, campaign_id, position, delay_value, delay_unit, COALESCE(metadata, '{}'), created_at, updated_at
		FROM sequence_steps WHERE id = $1`, id,
	).Scan(&step.ID, &step.SequenceID, &step.CampaignID, &step.Position, &step.DelayValue, &unit, &meta, &step.CreatedAt, &step.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	step.DelayUnit = DelayUnit(unit)
	json.Unmarshal(meta, &step.Metadata)
	return &step, nil
}

// ListSteps returns a sequence's steps in execution order.
func (s *Store) ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sequence_id, campaign_id, position, delay_value, delay_unit, COALESCE(metadata, '{}'), created_at, updated_at
		FROM sequence_steps WHERE sequence_id = $1 ORDER BY position`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var step Step
		var unit string
		var meta []byte
		if err := rows.Scan(&step.ID, &step.SequenceID, &step.CampaignID, &step.Position,
			&step.DelayValue, &unit, &meta, &step.CreatedAt, &step.UpdatedAt); err != nil {
			return nil, err
		}
		step.DelayUnit = DelayUnit(unit)
		json.Unmarshal(meta, &step.Metadata)
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// StepPatch is a partial update of a step's mutable fields. Nil means
// "leave unchanged".
type StepPatch struct {
	Position   *int
	DelayValue *int
	DelayUnit  *string
}

// Empty reports whether the patch changes nothing.
func (p StepPatch) Empty() bool {
	return p.Position == nil && p.DelayValue == nil && p.DelayUnit == nil
}

// UpdateStep applies a partial patch in place. Already-scheduled runs are
// unaffected: runs are computed once at enrollment time.
func (s *Store) UpdateStep(ctx context.Context, id uuid.UUID, patch StepPatch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sequence_steps SET
			position    = COALESCE($2, position),
			delay_value = COALESCE($3, delay_value),
			delay_unit  = COALESCE($4, delay_unit),
			updated_at  = NOW()
		WHERE id = $1`,
		id, patch.Position, patch.DelayValue, patch.DelayUnit)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPositionTaken
		}
		return fmt.Errorf("update step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStep hard-deletes a step. Surviving steps keep their positions;
// the next append still lands at max+1, so gaps are permanent.
func (s *Store) DeleteStep(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sequence_steps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Campaigns

func (s *Store) CreateCampaign(ctx context.Context, c *Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.SendMode == "" {
		c.SendMode = SendModeManual
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, company_id, subject, from_name, from_email, html_content, send_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.CompanyID, c.Subject, c.FromName, c.FromEmail, c.HTMLContent, c.SendMode)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	var c Campaign
	var seqID uuid.NullUUID
	var autoStatus sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, subject, from_name, from_email, html_content, send_mode,
			automation_sequence_id, automation_status, created_at, updated_at
		FROM campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.CompanyID, &c.Subject, &c.FromName, &c.FromEmail, &c.HTMLContent,
		&c.SendMode, &seqID, &autoStatus, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if seqID.Valid {
		c.AutomationSequenceID = &seqID.UUID
	}
	c.AutomationStatus = autoStatus.String
	return &c, nil
}

// BindCampaign attaches a campaign to a sequence, forcing automation mode.
// One-directional: nothing ever flips a campaign back to manual here.
func (s *Store) BindCampaign(ctx context.Context, campaignID, sequenceID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET send_mode = 'automation', automation_sequence_id = $2, updated_at = NOW()
		WHERE id = $1`,
		campaignID, sequenceID)
	if err != nil {
		return fmt.Errorf("bind campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MirrorAutomationStatus copies the sequence's status onto the campaign.
// Called once at attach time; the mirror is never refreshed afterwards.
func (s *Store) MirrorAutomationStatus(ctx context.Context, campaignID uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET automation_status = $2, updated_at = NOW() WHERE id = $1`,
		campaignID, status)
	if err != nil {
		return fmt.Errorf("mirror automation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Enrollments

// EnrollAndSchedule enrolls a member and schedules one run per step in a
// single transaction; a failure after the enrollment insert rolls the
// enrollment back too, so no run-less active enrollment can survive a
// crash. The enrollment insert is conditional:
// for non-reentry sequences any prior enrollment blocks, for reentry
// sequences only an active one does. The partial unique index on
// (sequence_id, member_id) WHERE status='active' settles concurrent
// duplicates; the loser observes ErrAlreadyEnrolled and stops. Run
// idempotency is scoped per enrollment, so a re-entered member gets a
// fresh schedule instead of colliding with the prior enrollment's rows.
func (s *Store) EnrollAndSchedule(ctx context.Context, seq *Sequence, memberID string, steps []Step, now time.Time) (*Enrollment, error) {
	e := &Enrollment{
		ID:         uuid.New(),
		SequenceID: seq.ID,
		MemberID:   memberID,
		Status:     EnrollmentActive,
		EnrolledAt: now,
	}

	guard := `SELECT 1 FROM enrollments WHERE sequence_id = $2 AND member_id = $3`
	if seq.AllowReentry {
		guard += ` AND status = 'active'`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO enrollments (id, sequence_id, member_id, status, enrolled_at)
		SELECT $1, $2, $3, 'active', $4
		WHERE NOT EXISTS (`+guard+`)`,
		e.ID, e.SequenceID, e.MemberID, e.EnrolledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAlreadyEnrolled
	}

	for _, run := range BuildStepRuns(e, steps) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO step_runs (id, step_id, enrollment_id, member_id, scheduled_at, status)
			VALUES ($1, $2, $3, $4, $5, 'pending')
			ON CONFLICT (enrollment_id, step_id) DO NOTHING`,
			run.ID, run.StepID, run.EnrollmentID, run.MemberID, run.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("schedule step run: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	return e, nil
}

// CloseEnrollmentIfDone marks an enrollment completed once none of its
// runs can still fire. Safe to call after every terminal transition.
func (s *Store) CloseEnrollmentIfDone(ctx context.Context, enrollmentID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE enrollments SET status = 'completed'
		WHERE id = $1 AND status = 'active'
		AND NOT EXISTS (
			SELECT 1 FROM step_runs
			WHERE enrollment_id = $1 AND status IN ('pending', 'sending')
		)`, enrollmentID)
	if err != nil {
		return fmt.Errorf("close enrollment: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Step runs

// ClaimDueRuns atomically claims up to limit due runs for one dispatcher
// pass, flipping them pending → sending. Concurrent workers never claim
// the same row: the inner select takes row locks with SKIP LOCKED and the
// status check rides along in the UPDATE. The returned rows carry the
// campaign content so dispatch needs no further reads.
func (s *Store) ClaimDueRuns(ctx context.Context, workerID string, now time.Time, limit int) ([]ClaimedRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE step_runs
			SET status = 'sending', worker_id = $1, locked_at = $2
			WHERE id IN (
				SELECT r.id FROM step_runs r
				JOIN sequence_steps st ON st.id = r.step_id
				WHERE r.status = 'pending'
				  AND r.scheduled_at <= $2
				ORDER BY r.scheduled_at ASC, st.position ASC
				LIMIT $3
				FOR UPDATE OF r SKIP LOCKED
			)
			RETURNING id, step_id, enrollment_id, member_id, attempt_count
		)
		SELECT
			c.id,
			c.step_id,
			c.enrollment_id,
			c.member_id,
			c.attempt_count,
			st.position,
			camp.id,
			COALESCE(camp.subject, ''),
			COALESCE(camp.from_name, ''),
			COALESCE(camp.from_email, ''),
			COALESCE(camp.html_content, ''),
			seq.company_id,
			seq.id
		FROM claimed c
		JOIN sequence_steps st ON st.id = c.step_id
		JOIN campaigns camp ON camp.id = st.campaign_id
		JOIN sequences seq ON seq.id = st.sequence_id
		ORDER BY st.position
	`, workerID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due runs: %w", err)
	}
	defer rows.Close()

	var claimed []ClaimedRun
	for rows.Next() {
		var c ClaimedRun
		if err := rows.Scan(&c.RunID, &c.StepID, &c.EnrollmentID, &c.MemberID, &c.AttemptCount,
			&c.Position, &c.CampaignID, &c.Subject, &c.FromName, &c.FromEmail, &c.HTMLContent,
			&c.CompanyID, &c.SequenceID); err != nil {
			return nil, err
		}
		claimed = append(claimed, c)
	}
	return claimed, rows.Err()
}

// ReleaseStaleClaims returns runs stuck in 'sending' to 'pending' after a
// worker crash. olderThan should comfortably exceed one send round-trip.
func (s *Store) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE step_runs SET status = 'pending', worker_id = NULL, locked_at = NULL
		WHERE status = 'sending' AND locked_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return res.RowsAffected()
}

// MarkSent records a successful delivery. Guarded on status='sending':
// a sent run is terminal and never revisited.
func (s *Store) MarkSent(ctx context.Context, runID uuid.UUID, now time.Time) error {
	return s.finishRun(ctx,
		`UPDATE step_runs SET status = 'sent', executed_at = $2, worker_id = NULL, locked_at = NULL
		WHERE id = $1 AND status = 'sending'`, runID, now)
}

// MarkSkipped terminates a run without sending (suppressed member).
func (s *Store) MarkSkipped(ctx context.Context, runID uuid.UUID, reason string) error {
	return s.finishRun(ctx,
		`UPDATE step_runs SET status = 'skipped', last_error = $2, worker_id = NULL, locked_at = NULL
		WHERE id = $1 AND status = 'sending'`, runID, reason)
}

// MarkFailed terminates a run permanently. The failed attempt is counted.
func (s *Store) MarkFailed(ctx context.Context, runID uuid.UUID, reason string) error {
	return s.finishRun(ctx,
		`UPDATE step_runs SET status = 'failed', last_error = $2, attempt_count = attempt_count + 1,
			worker_id = NULL, locked_at = NULL
		WHERE id = $1 AND status = 'sending'`, runID, reason)
}

// RescheduleRetry returns a transiently-failed run to pending with a new
// due time, counting the attempt.
func (s *Store) RescheduleRetry(ctx context.Context, runID uuid.UUID, nextAt time.Time, reason string) error {
	return s.finishRun(ctx,
		`UPDATE step_runs SET status = 'pending', scheduled_at = $2, last_error = $3,
			attempt_count = attempt_count + 1, worker_id = NULL, locked_at = NULL
		WHERE id = $1 AND status = 'sending'`, runID, nextAt, reason)
}

func (s *Store) finishRun(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update step run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRunsForEnrollment returns an enrollment's runs, oldest schedule first.
func (s *Store) ListRunsForEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]StepRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, step_id, enrollment_id, member_id, scheduled_at, status, executed_at, attempt_count, COALESCE(last_error, '')
		FROM step_runs WHERE enrollment_id = $1 ORDER BY scheduled_at`, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []StepRun
	for rows.Next() {
		var run StepRun
		if err := rows.Scan(&run.ID, &run.StepID, &run.EnrollmentID, &run.MemberID,
			&run.ScheduledAt, &run.Status, &run.ExecutedAt, &run.AttemptCount, &run.LastError); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
