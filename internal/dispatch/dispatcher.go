// Package dispatch executes due step runs. Any number of dispatcher
// workers may run concurrently across processes; exactly-once delivery
// rests entirely on the store's atomic pending → sending claim, never on
// in-memory locking.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/sequence-engine/internal/mailer"
	"github.com/ignite/sequence-engine/internal/member"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/sequence"
)

// Store is the slice of the sequence store the dispatcher needs.
type Store interface {
	ClaimDueRuns(ctx context.Context, workerID string, now time.Time, limit int) ([]sequence.ClaimedRun, error)
	ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)
	MarkSent(ctx context.Context, runID uuid.UUID, now time.Time) error
	MarkSkipped(ctx context.Context, runID uuid.UUID, reason string) error
	MarkFailed(ctx context.Context, runID uuid.UUID, reason string) error
	RescheduleRetry(ctx context.Context, runID uuid.UUID, nextAt time.Time, reason string) error
	CloseEnrollmentIfDone(ctx context.Context, enrollmentID uuid.UUID) error
}

// Config tunes one dispatcher instance.
type Config struct {
	NumWorkers   int
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	LockTimeout  time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:   4,
		BatchSize:    50,
		PollInterval: 5 * time.Second,
		MaxAttempts:  5,
		BackoffBase:  time.Minute,
		LockTimeout:  15 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.NumWorkers <= 0 {
		c.NumWorkers = d.NumWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = d.LockTimeout
	}
}

// Dispatcher claims and executes due step runs.
type Dispatcher struct {
	store     Store
	directory member.Directory
	sender    mailer.Sender
	renderer  *mailer.Renderer
	workerID  string
	config    Config
	now       func() time.Time

	// Stats
	totalSent    int64
	totalSkipped int64
	totalFailed  int64
	totalRetried int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func New(store Store, directory member.Directory, sender mailer.Sender, config Config) *Dispatcher {
	config.applyDefaults()
	return &Dispatcher{
		store:     store,
		directory: directory,
		sender:    sender,
		renderer:  mailer.NewRenderer(),
		workerID:  fmt.Sprintf("dispatch-%s", uuid.New().String()[:8]),
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the time source. Tests only.
func (d *Dispatcher) SetNow(now func() time.Time) { d.now = now }

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	logger.Info("dispatcher starting",
		"worker_id", d.workerID,
		"workers", d.config.NumWorkers,
		"batch_size", d.config.BatchSize)

	for i := 0; i < d.config.NumWorkers; i++ {
		d.wg.Add(1)
		go d.workerLoop()
	}
}

// Stop drains the pool and waits for in-flight sends.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	logger.Info("dispatcher stopped",
		"sent", atomic.LoadInt64(&d.totalSent),
		"skipped", atomic.LoadInt64(&d.totalSkipped),
		"failed", atomic.LoadInt64(&d.totalFailed),
		"retried", atomic.LoadInt64(&d.totalRetried))
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"total_sent":    atomic.LoadInt64(&d.totalSent),
		"total_skipped": atomic.LoadInt64(&d.totalSkipped),
		"total_failed":  atomic.LoadInt64(&d.totalFailed),
		"total_retried": atomic.LoadInt64(&d.totalRetried),
	}
}

func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.RunPass(d.ctx)
		}
	}
}

// RunPass performs one dispatch pass: free crashed workers' claims, then
// claim and execute a batch of due runs. Exported so a timer, a test, or
// an operator endpoint can drive passes directly.
func (d *Dispatcher) RunPass(ctx context.Context) {
	now := d.now()

	if n, err := d.store.ReleaseStaleClaims(ctx, now.Add(-d.config.LockTimeout)); err != nil {
		logger.Error("release stale claims failed", "error", err)
	} else if n > 0 {
		logger.Warn("released stale claims", "count", n)
	}

	claimed, err := d.store.ClaimDueRuns(ctx, d.workerID, now, d.config.BatchSize)
	if err != nil {
		logger.Error("claim due runs failed", "error", err)
		return
	}

	for i := range claimed {
		if ctx.Err() != nil {
			return
		}
		d.processRun(ctx, &claimed[i])
	}
}

// processRun takes one claimed run to a terminal status or back to
// pending for a bounded retry.
func (d *Dispatcher) processRun(ctx context.Context, run *sequence.ClaimedRun) {
	profile, err := d.directory.Lookup(ctx, run.MemberID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			d.failRun(ctx, run, "member not found: "+run.MemberID)
			return
		}
		// Directory outage: retry the run later, bounded as usual.
		d.retryRun(ctx, run, "member lookup: "+err.Error())
		return
	}

	if profile.Suppressed() {
		if err := d.store.MarkSkipped(ctx, run.RunID, "member "+profile.Status); err != nil {
			logger.Error("mark skipped failed", "run_id", run.RunID.String(), "error", err)
			return
		}
		atomic.AddInt64(&d.totalSkipped, 1)
		logger.Info("step run skipped",
			"run_id", run.RunID.String(),
			"member_id", run.MemberID,
			"reason", profile.Status)
		d.store.CloseEnrollmentIfDone(ctx, run.EnrollmentID)
		return
	}

	msg, err := d.buildMessage(run, profile)
	if err != nil {
		// Broken campaign template: no retry can fix it.
		d.failRun(ctx, run, err.Error())
		return
	}

	if _, err := d.sender.Send(ctx, msg); err != nil {
		if mailer.IsPermanent(err) {
			d.failRun(ctx, run, err.Error())
		} else {
			d.retryRun(ctx, run, err.Error())
		}
		return
	}

	if err := d.store.MarkSent(ctx, run.RunID, d.now()); err != nil {
		logger.Error("mark sent failed", "run_id", run.RunID.String(), "error", err)
		return
	}
	atomic.AddInt64(&d.totalSent, 1)
	logger.Info("step run sent",
		"run_id", run.RunID.String(),
		"member_id", run.MemberID,
		"campaign_id", run.CampaignID.String(),
		"position", run.Position)
	d.store.CloseEnrollmentIfDone(ctx, run.EnrollmentID)
}

func (d *Dispatcher) buildMessage(run *sequence.ClaimedRun, profile *member.Profile) (*mailer.Message, error) {
	vars := mailer.MergeVars(run.MemberID, profile.Email, profile.Name, run.CompanyID)

	subject, err := d.renderer.Render(run.Subject, vars)
	if err != nil {
		return nil, fmt.Errorf("campaign %s subject: %w", run.CampaignID, err)
	}
	html, err := d.renderer.Render(run.HTMLContent, vars)
	if err != nil {
		return nil, fmt.Errorf("campaign %s body: %w", run.CampaignID, err)
	}

	return &mailer.Message{
		RunID:      run.RunID.String(),
		CampaignID: run.CampaignID.String(),
		MemberID:   run.MemberID,
		Email:      profile.Email,
		FromName:   run.FromName,
		FromEmail:  run.FromEmail,
		Subject:    subject,
		HTML:       html,
	}, nil
}

// retryRun pushes a transiently-failed run back to pending with
// exponential backoff, or fails it once the attempt ceiling is reached.
func (d *Dispatcher) retryRun(ctx context.Context, run *sequence.ClaimedRun, reason string) {
	attempt := run.AttemptCount + 1
	if attempt >= d.config.MaxAttempts {
		d.failRun(ctx, run, fmt.Sprintf("attempt ceiling reached (%d): %s", attempt, reason))
		return
	}

	nextAt := d.now().Add(sequence.RetryBackoff(d.config.BackoffBase, attempt))
	if err := d.store.RescheduleRetry(ctx, run.RunID, nextAt, reason); err != nil {
		logger.Error("reschedule retry failed", "run_id", run.RunID.String(), "error", err)
		return
	}
	atomic.AddInt64(&d.totalRetried, 1)
	logger.Warn("step run retry scheduled",
		"run_id", run.RunID.String(),
		"attempt", attempt,
		"next_at", nextAt.Format(time.RFC3339),
		"reason", reason)
}

func (d *Dispatcher) failRun(ctx context.Context, run *sequence.ClaimedRun, reason string) {
	if err := d.store.MarkFailed(ctx, run.RunID, reason); err != nil {
		logger.Error("mark failed failed", "run_id", run.RunID.String(), "error", err)
		return
	}
	atomic.AddInt64(&d.totalFailed, 1)
	// Permanent failures must be operator-visible; this log line is the
	// surface monitoring alerts on.
	logger.Error("step run failed permanently",
		"run_id", run.RunID.String(),
		"member_id", run.MemberID,
		"campaign_id", run.CampaignID.String(),
		"reason", reason)
	d.store.CloseEnrollmentIfDone(ctx, run.EnrollmentID)
}
