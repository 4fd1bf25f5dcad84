package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/sequence-engine/internal/event"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/sequence"
)

// Store is the slice of the sequence store the trigger pipeline needs.
type Store interface {
	ResolveActive(ctx context.Context, companyID string, code event.Code) ([]sequence.Sequence, error)
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]sequence.Step, error)
	EnrollAndSchedule(ctx context.Context, seq *sequence.Sequence, memberID string, steps []sequence.Step, now time.Time) (*sequence.Enrollment, error)
}

// Worker consumes queued deliveries and runs the trigger pipeline:
// normalize → extract context → resolve sequences → enroll → schedule.
// Its failures are logged, never retried by the platform and never
// surfaced to the webhook caller; idempotent storage makes queue-level
// redelivery safe.
type Worker struct {
	queue *Queue
	store Store
	now   func() time.Time

	// Stats
	processed int64
	ignored   int64
	failures  int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewWorker(queue *Queue, store Store) *Worker {
	return &Worker{
		queue: queue,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the time source. Tests only.
func (w *Worker) SetNow(now func() time.Time) { w.now = now }

// Start launches the consume loop.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	logger.Info("trigger worker starting")
	w.wg.Add(1)
	go w.consumeLoop()
}

// Stop shuts the worker down and waits for the in-flight delivery.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("trigger worker stopped",
		"processed", atomic.LoadInt64(&w.processed),
		"ignored", atomic.LoadInt64(&w.ignored),
		"failures", atomic.LoadInt64(&w.failures))
}

// Stats returns processing counters.
func (w *Worker) Stats() map[string]int64 {
	return map[string]int64{
		"processed": atomic.LoadInt64(&w.processed),
		"ignored":   atomic.LoadInt64(&w.ignored),
		"failures":  atomic.LoadInt64(&w.failures),
	}
}

func (w *Worker) consumeLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			w.consumeOne()
		}
	}
}

// consumeOne pops and processes a single delivery, absorbing panics so a
// malformed payload can never kill the loop.
func (w *Worker) consumeOne() {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.failures, 1)
			logger.Error("trigger pipeline panic", "panic", r)
		}
	}()

	d, err := w.queue.Dequeue(w.ctx, 2*time.Second)
	if err != nil {
		if w.ctx.Err() == nil {
			logger.Error("trigger dequeue failed", "error", err)
			time.Sleep(time.Second)
		}
		return
	}
	if d == nil {
		return
	}
	if err := w.ProcessDelivery(w.ctx, d); err != nil {
		atomic.AddInt64(&w.failures, 1)
		logger.Error("trigger pipeline failed", "delivery_id", d.ID, "event", d.Event, "error", err)
	}
}

// ProcessDelivery runs the full pipeline for one delivery. Unrecognized
// events and unresolvable context are normal no-ops, not errors.
func (w *Worker) ProcessDelivery(ctx context.Context, d *Delivery) error {
	code, ok := event.Normalize(d.Event)
	if !ok {
		atomic.AddInt64(&w.ignored, 1)
		logger.Debug("unrecognized event ignored", "event", d.Event)
		return nil
	}

	evtCtx := event.ExtractContext(d.Payload)
	if !evtCtx.Complete() {
		atomic.AddInt64(&w.ignored, 1)
		logger.Debug("delivery without resolvable context ignored",
			"event", string(code), "company_id", evtCtx.CompanyID)
		return nil
	}

	seqs, err := w.store.ResolveActive(ctx, evtCtx.CompanyID, code)
	if err != nil {
		return err
	}

	now := w.now()
	for i := range seqs {
		seq := &seqs[i]

		steps, err := w.store.ListSteps(ctx, seq.ID)
		if err != nil {
			return err
		}

		// One transaction: a failure mid-schedule rolls the enrollment
		// back too, so the delivery can be retried from scratch.
		_, err = w.store.EnrollAndSchedule(ctx, seq, evtCtx.MemberID, steps, now)
		if err == sequence.ErrAlreadyEnrolled {
			// Duplicate delivery or a concurrent worker won the race.
			logger.Debug("member already enrolled",
				"sequence_id", seq.ID.String(), "member_id", evtCtx.MemberID)
			continue
		}
		if err != nil {
			return err
		}

		atomic.AddInt64(&w.processed, 1)
		logger.Info("member enrolled",
			"sequence_id", seq.ID.String(),
			"member_id", evtCtx.MemberID,
			"event", string(code),
			"steps_scheduled", len(steps))
	}
	return nil
}
