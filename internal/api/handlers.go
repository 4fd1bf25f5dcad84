package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/sequence-engine/internal/config"
	"github.com/ignite/sequence-engine/internal/pkg/httputil"
	"github.com/ignite/sequence-engine/internal/sequence"
	"github.com/ignite/sequence-engine/internal/trigger"
)

// SequenceStore is the slice of the Postgres store the HTTP surface uses.
type SequenceStore interface {
	CreateSequence(ctx context.Context, seq *sequence.Sequence) error
	GetSequence(ctx context.Context, id uuid.UUID) (*sequence.Sequence, error)
	ListSequences(ctx context.Context, companyID string) ([]sequence.Sequence, error)
	TransitionSequence(ctx context.Context, id uuid.UUID, target string) error

	CreateStep(ctx context.Context, step *sequence.Step) error
	GetStep(ctx context.Context, id uuid.UUID) (*sequence.Step, error)
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]sequence.Step, error)
	UpdateStep(ctx context.Context, id uuid.UUID, patch sequence.StepPatch) error
	DeleteStep(ctx context.Context, id uuid.UUID) error

	CreateCampaign(ctx context.Context, c *sequence.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*sequence.Campaign, error)
	BindCampaign(ctx context.Context, campaignID, sequenceID uuid.UUID) error
	MirrorAutomationStatus(ctx context.Context, campaignID uuid.UUID, status string) error
}

// Enqueuer pushes webhook deliveries onto the trigger queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, d trigger.Delivery) error
}

// Handlers holds the HTTP handler dependencies
type Handlers struct {
	store   SequenceStore
	queue   Enqueuer
	webhook config.WebhookConfig
	now     func() time.Time
}

// NewHandlers creates handlers with their dependencies
func NewHandlers(store SequenceStore, queue Enqueuer, webhook config.WebhookConfig) *Handlers {
	return &Handlers{
		store:   store,
		queue:   queue,
		webhook: webhook,
		now:     time.Now,
	}
}

// HealthCheck returns service health status
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{
		"status":  "healthy",
		"service": "sequence-engine",
		"time":    h.now().UTC().Format(time.RFC3339),
	})
}
