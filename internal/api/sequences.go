package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ignite/sequence-engine/internal/event"
	"github.com/ignite/sequence-engine/internal/pkg/httputil"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/sequence"
)

// HandleCreateSequence creates a sequence in draft status. The trigger
// event is normalized once here and stored canonical; it cannot be
// changed afterwards.
func (h *Handlers) HandleCreateSequence(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CompanyID    string `json:"companyId"`
		Name         string `json:"name"`
		TriggerEvent string `json:"triggerEvent"`
		AllowReentry bool   `json:"allowReentry"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.CompanyID == "" {
		httputil.BadRequest(w, "companyId is required")
		return
	}
	if input.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	code, ok := event.Normalize(input.TriggerEvent)
	if !ok {
		httputil.BadRequest(w, "unrecognized trigger event: "+input.TriggerEvent)
		return
	}

	seq := &sequence.Sequence{
		CompanyID:    input.CompanyID,
		Name:         input.Name,
		TriggerEvent: code,
		Status:       sequence.StatusDraft,
		AllowReentry: input.AllowReentry,
	}
	if err := h.store.CreateSequence(r.Context(), seq); err != nil {
		logger.Error("create sequence failed", "error", err, "company_id", input.CompanyID)
		httputil.InternalError(w, err)
		return
	}

	logger.Info("sequence created",
		"sequence_id", seq.ID.String(),
		"company_id", seq.CompanyID,
		"trigger_event", string(seq.TriggerEvent))
	httputil.Created(w, seq)
}

// HandleListSequences lists a company's sequences.
func (h *Handlers) HandleListSequences(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("companyId")
	if companyID == "" {
		httputil.BadRequest(w, "companyId query parameter is required")
		return
	}

	seqs, err := h.store.ListSequences(r.Context(), companyID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if seqs == nil {
		seqs = []sequence.Sequence{}
	}
	httputil.OK(w, map[string]interface{}{"sequences": seqs})
}

// HandleGetSequence returns one sequence with its steps in execution order.
func (h *Handlers) HandleGetSequence(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "sequenceId"))
	if !ok {
		return
	}

	seq, err := h.store.GetSequence(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	steps, err := h.store.ListSteps(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if steps == nil {
		steps = []sequence.Step{}
	}
	httputil.OK(w, map[string]interface{}{"sequence": seq, "steps": steps})
}

// HandleActivateSequence moves a sequence to active.
func (h *Handlers) HandleActivateSequence(w http.ResponseWriter, r *http.Request) {
	h.transitionSequence(w, r, sequence.StatusActive)
}

// HandlePauseSequence moves a sequence to paused. Enrollments already in
// flight keep their scheduled runs; pausing only stops new enrollments.
func (h *Handlers) HandlePauseSequence(w http.ResponseWriter, r *http.Request) {
	h.transitionSequence(w, r, sequence.StatusPaused)
}

func (h *Handlers) transitionSequence(w http.ResponseWriter, r *http.Request, target string) {
	id, ok := parseID(w, chi.URLParam(r, "sequenceId"))
	if !ok {
		return
	}

	if err := h.store.TransitionSequence(r.Context(), id, target); err != nil {
		respondStoreError(w, err)
		return
	}

	logger.Info("sequence status changed", "sequence_id", id.String(), "status", target)
	httputil.OK(w, map[string]string{"id": id.String(), "status": target})
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.BadRequest(w, "malformed id: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sequence.ErrNotFound):
		httputil.NotFound(w, "not found")
	case errors.Is(err, sequence.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, sequence.ErrPositionTaken):
		httputil.Conflict(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
