package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/sequence-engine/internal/pkg/httputil"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/sequence"
)

// HandleCreateStep appends a step to a sequence and attaches its
// campaign. Position is assigned server-side (max + 1). The campaign is
// forced into automation mode, then the sequence's current status is
// copied onto it. The copy is a one-time snapshot.
func (h *Handlers) HandleCreateStep(w http.ResponseWriter, r *http.Request) {
	sequenceID, ok := parseID(w, chi.URLParam(r, "sequenceId"))
	if !ok {
		return
	}

	var input struct {
		CampaignID string            `json:"campaignId"`
		DelayValue *int              `json:"delayValue"`
		DelayUnit  string            `json:"delayUnit"`
		Metadata   map[string]string `json:"metadata"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.CampaignID == "" {
		httputil.BadRequest(w, "campaignId is required")
		return
	}
	campaignID, ok := parseID(w, input.CampaignID)
	if !ok {
		return
	}

	delayValue := 0
	if input.DelayValue != nil {
		delayValue = *input.DelayValue
	}
	if delayValue < 0 {
		httputil.BadRequest(w, "delayValue must be >= 0")
		return
	}
	delayUnit := input.DelayUnit
	if delayUnit == "" {
		delayUnit = string(sequence.UnitMinutes)
	}
	if !sequence.ValidDelayUnit(delayUnit) {
		httputil.BadRequest(w, "delayUnit must be one of minutes, hours, days")
		return
	}

	ctx := r.Context()
	seq, err := h.store.GetSequence(ctx, sequenceID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if _, err := h.store.GetCampaign(ctx, campaignID); err != nil {
		respondStoreError(w, err)
		return
	}

	step := &sequence.Step{
		SequenceID: sequenceID,
		CampaignID: campaignID,
		DelayValue: delayValue,
		DelayUnit:  sequence.DelayUnit(delayUnit),
		Metadata:   input.Metadata,
	}
	if err := h.store.CreateStep(ctx, step); err != nil {
		logger.Error("create step failed", "error", err, "sequence_id", sequenceID.String())
		httputil.InternalError(w, err)
		return
	}

	// Attach is two explicit writes: bind, then snapshot the status.
	if err := h.store.BindCampaign(ctx, campaignID, sequenceID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	if err := h.store.MirrorAutomationStatus(ctx, campaignID, seq.Status); err != nil {
		httputil.InternalError(w, err)
		return
	}

	logger.Info("step created",
		"step_id", step.ID.String(),
		"sequence_id", sequenceID.String(),
		"campaign_id", campaignID.String(),
		"position", step.Position)
	httputil.Created(w, step)
}

// HandleUpdateStep applies a partial patch. Unknown fields are ignored;
// a patch that changes nothing is a 400.
func (h *Handlers) HandleUpdateStep(w http.ResponseWriter, r *http.Request) {
	stepID, ok := parseID(w, chi.URLParam(r, "stepId"))
	if !ok {
		return
	}

	var input struct {
		Position   *int    `json:"position"`
		DelayValue *int    `json:"delayValue"`
		DelayUnit  *string `json:"delayUnit"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}

	patch := sequence.StepPatch{
		Position:   input.Position,
		DelayValue: input.DelayValue,
		DelayUnit:  input.DelayUnit,
	}
	if patch.Empty() {
		httputil.BadRequest(w, "patch contains no recognized fields")
		return
	}
	if patch.Position != nil && *patch.Position <= 0 {
		httputil.BadRequest(w, "position must be > 0")
		return
	}
	if patch.DelayValue != nil && *patch.DelayValue < 0 {
		httputil.BadRequest(w, "delayValue must be >= 0")
		return
	}
	if patch.DelayUnit != nil && !sequence.ValidDelayUnit(*patch.DelayUnit) {
		httputil.BadRequest(w, "delayUnit must be one of minutes, hours, days")
		return
	}

	if err := h.store.UpdateStep(r.Context(), stepID, patch); err != nil {
		respondStoreError(w, err)
		return
	}

	step, err := h.store.GetStep(r.Context(), stepID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	httputil.OK(w, step)
}

// HandleDeleteStep removes a step. Surviving steps keep their positions.
func (h *Handlers) HandleDeleteStep(w http.ResponseWriter, r *http.Request) {
	stepID, ok := parseID(w, chi.URLParam(r, "stepId"))
	if !ok {
		return
	}

	if err := h.store.DeleteStep(r.Context(), stepID); err != nil {
		respondStoreError(w, err)
		return
	}

	logger.Info("step deleted", "step_id", stepID.String())
	httputil.NoContent(w)
}
