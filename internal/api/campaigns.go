package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/sequence-engine/internal/pkg/httputil"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/sequence"
)

// HandleCreateCampaign creates a campaign in manual mode. Attaching it
// to a sequence step is what flips it to automation.
func (h *Handlers) HandleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CompanyID   string `json:"companyId"`
		Subject     string `json:"subject"`
		FromName    string `json:"fromName"`
		FromEmail   string `json:"fromEmail"`
		HTMLContent string `json:"htmlContent"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.CompanyID == "" {
		httputil.BadRequest(w, "companyId is required")
		return
	}
	if input.Subject == "" {
		httputil.BadRequest(w, "subject is required")
		return
	}
	if !strings.Contains(input.FromEmail, "@") {
		httputil.BadRequest(w, "fromEmail must be an email address")
		return
	}

	c := &sequence.Campaign{
		CompanyID:   input.CompanyID,
		Subject:     input.Subject,
		FromName:    input.FromName,
		FromEmail:   input.FromEmail,
		HTMLContent: input.HTMLContent,
		SendMode:    sequence.SendModeManual,
	}
	if err := h.store.CreateCampaign(r.Context(), c); err != nil {
		logger.Error("create campaign failed", "error", err, "company_id", input.CompanyID)
		httputil.InternalError(w, err)
		return
	}

	logger.Info("campaign created", "campaign_id", c.ID.String(), "company_id", c.CompanyID)
	httputil.Created(w, c)
}

// HandleGetCampaign returns one campaign.
func (h *Handlers) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "campaignId"))
	if !ok {
		return
	}

	c, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	httputil.OK(w, c)
}
