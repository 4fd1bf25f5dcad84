package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ignite/sequence-engine/internal/pkg/httputil"
	"github.com/ignite/sequence-engine/internal/pkg/logger"
	"github.com/ignite/sequence-engine/internal/trigger"
)

const signatureHeader = "X-Webhook-Signature"

// HandleWebhook accepts a platform event, verifies its signature and
// enqueues it for the trigger worker. The response never waits on
// sequence resolution: anything with a valid signature and a parseable
// body is a 202.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.webhook.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.BadRequest(w, "request body unreadable or too large")
		return
	}

	if !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
		httputil.Unauthorized(w, "invalid signature")
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		httputil.BadRequest(w, "body must be a JSON object")
		return
	}

	rawEvent, _ := payload["event"].(string)
	if rawEvent == "" {
		rawEvent, _ = payload["type"].(string)
	}
	if rawEvent == "" {
		httputil.BadRequest(w, "missing event field")
		return
	}

	d := trigger.NewDelivery(rawEvent, payload, h.now().UTC())
	if err := h.queue.Enqueue(r.Context(), d); err != nil {
		logger.Error("webhook enqueue failed", "error", err, "event", rawEvent)
		httputil.InternalError(w, err)
		return
	}

	logger.Debug("webhook delivery queued", "delivery_id", d.ID, "event", rawEvent)
	httputil.Accepted(w, map[string]string{"id": d.ID, "status": "queued"})
}

// verifySignature checks the hex HMAC-SHA256 of the raw body. An empty
// configured secret disables verification (local development only).
func (h *Handlers) verifySignature(body []byte, signature string) bool {
	if h.webhook.SigningSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(h.webhook.SigningSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
