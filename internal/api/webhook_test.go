package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/platform", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcceptsSignedDelivery(t *testing.T) {
	queue := &memQueue{}
	handler := newTestServer(newMemStore(), queue, "whsec_test")

	body := []byte(`{"event":"payment.succeeded","companyId":"cmp_1","memberId":"mem_1"}`)
	rec := postWebhook(handler, body, sign("whsec_test", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}
	if len(queue.deliveries) != 1 {
		t.Fatalf("queued %d deliveries, want 1", len(queue.deliveries))
	}
	d := queue.deliveries[0]
	if d.Event != "payment.succeeded" {
		t.Errorf("delivery event = %q, raw form must be preserved", d.Event)
	}
	if d.Payload["memberId"] != "mem_1" {
		t.Errorf("payload not carried through: %v", d.Payload)
	}
	if d.ID == "" {
		t.Error("delivery id missing")
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	queue := &memQueue{}
	handler := newTestServer(newMemStore(), queue, "whsec_test")

	body := []byte(`{"event":"payment.succeeded"}`)
	rec := postWebhook(handler, body, sign("wrong-secret", body))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(queue.deliveries) != 0 {
		t.Error("rejected delivery must not be queued")
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	handler := newTestServer(newMemStore(), &memQueue{}, "whsec_test")

	rec := postWebhook(handler, []byte(`{"event":"payment.succeeded"}`), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookNoSecretSkipsVerification(t *testing.T) {
	queue := &memQueue{}
	handler := newTestServer(newMemStore(), queue, "")

	rec := postWebhook(handler, []byte(`{"event":"member_created"}`), "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(queue.deliveries) != 1 {
		t.Error("delivery should be queued without a configured secret")
	}
}

func TestWebhookBadBody(t *testing.T) {
	handler := newTestServer(newMemStore(), &memQueue{}, "whsec_test")

	body := []byte(`not json`)
	rec := postWebhook(handler, body, sign("whsec_test", body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d, want 400", rec.Code)
	}

	body = []byte(`{"companyId":"cmp_1"}`)
	rec = postWebhook(handler, body, sign("whsec_test", body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing event: status = %d, want 400", rec.Code)
	}
}

// Unrecognized event names are queued anyway; the trigger worker is the
// single place that decides what is actionable.
func TestWebhookQueuesUnrecognizedEvent(t *testing.T) {
	queue := &memQueue{}
	handler := newTestServer(newMemStore(), queue, "whsec_test")

	body := []byte(`{"event":"totally.unknown"}`)
	rec := postWebhook(handler, body, sign("whsec_test", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(queue.deliveries) != 1 {
		t.Error("unrecognized events still queue; filtering happens downstream")
	}
}
