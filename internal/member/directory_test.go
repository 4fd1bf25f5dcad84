package member

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/members/mem_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"mem_1","email":"m@example.com","status":"active"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	p, err := c.Lookup(context.Background(), "mem_1")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if p.Email != "m@example.com" {
		t.Errorf("email = %q", p.Email)
	}
	if p.Suppressed() {
		t.Error("active member should not be suppressed")
	}
}

func TestClientLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such member", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	if _, err := c.Lookup(context.Background(), "mem_missing"); err == nil {
		t.Error("404 should surface as an error")
	}
}

func TestProfileSuppressed(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"active", false},
		{"trialing", false},
		{"unsubscribed", true},
		{"cancelled", true},
		{"bounced", true},
		{"complained", true},
		{"", false},
	}
	for _, tt := range tests {
		p := &Profile{Status: tt.status}
		if got := p.Suppressed(); got != tt.want {
			t.Errorf("Suppressed(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
