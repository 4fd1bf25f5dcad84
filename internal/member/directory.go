// Package member talks to the external member directory. The engine only
// needs two facts about a member: where to deliver, and whether delivery
// is suppressed (unsubscribed or cancelled on the platform).
package member

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/sequence-engine/internal/pkg/httpretry"
)

// ErrNotFound marks a member id the directory has no record of. A run
// addressed to an unknown member fails permanently.
var ErrNotFound = errors.New("member not found in directory")

// Profile is the directory's view of one member.
type Profile struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

// Suppressed statuses: members in these states never receive automation
// email. Anything else is sendable.
func (p *Profile) Suppressed() bool {
	switch p.Status {
	case "unsubscribed", "cancelled", "bounced", "complained":
		return true
	}
	return false
}

// Directory looks up suppression status by member id. The dispatcher
// depends on this interface; tests substitute fakes.
type Directory interface {
	Lookup(ctx context.Context, memberID string) (*Profile, error)
}

// Client is the HTTP member-directory client. Transient directory
// failures (timeouts, 429/5xx) are retried with backoff before the
// dispatcher ever sees an error.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.Doer
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpretry.New(&http.Client{Timeout: 15 * time.Second}, 2),
	}
}

// Lookup fetches a member profile. A 404 surfaces as an error: a run for
// an unknown member cannot be sent and should fail permanently.
func (c *Client) Lookup(ctx context.Context, memberID string) (*Profile, error) {
	url := fmt.Sprintf("%s/v1/members/%s", c.baseURL, memberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("member directory request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, memberID)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("member directory %d: %s", resp.StatusCode, string(body))
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode member profile: %w", err)
	}
	return &p, nil
}
