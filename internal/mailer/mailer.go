// Package mailer renders and delivers one campaign's content to one
// member. Delivery backends implement Sender; AWS SES is the production
// implementation. Failures are classified permanent vs transient so the
// dispatcher can decide between terminating and retrying a step run.
package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// Message is a fully rendered email ready for delivery.
type Message struct {
	RunID      string
	CampaignID string
	MemberID   string
	Email      string
	FromName   string
	FromEmail  string
	Subject    string
	HTML       string
}

// SendResult describes a completed delivery attempt.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers one message. Implementations must be safe for
// concurrent use by multiple dispatcher workers.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*SendResult, error)
}

// ErrInvalidRecipient marks a message that can never be delivered
// (missing or malformed address). Always permanent.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// IsPermanent reports whether a send error is a permanent failure —
// a rejection that retrying cannot fix. Transient errors (throttling,
// provider pauses, network) return false and stay retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidRecipient) {
		return true
	}

	var rejected *types.MessageRejected
	if errors.As(err, &rejected) {
		return true
	}
	var badRequest *types.BadRequestException
	if errors.As(err, &badRequest) {
		return true
	}
	var notVerified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &notVerified) {
		return true
	}
	var suspended *types.AccountSuspendedException
	if errors.As(err, &suspended) {
		return true
	}
	return false
}
