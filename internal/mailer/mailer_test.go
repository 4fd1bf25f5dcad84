package mailer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"invalid recipient", fmt.Errorf("send: %w", ErrInvalidRecipient), true},
		{"message rejected", &types.MessageRejected{}, true},
		{"wrapped rejection", fmt.Errorf("ses send: %w", &types.MessageRejected{}), true},
		{"bad request", &types.BadRequestException{}, true},
		{"unverified mail-from", &types.MailFromDomainNotVerifiedException{}, true},
		{"account suspended", &types.AccountSuspendedException{}, true},
		{"throttled", &types.TooManyRequestsException{}, false},
		{"sending paused", &types.SendingPausedException{}, false},
		{"network error", errors.New("dial tcp: connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSESSenderUnconfigured(t *testing.T) {
	s := NewSESSender("", "", "")
	if _, err := s.Send(nil, &Message{Email: "m@example.com"}); err == nil {
		t.Error("unconfigured sender should error")
	}
}

func TestPlausibleAddress(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"m@example.com", true},
		{"first.last+tag@mail.example.com", true},
		{"", false},
		{"no-at-sign", false},
		{"@example.com", false},
		{"m@", false},
		{"a@@b.com", false},
	}
	for _, tt := range tests {
		if got := plausibleAddress(tt.email); got != tt.want {
			t.Errorf("plausibleAddress(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}
