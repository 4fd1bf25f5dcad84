// Package event maps raw membership-platform webhook events into the
// engine's canonical taxonomy and pulls the triggering context out of
// their payloads. Everything here is pure: no storage, no I/O.
package event

import "strings"

// Code is a canonical event code. The set is closed: matching logic
// downstream dispatches on Code values, never on raw provider strings.
// Extending the set is a deliberate taxonomy change.
type Code string

const (
	MemberCreated         Code = "member_created"
	MemberDeleted         Code = "member_deleted"
	MembershipWentValid   Code = "membership_went_valid"
	MembershipWentInvalid Code = "membership_went_invalid"
	PaymentSucceeded      Code = "payment_succeeded"
	PaymentFailed         Code = "payment_failed"
	SubscriptionCreated   Code = "subscription_created"
	SubscriptionCancelled Code = "subscription_cancelled"
	TrialStarted          Code = "trial_started"
	TrialEnded            Code = "trial_ended"
)

var canonical = map[string]Code{
	string(MemberCreated):         MemberCreated,
	string(MemberDeleted):         MemberDeleted,
	string(MembershipWentValid):   MembershipWentValid,
	string(MembershipWentInvalid): MembershipWentInvalid,
	string(PaymentSucceeded):      PaymentSucceeded,
	string(PaymentFailed):         PaymentFailed,
	string(SubscriptionCreated):   SubscriptionCreated,
	string(SubscriptionCancelled): SubscriptionCancelled,
	string(TrialStarted):          TrialStarted,
	string(TrialEnded):            TrialEnded,
}

// Codes returns the full canonical set, for validation at the API edge.
func Codes() []Code {
	out := make([]Code, 0, len(canonical))
	for _, c := range canonical {
		out = append(out, c)
	}
	return out
}

// Valid reports whether s is already a canonical code.
func Valid(s string) bool {
	_, ok := canonical[s]
	return ok
}

// Normalize maps a raw provider event name to its canonical code.
// It is total and never fails: casing and separator punctuation are
// ignored ("PAYMENT.SUCCEEDED" and "payment_succeeded" are the same
// event), and an unrecognized name returns ok=false. Callers treat
// ok=false as "no automation applies", not as an error.
func Normalize(raw string) (Code, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = separators.Replace(key)
	// Collapse runs of underscores left by multi-char separators
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	key = strings.Trim(key, "_")
	code, ok := canonical[key]
	return code, ok
}

var separators = strings.NewReplacer(
	".", "_",
	"-", "_",
	":", "_",
	"/", "_",
	" ", "_",
)
