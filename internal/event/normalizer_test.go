package event

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Code
		ok   bool
	}{
		{"already canonical", "payment_succeeded", PaymentSucceeded, true},
		{"dot separated", "payment.succeeded", PaymentSucceeded, true},
		{"uppercase dotted", "PAYMENT.SUCCEEDED", PaymentSucceeded, true},
		{"mixed case", "Membership_Went_Valid", MembershipWentValid, true},
		{"dots multiword", "membership.went.valid", MembershipWentValid, true},
		{"dash separated", "membership-went-invalid", MembershipWentInvalid, true},
		{"colon separated", "subscription:cancelled", SubscriptionCancelled, true},
		{"leading and trailing space", "  member_created  ", MemberCreated, true},
		{"mixed separators", "Trial.Started", TrialStarted, true},
		{"unknown event", "invoice_finalized", "", false},
		{"empty string", "", "", false},
		{"punctuation only", "...", "", false},
		{"close but wrong", "payment_success", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw)
			if ok != tt.ok {
				t.Fatalf("Normalize(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// Equivalent spellings of the same provider event must collapse to one code.
func TestNormalizeEquivalence(t *testing.T) {
	a, okA := Normalize("PAYMENT.SUCCEEDED")
	b, okB := Normalize("payment_succeeded")
	if !okA || !okB {
		t.Fatal("both spellings should normalize")
	}
	if a != b {
		t.Errorf("spellings diverged: %q vs %q", a, b)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		if got, ok := Normalize("membership.went.valid"); !ok || got != MembershipWentValid {
			t.Fatalf("pass %d: got %q ok=%v", i, got, ok)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid("payment_failed") {
		t.Error("payment_failed should be valid")
	}
	if Valid("PAYMENT.FAILED") {
		t.Error("Valid takes canonical codes only, not raw spellings")
	}
	if Valid("") {
		t.Error("empty string should not be valid")
	}
}
