package kafka

import "testing"

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("checkout.settled", 1, "req-1")
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if err := env.Validate(); err != nil {
		t.Fatalf("expected valid envelope: %v", err)
	}
	if env.EventType != "checkout.settled" {
		t.Fatalf("expected event type checkout.settled, got %s", env.EventType)
	}
}

func TestNewEnvelopeRejectsBadInput(t *testing.T) {
	if _, err := NewEnvelope("", 1, ""); err == nil {
		t.Fatal("expected error for empty event type")
	}
	if _, err := NewEnvelope("checkout.settled", 0, ""); err == nil {
		t.Fatal("expected error for non-positive version")
	}
	if _, err := NewEnvelopeWithID("", "checkout.settled", 1, ""); err == nil {
		t.Fatal("expected error for empty event id")
	}
}

func TestDeterministicEventID(t *testing.T) {
	a := DeterministicEventID("42", "2024-06-01")
	b := DeterministicEventID("42", "2024-06-01")
	if a != b {
		t.Fatalf("expected identical ids, got %s and %s", a, b)
	}
	if a == DeterministicEventID("42", "2024-06-02") {
		t.Fatal("expected different inputs to produce different ids")
	}
}
