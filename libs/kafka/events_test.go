package kafka

import (
	"errors"
	"testing"
	"time"
)

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{EventID: "e-1", EventType: "shipments.delivered", EventVersion: 1, Timestamp: time.Now()}

	tests := []struct {
		name   string
		mutate func(*Envelope)
		want   error
	}{
		{"valid", func(*Envelope) {}, nil},
		{"missing id", func(e *Envelope) { e.EventID = "" }, ErrMissingEventID},
		{"missing type", func(e *Envelope) { e.EventType = "" }, ErrMissingEventType},
		{"zero version", func(e *Envelope) { e.EventVersion = 0 }, ErrBadEventVersion},
		{"missing timestamp", func(e *Envelope) { e.Timestamp = time.Time{} }, ErrMissingTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := valid
			tt.mutate(&env)
			if err := env.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewEnvelopeWithIDRejectsBlankType(t *testing.T) {
	if _, err := NewEnvelopeWithID("e-1", "", 1, ""); !errors.Is(err, ErrMissingEventType) {
		t.Fatalf("expected ErrMissingEventType, got %v", err)
	}
	env, err := NewEnvelope("trades.executed", 1, "corr-1")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.EventID == "" || env.Timestamp.IsZero() || env.CorrelationID != "corr-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
