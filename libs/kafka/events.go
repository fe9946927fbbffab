package kafka

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingEventID   = errors.New("event_id is required")
	ErrMissingEventType = errors.New("event_type is required")
	ErrBadEventVersion  = errors.New("event_version must be positive")
	ErrMissingTimestamp = errors.New("timestamp is required")
)

// Envelope is embedded by every ledger event and by the events the ledger
// consumes.
type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func NewEnvelope(eventType string, version int, correlationID string) (Envelope, error) {
	return NewEnvelopeWithID(uuid.NewString(), eventType, version, correlationID)
}

// NewEnvelopeWithID builds an envelope with a caller-chosen id, typically
// from DeterministicEventID so that republishing a fact yields the same id.
func NewEnvelopeWithID(eventID, eventType string, version int, correlationID string) (Envelope, error) {
	env := Envelope{
		EventID:       eventID,
		EventType:     eventType,
		EventVersion:  version,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DeterministicEventID derives a name-based UUID from parts.
func DeterministicEventID(parts ...string) string {
	joined := strings.Join(parts, "|")
	if joined == "" {
		return uuid.Nil.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(joined)).String()
}

// EventEnvelope lets embedding event structs expose their envelope for
// message headers and dead letters.
func (e Envelope) EventEnvelope() Envelope {
	return e
}

func (e Envelope) Validate() error {
	switch {
	case e.EventID == "":
		return ErrMissingEventID
	case e.EventType == "":
		return ErrMissingEventType
	case e.EventVersion <= 0:
		return ErrBadEventVersion
	case e.Timestamp.IsZero():
		return ErrMissingTimestamp
	}
	return nil
}
