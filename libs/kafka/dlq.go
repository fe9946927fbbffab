package kafka

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

const (
	DeadLetterConsume = "consume"
	DeadLetterPublish = "publish"
)

// DLQError marks a handler failure as permanent. The consumer dead-letters
// the message on the first attempt instead of retrying it.
type DLQError struct {
	Err    error
	Reason string
}

func (e *DLQError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DLQError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func DLQ(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &DLQError{Err: err, Reason: reason}
}

// DLQReason returns the reason attached by DLQ, or "" when err is retryable.
func DLQReason(err error) string {
	var dlqErr *DLQError
	if errors.As(err, &dlqErr) {
		return dlqErr.Reason
	}
	return ""
}

// DeadLetter is the record written to the dead-letter topic for both
// unprocessable consumed messages and events that could not be published.
type DeadLetter struct {
	Source        string    `json:"source"`
	OriginalTopic string    `json:"original_topic"`
	Partition     *int32    `json:"partition,omitempty"`
	Offset        *int64    `json:"offset,omitempty"`
	Key           string    `json:"key,omitempty"`
	EventID       string    `json:"event_id,omitempty"`
	EventType     string    `json:"event_type,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Error         string    `json:"error"`
	Reason        string    `json:"reason,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	Payload       string    `json:"payload_base64"`
	Timestamp     time.Time `json:"timestamp"`
}

func ConsumedDeadLetter(msg *sarama.ConsumerMessage, err *DLQError, attempts int) DeadLetter {
	dl := DeadLetter{
		Source:    DeadLetterConsume,
		Attempts:  attempts,
		Timestamp: time.Now().UTC(),
	}
	if msg != nil {
		partition, offset := msg.Partition, msg.Offset
		dl.OriginalTopic = msg.Topic
		dl.Partition = &partition
		dl.Offset = &offset
		dl.Key = string(msg.Key)
		dl.EventID = headerValue(msg, "event-id")
		dl.EventType = headerValue(msg, "event-type")
		dl.CorrelationID = headerValue(msg, "correlation-id")
		if len(msg.Value) > 0 {
			dl.Payload = base64.StdEncoding.EncodeToString(msg.Value)
		}
	}
	if err != nil {
		dl.Reason = err.Reason
		if err.Err != nil {
			dl.Error = err.Err.Error()
		} else {
			dl.Error = err.Error()
		}
	}
	return dl
}

func PublishedDeadLetter(topic, key string, value any, err error, attempts int) DeadLetter {
	dl := DeadLetter{
		Source:        DeadLetterPublish,
		OriginalTopic: topic,
		Key:           key,
		Reason:        "publish_failed",
		Attempts:      attempts,
		Timestamp:     time.Now().UTC(),
	}
	if carrier, ok := value.(interface{ EventEnvelope() Envelope }); ok {
		env := carrier.EventEnvelope()
		dl.EventID = env.EventID
		dl.EventType = env.EventType
		dl.CorrelationID = env.CorrelationID
	}
	if value != nil {
		if raw, marshalErr := json.Marshal(value); marshalErr == nil {
			dl.Payload = base64.StdEncoding.EncodeToString(raw)
		} else {
			dl.Payload = base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%v", value)))
		}
	}
	if err != nil {
		dl.Error = err.Error()
	}
	return dl
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
