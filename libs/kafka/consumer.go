package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/aJV99/CommodiTrade-sub000/libs/metrics"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type Consumer struct {
	group        sarama.ConsumerGroup
	logger       *slog.Logger
	dlqPublisher Publisher
	dlqTopic     string
	maxAttempts  int
}

func NewConsumer(brokers []string, groupID string, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Session.Timeout = 30 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return &Consumer{
		group:       group,
		logger:      logger,
		maxAttempts: 3,
	}, nil
}

// WithDLQ routes messages that fail permanently, or exhaust maxAttempts, to
// topic instead of leaving them uncommitted.
func (c *Consumer) WithDLQ(publisher Publisher, topic string) *Consumer {
	c.dlqPublisher = publisher
	c.dlqTopic = topic
	return c
}

func (c *Consumer) WithMaxAttempts(n int) *Consumer {
	if n > 0 {
		c.maxAttempts = n
	}
	return c
}

func (c *Consumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler required")
	}

	cgHandler := &consumerGroupHandler{
		handler:      handler,
		logger:       c.logger,
		dlqPublisher: c.dlqPublisher,
		dlqTopic:     c.dlqTopic,
		retryTracker: newRetryTracker(c.maxAttempts, 10*time.Minute),
	}

	for {
		if err := c.group.Consume(ctx, topics, cgHandler); err != nil {
			c.logger.Error("kafka consume error", "error", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(2 * time.Second)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler      MessageHandler
	logger       *slog.Logger
	dlqPublisher Publisher
	dlqTopic     string
	retryTracker *retryTracker
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		err := h.handler.HandleMessage(session.Context(), msg)
		if err == nil {
			h.retryTracker.reset(messageKey(msg))
			session.MarkMessage(msg, "")
			continue
		}

		h.logger.Error("kafka message handler error", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)

		var dlqErr *DLQError
		permanent := errors.As(err, &dlqErr)
		attempts := h.retryTracker.inc(messageKey(msg))
		if !permanent && attempts < h.retryTracker.maxAttempts {
			continue
		}
		if dlqErr == nil {
			dlqErr = &DLQError{Err: err, Reason: "max_attempts"}
		}
		if h.dlqPublisher == nil || h.dlqTopic == "" {
			continue
		}
		record := ConsumedDeadLetter(msg, dlqErr, attempts)
		if _, _, pubErr := h.dlqPublisher.PublishJSON(session.Context(), h.dlqTopic, string(msg.Key), record); pubErr != nil {
			h.logger.Error("dlq publish failed", "topic", h.dlqTopic, "error", pubErr)
			continue
		}
		metrics.KafkaDeadLettered.WithLabelValues(msg.Topic, record.Reason).Inc()
		h.logger.Warn("message dead-lettered",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"reason", record.Reason,
			"event_id", record.EventID,
			"correlation_id", record.CorrelationID,
		)
		h.retryTracker.reset(messageKey(msg))
		session.MarkMessage(msg, "")
	}
	return nil
}

func messageKey(msg *sarama.ConsumerMessage) string {
	return msg.Topic + "/" + strconv.FormatInt(int64(msg.Partition), 10) + "/" + strconv.FormatInt(msg.Offset, 10)
}

type retryEntry struct {
	attempts int
	seen     time.Time
}

type retryTracker struct {
	mu          sync.Mutex
	maxAttempts int
	ttl         time.Duration
	entries     map[string]retryEntry
}

func newRetryTracker(maxAttempts int, ttl time.Duration) *retryTracker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &retryTracker{
		maxAttempts: maxAttempts,
		ttl:         ttl,
		entries:     make(map[string]retryEntry),
	}
}

func (r *retryTracker) inc(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for k, e := range r.entries {
		if now.Sub(e.seen) > r.ttl {
			delete(r.entries, k)
		}
	}
	e := r.entries[key]
	e.attempts++
	e.seen = now
	r.entries[key] = e
	return e.attempts
}

func (r *retryTracker) reset(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}
