package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/aJV99/CommodiTrade-sub000/libs/kafka"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/inventory"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/service"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/google/uuid"
)

type fakeApplier struct {
	result  *service.ShipmentResult
	err     error
	calls   int
	last    service.ShipmentDelivery
	lastCtx context.Context
}

func (f *fakeApplier) ApplyShipmentDelivery(ctx context.Context, d service.ShipmentDelivery) (*service.ShipmentResult, error) {
	f.calls++
	f.last = d
	f.lastCtx = ctx
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &service.ShipmentResult{}, nil
}

func validEvent(t *testing.T) ShipmentDeliveredEvent {
	t.Helper()
	env, err := kafka.NewEnvelope(shipmentDeliveredEventType, 1, "corr-1")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return ShipmentDeliveredEvent{
		Envelope:    env,
		ShipmentID:  uuid.NewString(),
		TradeID:     uuid.NewString(),
		CommodityID: uuid.NewString(),
		Quantity:    40,
		Direction:   "inbound",
		DeliveredAt: "2026-05-01T10:00:00Z",
		Location:    " Dock 3 ",
	}
}

func messageOf(t *testing.T, value any) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: shipmentDeliveredEventType, Value: payload}
}

func isDLQ(err error) bool {
	var dlqErr *kafka.DLQError
	return errors.As(err, &dlqErr)
}

func TestShipmentConsumerAppliesDelivery(t *testing.T) {
	applier := &fakeApplier{}
	c := NewShipmentConsumer(applier, nil)
	event := validEvent(t)

	if err := c.HandleMessage(context.Background(), messageOf(t, event)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if applier.calls != 1 {
		t.Fatalf("expected one call, got %d", applier.calls)
	}
	d := applier.last
	if d.ShipmentID.String() != event.ShipmentID || d.TradeID == nil || d.TradeID.String() != event.TradeID {
		t.Fatalf("unexpected delivery ids %+v", d)
	}
	if d.Direction != storage.ShipmentInbound || d.Location != "Dock 3" || d.Quantity != 40 {
		t.Fatalf("unexpected delivery %+v", d)
	}
	if !d.DeliveredAt.Equal(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected delivered_at %s", d.DeliveredAt)
	}
	if got := service.CorrelationID(applier.lastCtx); got != "corr-1" {
		t.Fatalf("expected correlation id corr-1, got %q", got)
	}
}

func TestShipmentConsumerDuplicateIsAcked(t *testing.T) {
	applier := &fakeApplier{result: &service.ShipmentResult{AlreadyProcessed: true}}
	c := NewShipmentConsumer(applier, nil)
	if err := c.HandleMessage(context.Background(), messageOf(t, validEvent(t))); err != nil {
		t.Fatalf("expected duplicate to be acked, got %v", err)
	}
}

func TestShipmentConsumerPoisonMessages(t *testing.T) {
	wrongType := validEvent(t)
	wrongType.EventType = "shipments.created"
	badDirection := validEvent(t)
	badDirection.Direction = "SIDEWAYS"
	badCommodity := validEvent(t)
	badCommodity.CommodityID = "copper"
	badTime := validEvent(t)
	badTime.DeliveredAt = "yesterday"
	noEnvelope := validEvent(t)
	noEnvelope.EventID = ""

	cases := []struct {
		name string
		msg  *sarama.ConsumerMessage
	}{
		{"empty", &sarama.ConsumerMessage{}},
		{"not json", &sarama.ConsumerMessage{Value: []byte("{")}},
		{"wrong type", messageOf(t, wrongType)},
		{"bad direction", messageOf(t, badDirection)},
		{"bad commodity", messageOf(t, badCommodity)},
		{"bad delivered_at", messageOf(t, badTime)},
		{"missing event id", messageOf(t, noEnvelope)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			applier := &fakeApplier{}
			err := NewShipmentConsumer(applier, nil).HandleMessage(context.Background(), tc.msg)
			if !isDLQ(err) {
				t.Fatalf("expected dlq error, got %v", err)
			}
			if applier.calls != 0 {
				t.Fatalf("poison message must not reach the ledger")
			}
		})
	}
}

func TestShipmentConsumerRejectionsGoToDLQ(t *testing.T) {
	applier := &fakeApplier{err: inventory.ErrInsufficientInventory}
	err := NewShipmentConsumer(applier, nil).HandleMessage(context.Background(), messageOf(t, validEvent(t)))
	var dlqErr *kafka.DLQError
	if !errors.As(err, &dlqErr) {
		t.Fatalf("expected dlq error, got %v", err)
	}
	if dlqErr.Reason != string(service.KindCapacity) {
		t.Fatalf("expected reason capacity, got %s", dlqErr.Reason)
	}
}

func TestShipmentConsumerRetriesInternalErrors(t *testing.T) {
	applier := &fakeApplier{err: errors.New("connection reset")}
	err := NewShipmentConsumer(applier, nil).HandleMessage(context.Background(), messageOf(t, validEvent(t)))
	if err == nil || isDLQ(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
