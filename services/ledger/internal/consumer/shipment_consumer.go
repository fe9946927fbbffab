package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/aJV99/CommodiTrade-sub000/libs/kafka"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/service"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/google/uuid"
)

const shipmentDeliveredEventType = "shipments.delivered"

type ShipmentDeliveredEvent struct {
	kafka.Envelope
	ShipmentID  string `json:"shipment_id"`
	TradeID     string `json:"trade_id,omitempty"`
	CommodityID string `json:"commodity_id"`
	Quantity    int64  `json:"quantity"`
	Direction   string `json:"direction"`
	DeliveredAt string `json:"delivered_at,omitempty"`
	Warehouse   string `json:"warehouse,omitempty"`
	Location    string `json:"location,omitempty"`
	Quality     string `json:"quality,omitempty"`
}

type ShipmentApplier interface {
	ApplyShipmentDelivery(ctx context.Context, d service.ShipmentDelivery) (*service.ShipmentResult, error)
}

// ShipmentConsumer books delivered shipments into inventory.
type ShipmentConsumer struct {
	ledger ShipmentApplier
	logger *slog.Logger
}

func NewShipmentConsumer(ledger ShipmentApplier, logger *slog.Logger) *ShipmentConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShipmentConsumer{ledger: ledger, logger: logger}
}

// HandleMessage returns a kafka.DLQ error for messages that can never be
// applied; any other error is retried by the consumer group.
func (c *ShipmentConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return kafka.DLQ(fmt.Errorf("empty kafka message"), "empty_message")
	}
	var event ShipmentDeliveredEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return kafka.DLQ(fmt.Errorf("decode %s: %w", shipmentDeliveredEventType, err), "decode_error")
	}
	delivery, err := event.toDelivery()
	if err != nil {
		return kafka.DLQ(err, "invalid_event")
	}

	correlationID := strings.TrimSpace(event.CorrelationID)
	if correlationID == "" {
		correlationID = event.EventID
	}
	ctx = service.WithCorrelationID(ctx, correlationID)

	result, err := c.ledger.ApplyShipmentDelivery(ctx, delivery)
	if err != nil {
		kind := service.Classify(err)
		if kind == service.KindInternal {
			return fmt.Errorf("apply shipment %s: %w", event.ShipmentID, err)
		}
		c.logger.Warn("shipment rejected", "shipment_id", event.ShipmentID, "event_id", event.EventID, "kind", kind, "error", err)
		return kafka.DLQ(err, string(kind))
	}
	if result.AlreadyProcessed {
		c.logger.Info("shipment already applied", "shipment_id", event.ShipmentID, "event_id", event.EventID)
		return nil
	}
	c.logger.Info("shipment applied", "shipment_id", event.ShipmentID, "direction", delivery.Direction, "movements", len(result.Movements))
	return nil
}

func (e *ShipmentDeliveredEvent) Validate() error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != shipmentDeliveredEventType {
		return fmt.Errorf("unexpected event_type: %s", e.EventType)
	}
	if e.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if _, ok := storage.ParseShipmentDirection(e.Direction); !ok {
		return fmt.Errorf("direction must be INBOUND or OUTBOUND")
	}
	return nil
}

func (e *ShipmentDeliveredEvent) toDelivery() (service.ShipmentDelivery, error) {
	if err := e.Validate(); err != nil {
		return service.ShipmentDelivery{}, err
	}
	shipmentID, err := parseUUID(e.ShipmentID, "shipment_id")
	if err != nil {
		return service.ShipmentDelivery{}, err
	}
	commodityID, err := parseUUID(e.CommodityID, "commodity_id")
	if err != nil {
		return service.ShipmentDelivery{}, err
	}
	direction, _ := storage.ParseShipmentDirection(e.Direction)

	d := service.ShipmentDelivery{
		ShipmentID:  shipmentID,
		CommodityID: commodityID,
		Quantity:    e.Quantity,
		Direction:   direction,
		Warehouse:   strings.TrimSpace(e.Warehouse),
		Location:    strings.TrimSpace(e.Location),
		Quality:     strings.TrimSpace(e.Quality),
	}
	if strings.TrimSpace(e.TradeID) != "" {
		tradeID, err := parseUUID(e.TradeID, "trade_id")
		if err != nil {
			return service.ShipmentDelivery{}, err
		}
		d.TradeID = &tradeID
	}
	if strings.TrimSpace(e.DeliveredAt) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(e.DeliveredAt))
		if err != nil {
			return service.ShipmentDelivery{}, fmt.Errorf("delivered_at must be RFC3339")
		}
		d.DeliveredAt = ts.UTC()
	}
	return d, nil
}

func parseUUID(value, field string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return uuid.Nil, fmt.Errorf("%s is required", field)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", field)
	}
	return parsed, nil
}
