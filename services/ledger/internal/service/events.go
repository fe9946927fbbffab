package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/libs/kafka"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
)

const (
	tradeExecutedEventType     = "trades.executed"
	tradeCancelledEventType    = "trades.cancelled"
	contractTrancheEventType   = "contracts.tranche_executed"
	inventoryMovementEventType = "inventory.movements"
)

type Topics struct {
	TradesExecuted     string
	TradesCancelled    string
	ContractTranches   string
	InventoryMovements string
}

type correlationKey struct{}

// WithCorrelationID tags events published for commands run with ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

type MovementPayload struct {
	MovementID        string `json:"movement_id"`
	LotID             string `json:"lot_id"`
	Kind              string `json:"kind"`
	QuantityDelta     int64  `json:"quantity_delta"`
	ResultingQuantity int64  `json:"resulting_quantity"`
	UnitCost          string `json:"unit_cost,omitempty"`
	UnitMarketValue   string `json:"unit_market_value,omitempty"`
	Reason            string `json:"reason,omitempty"`
	ReferenceType     string `json:"reference_type"`
	ReferenceID       string `json:"reference_id,omitempty"`
	CreatedAt         string `json:"created_at"`
}

type InventoryMovementEvent struct {
	kafka.Envelope
	MovementPayload
}

type TradeExecutedEvent struct {
	kafka.Envelope
	TradeID        string            `json:"trade_id"`
	CommodityID    string            `json:"commodity_id"`
	CounterpartyID string            `json:"counterparty_id"`
	Type           string            `json:"type"`
	Quantity       int64             `json:"quantity"`
	Price          string            `json:"price"`
	TotalValue     string            `json:"total_value"`
	ExecutedAt     string            `json:"executed_at"`
	Movements      []MovementPayload `json:"movements"`
}

type TradeCancelledEvent struct {
	kafka.Envelope
	TradeID        string `json:"trade_id"`
	CounterpartyID string `json:"counterparty_id"`
	TotalValue     string `json:"total_value"`
	CreditUsed     string `json:"credit_used"`
	CancelledAt    string `json:"cancelled_at"`
}

type ContractTrancheEvent struct {
	kafka.Envelope
	ContractID        string            `json:"contract_id"`
	ExecutionID       string            `json:"execution_id"`
	TradeID           string            `json:"trade_id,omitempty"`
	Type              string            `json:"type"`
	Quantity          int64             `json:"quantity"`
	Price             string            `json:"price"`
	ExecutedQuantity  int64             `json:"executed_quantity"`
	RemainingQuantity int64             `json:"remaining_quantity"`
	Status            string            `json:"status"`
	ExecutionDate     string            `json:"execution_date"`
	Movements         []MovementPayload `json:"movements"`
}

// EventPublisher sends ledger events after their unit of work committed.
// Failures are logged and counted; the committed state stands.
type EventPublisher struct {
	producer kafka.Publisher
	topics   Topics
	logger   *slog.Logger
	metrics  *Metrics
}

func NewEventPublisher(producer kafka.Publisher, topics Topics, logger *slog.Logger, metrics *Metrics) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		producer: producer,
		topics:   topics,
		logger:   logger,
		metrics:  metrics,
	}
}

func (p *EventPublisher) publish(ctx context.Context, topic, key string, value any) {
	if p == nil || p.producer == nil || topic == "" {
		return
	}
	if _, _, err := p.producer.PublishJSON(ctx, topic, key, value); err != nil {
		p.metrics.IncPublishFailure(topic)
		p.logger.Error("publish ledger event failed", "topic", topic, "key", key, "error", err)
	}
}

func (p *EventPublisher) envelope(ctx context.Context, eventType string, parts ...string) kafka.Envelope {
	id := kafka.DeterministicEventID(append([]string{eventType}, parts...)...)
	env, _ := kafka.NewEnvelopeWithID(id, eventType, 1, CorrelationID(ctx))
	return env
}

func (p *EventPublisher) movements(ctx context.Context, movements []storage.InventoryMovement) []MovementPayload {
	payloads := make([]MovementPayload, 0, len(movements))
	for _, m := range movements {
		payload := movementPayload(m)
		payloads = append(payloads, payload)
		if p != nil {
			p.publish(ctx, p.topics.InventoryMovements, m.LotID.String(), InventoryMovementEvent{
				Envelope:        p.envelope(ctx, inventoryMovementEventType, m.ID.String()),
				MovementPayload: payload,
			})
		}
	}
	return payloads
}

func (p *EventPublisher) TradeExecuted(ctx context.Context, trade *storage.Trade, movements []storage.InventoryMovement) {
	if p == nil {
		return
	}
	executedAt := ""
	if trade.ExecutedAt != nil {
		executedAt = trade.ExecutedAt.UTC().Format(time.RFC3339Nano)
	}
	p.publish(ctx, p.topics.TradesExecuted, trade.ID.String(), TradeExecutedEvent{
		Envelope:       p.envelope(ctx, tradeExecutedEventType, trade.ID.String()),
		TradeID:        trade.ID.String(),
		CommodityID:    trade.CommodityID.String(),
		CounterpartyID: trade.CounterpartyID.String(),
		Type:           string(trade.Type),
		Quantity:       trade.Quantity,
		Price:          trade.Price.String(),
		TotalValue:     trade.TotalValue.String(),
		ExecutedAt:     executedAt,
		Movements:      p.movements(ctx, movements),
	})
}

func (p *EventPublisher) TradeCancelled(ctx context.Context, trade *storage.Trade, cp *storage.Counterparty) {
	if p == nil {
		return
	}
	p.publish(ctx, p.topics.TradesCancelled, trade.ID.String(), TradeCancelledEvent{
		Envelope:       p.envelope(ctx, tradeCancelledEventType, trade.ID.String()),
		TradeID:        trade.ID.String(),
		CounterpartyID: trade.CounterpartyID.String(),
		TotalValue:     trade.TotalValue.String(),
		CreditUsed:     cp.CreditUsed.String(),
		CancelledAt:    trade.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (p *EventPublisher) ContractTranche(ctx context.Context, contract *storage.Contract, execution *storage.ContractExecution, movements []storage.InventoryMovement) {
	if p == nil {
		return
	}
	tradeID := ""
	if execution.TradeID != nil {
		tradeID = execution.TradeID.String()
	}
	p.publish(ctx, p.topics.ContractTranches, contract.ID.String(), ContractTrancheEvent{
		Envelope:          p.envelope(ctx, contractTrancheEventType, execution.ID.String()),
		ContractID:        contract.ID.String(),
		ExecutionID:       execution.ID.String(),
		TradeID:           tradeID,
		Type:              string(contract.Type),
		Quantity:          execution.Quantity,
		Price:             execution.Price.String(),
		ExecutedQuantity:  contract.ExecutedQuantity,
		RemainingQuantity: contract.RemainingQuantity,
		Status:            string(contract.Status),
		ExecutionDate:     execution.ExecutionDate.UTC().Format(time.RFC3339Nano),
		Movements:         p.movements(ctx, movements),
	})
}

// Movements publishes standalone movement events, used by commands that
// are not tied to a trade or contract.
func (p *EventPublisher) Movements(ctx context.Context, movements ...storage.InventoryMovement) {
	if p == nil {
		return
	}
	p.movements(ctx, movements)
}

func movementPayload(m storage.InventoryMovement) MovementPayload {
	payload := MovementPayload{
		MovementID:        m.ID.String(),
		LotID:             m.LotID.String(),
		Kind:              string(m.Kind),
		QuantityDelta:     m.QuantityDelta,
		ResultingQuantity: m.ResultingQuantity,
		Reason:            m.Reason,
		ReferenceType:     string(m.ReferenceType),
		CreatedAt:         m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.UnitCost != nil {
		payload.UnitCost = m.UnitCost.String()
	}
	if m.UnitMarketValue != nil {
		payload.UnitMarketValue = m.UnitMarketValue.String()
	}
	if m.ReferenceID != nil {
		payload.ReferenceID = m.ReferenceID.String()
	}
	return payload
}
