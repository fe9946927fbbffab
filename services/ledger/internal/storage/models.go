package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

type TradeStatus string

const (
	TradeStatusOpen      TradeStatus = "OPEN"
	TradeStatusExecuted  TradeStatus = "EXECUTED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
	TradeStatusSettled   TradeStatus = "SETTLED"
)

type ContractType string

const (
	ContractTypePurchase ContractType = "PURCHASE"
	ContractTypeSale     ContractType = "SALE"
)

type ContractStatus string

const (
	ContractStatusActive    ContractStatus = "ACTIVE"
	ContractStatusCompleted ContractStatus = "COMPLETED"
	ContractStatusCancelled ContractStatus = "CANCELLED"
)

type MovementKind string

const (
	MovementIn         MovementKind = "IN"
	MovementOut        MovementKind = "OUT"
	MovementAdjustment MovementKind = "ADJUSTMENT"
)

type ReferenceType string

const (
	ReferenceTrade    ReferenceType = "TRADE"
	ReferenceContract ReferenceType = "CONTRACT"
	ReferenceShipment ReferenceType = "SHIPMENT"
	ReferenceManual   ReferenceType = "MANUAL"
)

type ShipmentDirection string

const (
	ShipmentInbound  ShipmentDirection = "INBOUND"
	ShipmentOutbound ShipmentDirection = "OUTBOUND"
)

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "PENDING"
	ShipmentInTransit ShipmentStatus = "IN_TRANSIT"
	ShipmentDelivered ShipmentStatus = "DELIVERED"
)

func ParseTradeType(s string) (TradeType, bool) {
	switch t := TradeType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TradeTypeBuy, TradeTypeSell:
		return t, true
	}
	return "", false
}

func ParseContractType(s string) (ContractType, bool) {
	switch t := ContractType(strings.ToUpper(strings.TrimSpace(s))); t {
	case ContractTypePurchase, ContractTypeSale:
		return t, true
	}
	return "", false
}

func ParseMovementKind(s string) (MovementKind, bool) {
	switch k := MovementKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case MovementIn, MovementOut, MovementAdjustment:
		return k, true
	}
	return "", false
}

func ParseReferenceType(s string) (ReferenceType, bool) {
	switch r := ReferenceType(strings.ToUpper(strings.TrimSpace(s))); r {
	case ReferenceTrade, ReferenceContract, ReferenceShipment, ReferenceManual:
		return r, true
	}
	return "", false
}

func ParseShipmentDirection(s string) (ShipmentDirection, bool) {
	switch d := ShipmentDirection(strings.ToUpper(strings.TrimSpace(s))); d {
	case ShipmentInbound, ShipmentOutbound:
		return d, true
	}
	return "", false
}

type Commodity struct {
	ID                 uuid.UUID
	Name               string
	Category           string
	Unit               string
	CurrentPrice       decimal.Decimal
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
	UpdatedAt          time.Time
}

// LotKey is the identity of a lot: at most one lot exists per key.
type LotKey struct {
	CommodityID uuid.UUID
	Warehouse   string
	Location    string
	Quality     string
}

type InventoryLot struct {
	ID          uuid.UUID
	CommodityID uuid.UUID
	Quantity    int64
	Unit        string
	Warehouse   string
	Location    string
	Quality     string
	CostBasis   decimal.Decimal
	MarketValue decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (l InventoryLot) Key() LotKey {
	return LotKey{CommodityID: l.CommodityID, Warehouse: l.Warehouse, Location: l.Location, Quality: l.Quality}
}

type Reference struct {
	Type ReferenceType
	ID   *uuid.UUID
}

type InventoryMovement struct {
	ID                uuid.UUID
	LotID             uuid.UUID
	Kind              MovementKind
	QuantityDelta     int64
	ResultingQuantity int64
	UnitCost          *decimal.Decimal
	UnitMarketValue   *decimal.Decimal
	Reason            string
	ReferenceType     ReferenceType
	ReferenceID       *uuid.UUID
	CreatedAt         time.Time
}

type Counterparty struct {
	ID            uuid.UUID
	Name          string
	Rating        string
	CreditLimit   decimal.Decimal
	CreditUsed    decimal.Decimal
	TotalTrades   int64
	TotalVolume   decimal.Decimal
	LastTradeDate *time.Time
	UpdatedAt     time.Time
}

type Trade struct {
	ID             uuid.UUID
	CommodityID    uuid.UUID
	CounterpartyID uuid.UUID
	Type           TradeType
	Quantity       int64
	Price          decimal.Decimal
	TotalValue     decimal.Decimal
	Status         TradeStatus
	TradeDate      time.Time
	SettlementDate time.Time
	Location       string
	ExecutedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Contract struct {
	ID                 uuid.UUID
	CommodityID        uuid.UUID
	CounterpartyID     uuid.UUID
	Type               ContractType
	Quantity           int64
	Price              decimal.Decimal
	TotalValue         decimal.Decimal
	ExecutedQuantity   int64
	RemainingQuantity  int64
	Status             ContractStatus
	StartDate          time.Time
	EndDate            time.Time
	Terms              string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ContractExecution struct {
	ID            uuid.UUID
	ContractID    uuid.UUID
	Quantity      int64
	Price         decimal.Decimal
	ExecutionDate time.Time
	TradeID       *uuid.UUID
	CreatedAt     time.Time
}

type Shipment struct {
	ID          uuid.UUID
	TradeID     *uuid.UUID
	CommodityID uuid.UUID
	Quantity    int64
	Direction   ShipmentDirection
	Status      ShipmentStatus
	DeliveredAt *time.Time
	UpdatedAt   time.Time
}
