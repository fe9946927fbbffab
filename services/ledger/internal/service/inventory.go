package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/inventory"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const percentScale = 4

type MovementResult struct {
	Lot      *storage.InventoryLot
	Movement *storage.InventoryMovement
}

// PostInventoryMovement applies a single manual movement to a lot.
func (s *LedgerService) PostInventoryMovement(ctx context.Context, req inventory.MovementRequest) (*MovementResult, error) {
	if req.LotID == uuid.Nil {
		var errs validation.ValidationErrors
		errs.Add("lot_id", "lot_id is required")
		return nil, errs
	}
	if req.Reference.Type == "" {
		req.Reference.Type = storage.ReferenceManual
	}

	var result *MovementResult
	err := s.run(ctx, "post_movement", func(uow storage.UnitOfWork) error {
		lot, movement, err := s.engine.Apply(ctx, uow, req)
		if err != nil {
			return err
		}
		result = &MovementResult{Lot: lot, Movement: movement}
		return nil
	}, attribute.String("lot_id", req.LotID.String()), attribute.String("kind", string(req.Kind)))
	if err != nil {
		return nil, err
	}

	s.events.Movements(ctx, *result.Movement)
	return result, nil
}

type PriceUpdate struct {
	Commodity    *storage.Commodity
	RevaluedLots int64
}

// UpdateCommodityPrice quotes a new price and revalues every lot of the
// commodity at it.
func (s *LedgerService) UpdateCommodityPrice(ctx context.Context, commodityID uuid.UUID, price decimal.Decimal) (*PriceUpdate, error) {
	if !price.IsPositive() {
		var errs validation.ValidationErrors
		errs.Add("price", "price must be positive")
		return nil, errs
	}

	var result *PriceUpdate
	err := s.run(ctx, "update_price", func(uow storage.UnitOfWork) error {
		c, err := uow.GetCommodityForUpdate(ctx, commodityID)
		if err != nil {
			return err
		}
		previous := c.CurrentPrice
		c.CurrentPrice = price
		c.PriceChange = price.Sub(previous)
		c.PriceChangePercent = decimal.Zero
		if previous.IsPositive() {
			c.PriceChangePercent = c.PriceChange.Div(previous).Mul(decimal.NewFromInt(100)).Round(percentScale)
		}
		c.UpdatedAt = s.now()
		if err := uow.UpdateCommodityPrice(ctx, c); err != nil {
			return fmt.Errorf("update commodity price: %w", err)
		}

		n, err := uow.RevalueLots(ctx, c.ID, price)
		if err != nil {
			return fmt.Errorf("revalue lots: %w", err)
		}
		result = &PriceUpdate{Commodity: c, RevaluedLots: n}
		return nil
	}, attribute.String("commodity_id", commodityID.String()))
	if err != nil {
		return nil, err
	}

	s.metrics.AddRevaluedLots(result.RevaluedLots)
	return result, nil
}

type ShipmentDelivery struct {
	ShipmentID  uuid.UUID
	TradeID     *uuid.UUID
	CommodityID uuid.UUID
	Quantity    int64
	Direction   storage.ShipmentDirection
	DeliveredAt time.Time
	Warehouse   string
	Location    string
	Quality     string
}

func (d ShipmentDelivery) validate() error {
	var errs validation.ValidationErrors
	if d.ShipmentID == uuid.Nil {
		errs.Add("shipment_id", "shipment_id is required")
	}
	if d.CommodityID == uuid.Nil {
		errs.Add("commodity_id", "commodity_id is required")
	}
	errs.PositiveInt("quantity", d.Quantity)
	switch d.Direction {
	case storage.ShipmentInbound, storage.ShipmentOutbound:
	default:
		errs.Add("direction", "direction must be INBOUND or OUTBOUND")
	}
	return errs.Err()
}

type ShipmentResult struct {
	Shipment         *storage.Shipment
	Movements        []storage.InventoryMovement
	AlreadyProcessed bool
}

// ApplyShipmentDelivery books the inventory effect of a delivered shipment.
// Deliveries are applied at most once per shipment.
func (s *LedgerService) ApplyShipmentDelivery(ctx context.Context, d ShipmentDelivery) (*ShipmentResult, error) {
	if dir, ok := storage.ParseShipmentDirection(string(d.Direction)); ok {
		d.Direction = dir
	}
	if err := d.validate(); err != nil {
		return nil, err
	}

	var result *ShipmentResult
	var drawn int
	err := s.run(ctx, "apply_shipment", func(uow storage.UnitOfWork) error {
		drawn = 0
		sh, err := uow.GetShipmentForUpdate(ctx, d.ShipmentID)
		switch {
		case err == nil:
			if sh.Status == storage.ShipmentDelivered {
				result = &ShipmentResult{Shipment: sh, AlreadyProcessed: true}
				return nil
			}
			if sh.CommodityID != d.CommodityID || sh.Direction != d.Direction || sh.Quantity != d.Quantity {
				return fmt.Errorf("%w: shipment %s", ErrShipmentMismatch, sh.ID)
			}
		case errors.Is(err, storage.ErrShipmentNotFound):
			sh = &storage.Shipment{
				ID:          d.ShipmentID,
				TradeID:     d.TradeID,
				CommodityID: d.CommodityID,
				Quantity:    d.Quantity,
				Direction:   d.Direction,
				Status:      storage.ShipmentPending,
			}
		default:
			return err
		}

		commodity, err := uow.GetCommodity(ctx, d.CommodityID)
		if err != nil {
			return err
		}

		var unitCost, tradePrice *decimal.Decimal
		location := d.Location
		if sh.TradeID != nil {
			trade, err := uow.GetTradeForUpdate(ctx, *sh.TradeID)
			if err != nil {
				return err
			}
			if trade.CommodityID != d.CommodityID {
				return fmt.Errorf("%w: trade %s is for another commodity", ErrShipmentMismatch, trade.ID)
			}
			price := trade.Price
			unitCost, tradePrice = &price, &price
			if location == "" {
				location = trade.Location
			}
		}

		var unitMarketValue *decimal.Decimal
		switch {
		case d.Direction == storage.ShipmentOutbound && tradePrice != nil:
			unitMarketValue = tradePrice
		case commodity.CurrentPrice.IsPositive():
			unitMarketValue = marketValueFor(commodity, decimal.Zero)
		case tradePrice != nil:
			unitMarketValue = tradePrice
		}

		ref := storage.Reference{Type: storage.ReferenceShipment, ID: &sh.ID}
		reason := fmt.Sprintf("shipment %s delivered", d.Direction)
		var movements []storage.InventoryMovement

		if d.Direction == storage.ShipmentInbound {
			_, movement, err := s.engine.Receive(ctx, uow, inventory.Receipt{
				Key:             s.routing.key(d.CommodityID, d.Warehouse, location, d.Quality),
				Unit:            commodity.Unit,
				Quantity:        d.Quantity,
				UnitCost:        unitCost,
				UnitMarketValue: unitMarketValue,
				Reason:          reason,
				Reference:       ref,
			})
			if err != nil {
				return err
			}
			movements = append(movements, *movement)
		} else {
			draws, err := s.engine.Draw(ctx, uow, inventory.DrawRequest{
				Filter:          routingFilter(d.CommodityID, d.Warehouse, location, d.Quality),
				Quantity:        d.Quantity,
				UnitMarketValue: unitMarketValue,
				Reason:          reason,
				Reference:       ref,
			})
			if err != nil {
				return err
			}
			drawn = len(draws)
			movements = movementsOf(draws)
		}

		now := s.now()
		deliveredAt := d.DeliveredAt
		if deliveredAt.IsZero() {
			deliveredAt = now
		}
		sh.Status = storage.ShipmentDelivered
		sh.DeliveredAt = &deliveredAt
		sh.UpdatedAt = now
		if err := uow.SaveShipment(ctx, sh); err != nil {
			return fmt.Errorf("save shipment: %w", err)
		}
		result = &ShipmentResult{Shipment: sh, Movements: movements}
		return nil
	}, attribute.String("shipment_id", d.ShipmentID.String()))
	if err != nil {
		s.metrics.IncShipment(string(d.Direction), "error")
		return nil, err
	}

	if result.AlreadyProcessed {
		s.metrics.IncShipment(string(d.Direction), "duplicate")
		return result, nil
	}
	if drawn > 0 {
		s.metrics.ObserveAllocation(drawn)
	}
	s.metrics.IncShipment(string(d.Direction), "applied")
	s.events.Movements(ctx, result.Movements...)
	return result, nil
}
