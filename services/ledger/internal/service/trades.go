package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/inventory"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type CreateTradeInput struct {
	CommodityID    uuid.UUID
	CounterpartyID uuid.UUID
	Type           storage.TradeType
	Quantity       int64
	Price          decimal.Decimal
	// TradeDate defaults to now.
	TradeDate      time.Time
	SettlementDate time.Time
	Location       string
}

func (in CreateTradeInput) validate() error {
	var errs validation.ValidationErrors
	if in.CommodityID == uuid.Nil {
		errs.Add("commodity_id", "commodity_id is required")
	}
	if in.CounterpartyID == uuid.Nil {
		errs.Add("counterparty_id", "counterparty_id is required")
	}
	switch in.Type {
	case storage.TradeTypeBuy, storage.TradeTypeSell:
	default:
		errs.Add("type", "type must be BUY or SELL")
	}
	errs.PositiveInt("quantity", in.Quantity)
	if !in.Price.IsPositive() {
		errs.Add("price", "price must be positive")
	}
	if in.SettlementDate.IsZero() {
		errs.Add("settlement_date", "settlement_date is required")
	} else if !in.TradeDate.IsZero() && in.SettlementDate.Before(in.TradeDate) {
		errs.Add("settlement_date", "settlement_date must not be before trade_date")
	}
	return errs.Err()
}

type ExecuteTradeInput struct {
	TradeID uuid.UUID
	// Routing for the lot a BUY lands in, or the lots a SELL may draw from.
	Warehouse string
	Location  string
	Quality   string
}

type TradeExecution struct {
	Trade     *storage.Trade
	Movements []storage.InventoryMovement
}

// CreateTrade books an OPEN trade and reserves its value against the
// counterparty's credit limit.
func (s *LedgerService) CreateTrade(ctx context.Context, in CreateTradeInput) (*storage.Trade, error) {
	if t, ok := storage.ParseTradeType(string(in.Type)); ok {
		in.Type = t
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var trade *storage.Trade
	err := s.run(ctx, "create_trade", func(uow storage.UnitOfWork) error {
		if _, err := uow.GetCommodity(ctx, in.CommodityID); err != nil {
			return err
		}
		if _, err := uow.GetCounterpartyForUpdate(ctx, in.CounterpartyID); err != nil {
			return err
		}
		cp, err := uow.RefreshCounterpartyExposure(ctx, in.CounterpartyID)
		if err != nil {
			return err
		}

		total := in.Price.Mul(decimal.NewFromInt(in.Quantity))
		if err := CheckCredit(cp, total); err != nil {
			return err
		}

		now := s.now()
		tradeDate := in.TradeDate
		if tradeDate.IsZero() {
			tradeDate = now
		}
		t := &storage.Trade{
			ID:             uuid.New(),
			CommodityID:    in.CommodityID,
			CounterpartyID: in.CounterpartyID,
			Type:           in.Type,
			Quantity:       in.Quantity,
			Price:          in.Price,
			TotalValue:     total,
			Status:         storage.TradeStatusOpen,
			TradeDate:      tradeDate,
			SettlementDate: in.SettlementDate,
			Location:       in.Location,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := uow.InsertTrade(ctx, t); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		if _, err := uow.RefreshCounterpartyExposure(ctx, in.CounterpartyID); err != nil {
			return fmt.Errorf("refresh exposure: %w", err)
		}
		trade = t
		return nil
	}, attribute.String("counterparty_id", in.CounterpartyID.String()))
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// ExecuteTrade moves an OPEN trade to EXECUTED together with its inventory
// effect. If the inventory effect fails the trade stays OPEN.
func (s *LedgerService) ExecuteTrade(ctx context.Context, in ExecuteTradeInput) (*TradeExecution, error) {
	var result *TradeExecution
	var drawn int
	err := s.run(ctx, "execute_trade", func(uow storage.UnitOfWork) error {
		drawn = 0
		trade, err := uow.GetTradeForUpdate(ctx, in.TradeID)
		if err != nil {
			return err
		}
		if trade.Status != storage.TradeStatusOpen {
			return fmt.Errorf("%w: trade %s is %s", ErrInvalidTradeState, trade.ID, trade.Status)
		}

		ref := storage.Reference{Type: storage.ReferenceTrade, ID: &trade.ID}
		reason := fmt.Sprintf("trade %s %s", trade.Type, trade.ID)
		var movements []storage.InventoryMovement

		switch trade.Type {
		case storage.TradeTypeBuy:
			commodity, err := uow.GetCommodity(ctx, trade.CommodityID)
			if err != nil {
				return err
			}
			location := in.Location
			if location == "" {
				location = trade.Location
			}
			unitCost := trade.Price
			_, movement, err := s.engine.Receive(ctx, uow, inventory.Receipt{
				Key:             s.routing.key(trade.CommodityID, in.Warehouse, location, in.Quality),
				Unit:            commodity.Unit,
				Quantity:        trade.Quantity,
				UnitCost:        &unitCost,
				UnitMarketValue: marketValueFor(commodity, trade.Price),
				Reason:          reason,
				Reference:       ref,
			})
			if err != nil {
				return err
			}
			movements = append(movements, *movement)
		case storage.TradeTypeSell:
			price := trade.Price
			draws, err := s.engine.Draw(ctx, uow, inventory.DrawRequest{
				Filter:          routingFilter(trade.CommodityID, in.Warehouse, in.Location, in.Quality),
				Quantity:        trade.Quantity,
				UnitMarketValue: &price,
				Reason:          reason,
				Reference:       ref,
			})
			if err != nil {
				return err
			}
			drawn = len(draws)
			movements = movementsOf(draws)
		default:
			return fmt.Errorf("%w: unknown trade type %q", ErrInvalidTradeState, trade.Type)
		}

		now := s.now()
		trade.Status = storage.TradeStatusExecuted
		trade.ExecutedAt = &now
		trade.UpdatedAt = now
		if err := uow.UpdateTrade(ctx, trade); err != nil {
			return fmt.Errorf("update trade: %w", err)
		}
		result = &TradeExecution{Trade: trade, Movements: movements}
		return nil
	}, attribute.String("trade_id", in.TradeID.String()))
	if err != nil {
		return nil, err
	}

	if drawn > 0 {
		s.metrics.ObserveAllocation(drawn)
	}
	s.events.TradeExecuted(ctx, result.Trade, result.Movements)
	return result, nil
}

// CancelTrade cancels an OPEN trade and releases its credit reservation.
func (s *LedgerService) CancelTrade(ctx context.Context, id uuid.UUID) (*storage.Trade, error) {
	var trade *storage.Trade
	var cp *storage.Counterparty
	err := s.run(ctx, "cancel_trade", func(uow storage.UnitOfWork) error {
		t, err := uow.GetTradeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != storage.TradeStatusOpen {
			return fmt.Errorf("%w: trade %s is %s", ErrInvalidTradeState, t.ID, t.Status)
		}
		if _, err := uow.GetCounterpartyForUpdate(ctx, t.CounterpartyID); err != nil {
			return err
		}

		t.Status = storage.TradeStatusCancelled
		t.UpdatedAt = s.now()
		if err := uow.UpdateTrade(ctx, t); err != nil {
			return fmt.Errorf("update trade: %w", err)
		}
		refreshed, err := uow.RefreshCounterpartyExposure(ctx, t.CounterpartyID)
		if err != nil {
			return fmt.Errorf("refresh exposure: %w", err)
		}
		trade, cp = t, refreshed
		return nil
	}, attribute.String("trade_id", id.String()))
	if err != nil {
		return nil, err
	}

	s.events.TradeCancelled(ctx, trade, cp)
	return trade, nil
}

// SettleTrade records settlement of an EXECUTED trade. It has no ledger
// side effects.
func (s *LedgerService) SettleTrade(ctx context.Context, id uuid.UUID) (*storage.Trade, error) {
	var trade *storage.Trade
	err := s.run(ctx, "settle_trade", func(uow storage.UnitOfWork) error {
		t, err := uow.GetTradeForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != storage.TradeStatusExecuted {
			return fmt.Errorf("%w: trade %s is %s", ErrInvalidTradeState, t.ID, t.Status)
		}
		t.Status = storage.TradeStatusSettled
		t.UpdatedAt = s.now()
		if err := uow.UpdateTrade(ctx, t); err != nil {
			return fmt.Errorf("update trade: %w", err)
		}
		trade = t
		return nil
	}, attribute.String("trade_id", id.String()))
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func routingFilter(commodityID uuid.UUID, warehouse, location, quality string) storage.LotFilter {
	filter := storage.LotFilter{CommodityID: &commodityID}
	if warehouse != "" {
		filter.Warehouse = &warehouse
	}
	if location != "" {
		filter.Location = &location
	}
	if quality != "" {
		filter.Quality = &quality
	}
	return filter
}

// marketValueFor prefers the commodity's quoted price and falls back to the
// transaction price for commodities that have never been quoted.
func marketValueFor(commodity *storage.Commodity, fallback decimal.Decimal) *decimal.Decimal {
	value := commodity.CurrentPrice
	if !value.IsPositive() {
		value = fallback
	}
	return &value
}
