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

type CreateContractInput struct {
	CommodityID    uuid.UUID
	CounterpartyID uuid.UUID
	Type           storage.ContractType
	Quantity       int64
	Price          decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	Terms          string
}

func (in CreateContractInput) validate() error {
	var errs validation.ValidationErrors
	if in.CommodityID == uuid.Nil {
		errs.Add("commodity_id", "commodity_id is required")
	}
	if in.CounterpartyID == uuid.Nil {
		errs.Add("counterparty_id", "counterparty_id is required")
	}
	switch in.Type {
	case storage.ContractTypePurchase, storage.ContractTypeSale:
	default:
		errs.Add("type", "type must be PURCHASE or SALE")
	}
	errs.PositiveInt("quantity", in.Quantity)
	if !in.Price.IsPositive() {
		errs.Add("price", "price must be positive")
	}
	if in.StartDate.IsZero() {
		errs.Add("start_date", "start_date is required")
	}
	if in.EndDate.IsZero() {
		errs.Add("end_date", "end_date is required")
	}
	if err := errs.Err(); err != nil {
		return err
	}
	if !in.EndDate.After(in.StartDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// UpdateContractInput changes only the fields that are set.
type UpdateContractInput struct {
	ContractID uuid.UUID
	Quantity   *int64
	Price      *decimal.Decimal
	StartDate  *time.Time
	EndDate    *time.Time
	Terms      *string
}

func (in UpdateContractInput) validate() error {
	var errs validation.ValidationErrors
	if in.Quantity != nil {
		errs.PositiveInt("quantity", *in.Quantity)
	}
	if in.Price != nil && !in.Price.IsPositive() {
		errs.Add("price", "price must be positive")
	}
	return errs.Err()
}

type ExecuteTrancheInput struct {
	ContractID uuid.UUID
	Quantity   int64
	// ExecutionDate defaults to now.
	ExecutionDate time.Time
	TradeID       *uuid.UUID
	Warehouse     string
	Location      string
	Quality       string
}

type TrancheExecution struct {
	Contract  *storage.Contract
	Execution *storage.ContractExecution
	Movements []storage.InventoryMovement
}

func (s *LedgerService) CreateContract(ctx context.Context, in CreateContractInput) (*storage.Contract, error) {
	if t, ok := storage.ParseContractType(string(in.Type)); ok {
		in.Type = t
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var contract *storage.Contract
	err := s.run(ctx, "create_contract", func(uow storage.UnitOfWork) error {
		if _, err := uow.GetCommodity(ctx, in.CommodityID); err != nil {
			return err
		}
		if _, err := uow.GetCounterpartyForUpdate(ctx, in.CounterpartyID); err != nil {
			return err
		}

		now := s.now()
		c := &storage.Contract{
			ID:                uuid.New(),
			CommodityID:       in.CommodityID,
			CounterpartyID:    in.CounterpartyID,
			Type:              in.Type,
			Quantity:          in.Quantity,
			Price:             in.Price,
			TotalValue:        in.Price.Mul(decimal.NewFromInt(in.Quantity)),
			ExecutedQuantity:  0,
			RemainingQuantity: in.Quantity,
			Status:            storage.ContractStatusActive,
			StartDate:         in.StartDate,
			EndDate:           in.EndDate,
			Terms:             in.Terms,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := uow.InsertContract(ctx, c); err != nil {
			return fmt.Errorf("insert contract: %w", err)
		}
		contract = c
		return nil
	}, attribute.String("counterparty_id", in.CounterpartyID.String()))
	if err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *LedgerService) UpdateContractTerms(ctx context.Context, in UpdateContractInput) (*storage.Contract, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var contract *storage.Contract
	err := s.run(ctx, "update_contract", func(uow storage.UnitOfWork) error {
		c, err := uow.GetContractForUpdate(ctx, in.ContractID)
		if err != nil {
			return err
		}
		if c.Status != storage.ContractStatusActive {
			return fmt.Errorf("%w: contract %s is %s", ErrInvalidContractState, c.ID, c.Status)
		}

		if in.Quantity != nil && *in.Quantity != c.Quantity {
			if *in.Quantity < c.ExecutedQuantity {
				var errs validation.ValidationErrors
				errs.Add("quantity", fmt.Sprintf("quantity must not be below executed quantity %d", c.ExecutedQuantity))
				return errs
			}
			delta := *in.Quantity - c.Quantity
			c.Quantity = *in.Quantity
			c.RemainingQuantity = max(c.RemainingQuantity+delta, 0)
		}
		if in.Price != nil {
			c.Price = *in.Price
		}
		c.TotalValue = c.Price.Mul(decimal.NewFromInt(c.Quantity))
		if in.StartDate != nil {
			c.StartDate = *in.StartDate
		}
		if in.EndDate != nil {
			c.EndDate = *in.EndDate
		}
		if !c.EndDate.After(c.StartDate) {
			return ErrInvalidDateRange
		}
		if in.Terms != nil {
			c.Terms = *in.Terms
		}
		if c.RemainingQuantity == 0 {
			c.Status = storage.ContractStatusCompleted
		}
		c.UpdatedAt = s.now()

		if err := uow.UpdateContract(ctx, c); err != nil {
			return fmt.Errorf("update contract: %w", err)
		}
		contract = c
		return nil
	}, attribute.String("contract_id", in.ContractID.String()))
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// ExecuteContractTranche fills part of an ACTIVE contract and applies the
// matching inventory movement.
func (s *LedgerService) ExecuteContractTranche(ctx context.Context, in ExecuteTrancheInput) (*TrancheExecution, error) {
	if in.Quantity <= 0 {
		var errs validation.ValidationErrors
		errs.Add("quantity", "quantity must be positive")
		return nil, errs
	}

	var result *TrancheExecution
	var drawn int
	err := s.run(ctx, "execute_tranche", func(uow storage.UnitOfWork) error {
		drawn = 0
		c, err := uow.GetContractForUpdate(ctx, in.ContractID)
		if err != nil {
			return err
		}
		if c.Status != storage.ContractStatusActive {
			return fmt.Errorf("%w: contract %s is %s", ErrInvalidContractState, c.ID, c.Status)
		}
		if in.Quantity > c.RemainingQuantity {
			return fmt.Errorf("%w: requested %d, remaining %d", ErrExceedsRemainingBalance, in.Quantity, c.RemainingQuantity)
		}
		if in.TradeID != nil {
			trade, err := uow.GetTradeForUpdate(ctx, *in.TradeID)
			if err != nil {
				return err
			}
			if trade.CommodityID != c.CommodityID || trade.CounterpartyID != c.CounterpartyID {
				return fmt.Errorf("%w: trade %s is not for contract %s", ErrTradeMismatch, trade.ID, c.ID)
			}
		}

		ref := storage.Reference{Type: storage.ReferenceContract, ID: &c.ID}
		reason := fmt.Sprintf("contract %s tranche", c.Type)
		price := c.Price
		var movements []storage.InventoryMovement

		switch c.Type {
		case storage.ContractTypePurchase:
			commodity, err := uow.GetCommodity(ctx, c.CommodityID)
			if err != nil {
				return err
			}
			_, movement, err := s.engine.Receive(ctx, uow, inventory.Receipt{
				Key:             s.routing.key(c.CommodityID, in.Warehouse, in.Location, in.Quality),
				Unit:            commodity.Unit,
				Quantity:        in.Quantity,
				UnitCost:        &price,
				UnitMarketValue: marketValueFor(commodity, c.Price),
				Reason:          reason,
				Reference:       ref,
			})
			if err != nil {
				return err
			}
			movements = append(movements, *movement)
		case storage.ContractTypeSale:
			draws, err := s.engine.Draw(ctx, uow, inventory.DrawRequest{
				Filter:          routingFilter(c.CommodityID, in.Warehouse, in.Location, in.Quality),
				Quantity:        in.Quantity,
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
			return fmt.Errorf("%w: unknown contract type %q", ErrInvalidContractState, c.Type)
		}

		now := s.now()
		c.ExecutedQuantity += in.Quantity
		c.RemainingQuantity -= in.Quantity
		if c.RemainingQuantity == 0 {
			c.Status = storage.ContractStatusCompleted
		}
		c.UpdatedAt = now
		if err := uow.UpdateContract(ctx, c); err != nil {
			return fmt.Errorf("update contract: %w", err)
		}

		executionDate := in.ExecutionDate
		if executionDate.IsZero() {
			executionDate = now
		}
		execution := &storage.ContractExecution{
			ID:            uuid.New(),
			ContractID:    c.ID,
			Quantity:      in.Quantity,
			Price:         c.Price,
			ExecutionDate: executionDate,
			TradeID:       in.TradeID,
			CreatedAt:     now,
		}
		if err := uow.InsertContractExecution(ctx, execution); err != nil {
			return fmt.Errorf("insert contract execution: %w", err)
		}

		result = &TrancheExecution{Contract: c, Execution: execution, Movements: movements}
		return nil
	}, attribute.String("contract_id", in.ContractID.String()))
	if err != nil {
		return nil, err
	}

	if drawn > 0 {
		s.metrics.ObserveAllocation(drawn)
	}
	s.events.ContractTranche(ctx, result.Contract, result.Execution, result.Movements)
	return result, nil
}

func (s *LedgerService) CancelContract(ctx context.Context, id uuid.UUID, reason string) (*storage.Contract, error) {
	var contract *storage.Contract
	err := s.run(ctx, "cancel_contract", func(uow storage.UnitOfWork) error {
		c, err := uow.GetContractForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != storage.ContractStatusActive {
			return fmt.Errorf("%w: contract %s is %s", ErrInvalidContractState, c.ID, c.Status)
		}
		c.Status = storage.ContractStatusCancelled
		c.CancellationReason = reason
		c.UpdatedAt = s.now()
		if err := uow.UpdateContract(ctx, c); err != nil {
			return fmt.Errorf("update contract: %w", err)
		}
		contract = c
		return nil
	}, attribute.String("contract_id", id.String()))
	if err != nil {
		return nil, err
	}
	return contract, nil
}
