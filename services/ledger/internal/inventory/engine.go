package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine applies movements to lots through the caller's unit of work. It
// never opens a transaction of its own.
type Engine struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply locks the lot, applies the movement and appends its audit row.
func (e *Engine) Apply(ctx context.Context, uow storage.UnitOfWork, req MovementRequest) (*storage.InventoryLot, *storage.InventoryMovement, error) {
	kind, ok := storage.ParseMovementKind(string(req.Kind))
	if !ok {
		return nil, nil, ErrInvalidMovementKind
	}
	req.Kind = kind

	lot, err := uow.GetLotForUpdate(ctx, req.LotID)
	if err != nil {
		return nil, nil, err
	}
	return e.apply(ctx, uow, lot, req)
}

func (e *Engine) apply(ctx context.Context, uow storage.UnitOfWork, lot *storage.InventoryLot, req MovementRequest) (*storage.InventoryLot, *storage.InventoryMovement, error) {
	outcome, err := Compute(*lot, req)
	if err != nil {
		return nil, nil, err
	}

	now := e.now()
	updated := *lot
	updated.Quantity = outcome.Quantity
	updated.CostBasis = outcome.CostBasis
	updated.MarketValue = outcome.MarketValue
	updated.UpdatedAt = now
	if err := uow.UpdateLot(ctx, &updated); err != nil {
		return nil, nil, fmt.Errorf("update lot %s: %w", lot.ID, err)
	}

	refType := req.Reference.Type
	if refType == "" {
		refType = storage.ReferenceManual
	}
	movement := &storage.InventoryMovement{
		ID:                uuid.New(),
		LotID:             lot.ID,
		Kind:              req.Kind,
		QuantityDelta:     outcome.Delta,
		ResultingQuantity: outcome.Quantity,
		UnitCost:          req.UnitCost,
		UnitMarketValue:   req.UnitMarketValue,
		Reason:            req.Reason,
		ReferenceType:     refType,
		ReferenceID:       req.Reference.ID,
		CreatedAt:         now,
	}
	if err := uow.InsertMovement(ctx, movement); err != nil {
		return nil, nil, fmt.Errorf("insert movement: %w", err)
	}

	e.logger.Debug("movement applied",
		"lot_id", lot.ID,
		"kind", req.Kind,
		"delta", outcome.Delta,
		"resulting_quantity", outcome.Quantity,
		"reference_type", refType,
	)
	return &updated, movement, nil
}

type Receipt struct {
	Key             storage.LotKey
	Unit            string
	Quantity        int64
	UnitCost        *decimal.Decimal
	UnitMarketValue *decimal.Decimal
	Reason          string
	Reference       storage.Reference
}

// Receive adds stock to the lot identified by the receipt key, creating an
// empty lot first when none exists. Either way exactly one IN movement is
// recorded.
func (e *Engine) Receive(ctx context.Context, uow storage.UnitOfWork, r Receipt) (*storage.InventoryLot, *storage.InventoryMovement, error) {
	if r.Key.CommodityID == uuid.Nil {
		return nil, nil, ErrMissingCommodity
	}
	if r.Quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}

	lot, err := uow.FindLotForUpdate(ctx, r.Key)
	switch {
	case errors.Is(err, storage.ErrLotNotFound):
		now := e.now()
		lot = &storage.InventoryLot{
			ID:          uuid.New(),
			CommodityID: r.Key.CommodityID,
			Unit:        r.Unit,
			Warehouse:   r.Key.Warehouse,
			Location:    r.Key.Location,
			Quality:     r.Key.Quality,
			CostBasis:   decimal.Zero,
			MarketValue: decimal.Zero,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := uow.InsertLot(ctx, lot); err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	}

	return e.apply(ctx, uow, lot, MovementRequest{
		LotID:           lot.ID,
		Kind:            storage.MovementIn,
		Quantity:        r.Quantity,
		Reason:          r.Reason,
		Reference:       r.Reference,
		UnitCost:        r.UnitCost,
		UnitMarketValue: r.UnitMarketValue,
	})
}

type DrawRequest struct {
	Filter          storage.LotFilter
	Quantity        int64
	UnitMarketValue *decimal.Decimal
	Reason          string
	Reference       storage.Reference
}

type Draw struct {
	Lot      storage.InventoryLot
	Movement storage.InventoryMovement
	Quantity int64
}

// Draw allocates the requested quantity across the matching lots, oldest
// first, and records one OUT movement per lot drawn from.
func (e *Engine) Draw(ctx context.Context, uow storage.UnitOfWork, req DrawRequest) ([]Draw, error) {
	if req.Filter.CommodityID == nil {
		return nil, ErrMissingCommodity
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	filter := req.Filter
	filter.InStockOnly = true
	candidates, err := uow.ListLotsForUpdate(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list candidate lots: %w", err)
	}

	allocations, err := AllocateForSell(req.Quantity, candidates)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*storage.InventoryLot, len(candidates))
	for i := range candidates {
		byID[candidates[i].ID] = &candidates[i]
	}

	draws := make([]Draw, 0, len(allocations))
	for _, alloc := range allocations {
		lot, movement, err := e.apply(ctx, uow, byID[alloc.LotID], MovementRequest{
			LotID:           alloc.LotID,
			Kind:            storage.MovementOut,
			Quantity:        alloc.Quantity,
			Reason:          req.Reason,
			Reference:       req.Reference,
			UnitMarketValue: req.UnitMarketValue,
		})
		if err != nil {
			return nil, err
		}
		draws = append(draws, Draw{Lot: *lot, Movement: *movement, Quantity: alloc.Quantity})
	}
	return draws, nil
}
