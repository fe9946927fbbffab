package inventory

import (
	"math"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// costBasisScale matches the NUMERIC scale of the lot columns.
const costBasisScale = 8

type MovementRequest struct {
	LotID uuid.UUID
	Kind  storage.MovementKind
	// Quantity is the amount moved for IN and OUT and the target quantity
	// for ADJUSTMENT.
	Quantity        int64
	Reason          string
	Reference       storage.Reference
	UnitCost        *decimal.Decimal
	UnitMarketValue *decimal.Decimal
}

// Outcome is the lot state produced by a movement.
type Outcome struct {
	Quantity    int64
	Delta       int64
	CostBasis   decimal.Decimal
	MarketValue decimal.Decimal
}

// Compute applies req to lot without touching storage.
func Compute(lot storage.InventoryLot, req MovementRequest) (Outcome, error) {
	out := Outcome{
		CostBasis:   lot.CostBasis,
		MarketValue: lot.MarketValue,
	}

	switch req.Kind {
	case storage.MovementIn:
		if req.Quantity <= 0 {
			return Outcome{}, ErrInvalidQuantity
		}
		if req.Quantity > math.MaxInt64-lot.Quantity {
			return Outcome{}, ErrQuantityOverflow
		}
		out.Delta = req.Quantity
		out.Quantity = lot.Quantity + req.Quantity
		if req.UnitCost != nil {
			out.CostBasis = weightedAverage(lot.Quantity, lot.CostBasis, req.Quantity, *req.UnitCost)
		}
	case storage.MovementOut:
		if req.Quantity <= 0 {
			return Outcome{}, ErrInvalidQuantity
		}
		if lot.Quantity-req.Quantity < 0 {
			return Outcome{}, ErrInsufficientQuantity
		}
		out.Delta = -req.Quantity
		out.Quantity = lot.Quantity - req.Quantity
	case storage.MovementAdjustment:
		if req.Quantity < 0 {
			return Outcome{}, ErrNegativeResultingQuantity
		}
		out.Delta = req.Quantity - lot.Quantity
		out.Quantity = req.Quantity
		if req.UnitCost != nil {
			out.CostBasis = *req.UnitCost
		}
	default:
		return Outcome{}, ErrInvalidMovementKind
	}

	if req.UnitMarketValue != nil {
		out.MarketValue = *req.UnitMarketValue
	}
	return out, nil
}

func weightedAverage(heldQty int64, heldCost decimal.Decimal, addedQty int64, addedCost decimal.Decimal) decimal.Decimal {
	total := heldQty + addedQty
	if total == 0 {
		return heldCost
	}
	held := decimal.NewFromInt(heldQty).Mul(heldCost)
	added := decimal.NewFromInt(addedQty).Mul(addedCost)
	return held.Add(added).Div(decimal.NewFromInt(total)).Round(costBasisScale)
}
