package inventory

import (
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/google/uuid"
)

type Allocation struct {
	LotID    uuid.UUID
	Quantity int64
}

// AllocateForSell draws required units from candidates in the order given,
// skipping empty lots. Either the full quantity is allocated or nothing is.
func AllocateForSell(required int64, candidates []storage.InventoryLot) ([]Allocation, error) {
	if required <= 0 {
		return nil, ErrInvalidQuantity
	}

	remaining := required
	var allocations []Allocation
	for _, lot := range candidates {
		if remaining == 0 {
			break
		}
		if lot.Quantity <= 0 {
			continue
		}
		take := min(lot.Quantity, remaining)
		allocations = append(allocations, Allocation{LotID: lot.ID, Quantity: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, ErrInsufficientInventory
	}
	return allocations, nil
}
