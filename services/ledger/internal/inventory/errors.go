package inventory

import "errors"

var (
	ErrInvalidQuantity           = errors.New("quantity must be positive")
	ErrInvalidMovementKind       = errors.New("invalid movement kind")
	ErrInsufficientQuantity      = errors.New("insufficient quantity in lot")
	ErrNegativeResultingQuantity = errors.New("adjustment would leave a negative quantity")
	ErrQuantityOverflow          = errors.New("resulting lot quantity exceeds the representable maximum")
	ErrInsufficientInventory     = errors.New("insufficient inventory to satisfy allocation")
	ErrMissingCommodity          = errors.New("commodity is required")
)
