package service

import (
	"errors"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/inventory"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/validation"
)

var (
	ErrCreditLimitExceeded     = errors.New("credit limit exceeded")
	ErrInvalidTradeState       = errors.New("invalid trade state")
	ErrInvalidContractState    = errors.New("invalid contract state")
	ErrExceedsRemainingBalance = errors.New("tranche exceeds remaining contract balance")
	ErrInvalidDateRange        = errors.New("end date must be after start date")
	ErrShipmentMismatch        = errors.New("shipment does not match recorded shipment")
	ErrTradeMismatch           = errors.New("linked trade does not match contract commodity and counterparty")
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindState      ErrorKind = "state"
	KindCapacity   ErrorKind = "capacity"
	KindIntegrity  ErrorKind = "integrity"
	KindInternal   ErrorKind = "internal"
)

// Classify maps an error returned by LedgerService onto the failure
// taxonomy callers translate into user-facing responses.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidMovementKind),
		errors.Is(err, inventory.ErrMissingCommodity),
		errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrShipmentMismatch),
		errors.Is(err, ErrTradeMismatch):
		return KindValidation
	case errors.Is(err, storage.ErrCommodityNotFound),
		errors.Is(err, storage.ErrCounterpartyNotFound),
		errors.Is(err, storage.ErrLotNotFound),
		errors.Is(err, storage.ErrTradeNotFound),
		errors.Is(err, storage.ErrContractNotFound),
		errors.Is(err, storage.ErrShipmentNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTradeState),
		errors.Is(err, ErrInvalidContractState):
		return KindState
	case errors.Is(err, ErrCreditLimitExceeded),
		errors.Is(err, inventory.ErrInsufficientInventory),
		errors.Is(err, ErrExceedsRemainingBalance):
		return KindCapacity
	case errors.Is(err, inventory.ErrInsufficientQuantity),
		errors.Is(err, inventory.ErrNegativeResultingQuantity),
		errors.Is(err, inventory.ErrQuantityOverflow),
		errors.Is(err, storage.ErrDuplicateLot):
		return KindIntegrity
	}
	return KindInternal
}
