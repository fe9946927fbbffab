package service

import (
	"fmt"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/shopspring/decimal"
)

// CheckCredit reports whether cp can take on amount of additional exposure.
func CheckCredit(cp *storage.Counterparty, amount decimal.Decimal) error {
	if cp.CreditUsed.Add(amount).GreaterThan(cp.CreditLimit) {
		return fmt.Errorf("%w: used %s + %s > limit %s", ErrCreditLimitExceeded,
			cp.CreditUsed.String(), amount.String(), cp.CreditLimit.String())
	}
	return nil
}

func AvailableCredit(cp *storage.Counterparty) decimal.Decimal {
	available := cp.CreditLimit.Sub(cp.CreditUsed)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}
