package testutil

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	WheatCommodityID  = uuid.MustParse("00000000-0000-0000-0000-000000000011")
	CopperCommodityID = uuid.MustParse("00000000-0000-0000-0000-000000000012")

	AcmeCounterpartyID  = uuid.MustParse("00000000-0000-0000-0000-000000000021")
	SmallCounterpartyID = uuid.MustParse("00000000-0000-0000-0000-000000000022")
)

// SeedFixtures upserts the commodities and counterparties shared by the
// integration tests.
func SeedFixtures(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []struct {
		sql  string
		args []any
	}{
		{
			`INSERT INTO commodities (id, name, category, unit, current_price)
			 VALUES ($1, 'Wheat', 'AGRICULTURE', 'bushel', '7.25')
			 ON CONFLICT (id) DO UPDATE SET current_price = EXCLUDED.current_price, price_change = 0, price_change_percent = 0`,
			[]any{WheatCommodityID},
		},
		{
			`INSERT INTO commodities (id, name, category, unit, current_price)
			 VALUES ($1, 'Copper', 'METALS', 'tonne', '8400')
			 ON CONFLICT (id) DO UPDATE SET current_price = EXCLUDED.current_price, price_change = 0, price_change_percent = 0`,
			[]any{CopperCommodityID},
		},
		{
			`INSERT INTO counterparties (id, name, rating, credit_limit)
			 VALUES ($1, 'Acme Grain', 'A', '1000000')
			 ON CONFLICT (id) DO UPDATE SET credit_limit = EXCLUDED.credit_limit`,
			[]any{AcmeCounterpartyID},
		},
		{
			`INSERT INTO counterparties (id, name, rating, credit_limit)
			 VALUES ($1, 'Small Trader', 'BB', '1000')
			 ON CONFLICT (id) DO UPDATE SET credit_limit = EXCLUDED.credit_limit`,
			[]any{SmallCounterpartyID},
		},
	}
	for _, st := range statements {
		if _, err := pool.Exec(ctx, st.sql, st.args...); err != nil {
			return fmt.Errorf("seed fixtures: %w", err)
		}
	}
	return nil
}
