package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// seedTestData stocks opening lots so SELL trades and SALE contracts can be
// exercised right away. Each new lot gets a matching opening IN movement;
// existing lots are left alone.
func seedTestData(ctx context.Context, pool *pgxpool.Pool) error {
	lots := []struct {
		id          uuid.UUID
		commodity   commoditySeed
		quantity    int64
		warehouse   string
		location    string
		quality     string
		costBasis   string
		createdDays int
	}{
		{uuid.MustParse("00000000-0000-0000-0000-000000000401"), commodities[0], 5000, "MAIN", "Silo 1", "STANDARD", "6.80", 30},
		{uuid.MustParse("00000000-0000-0000-0000-000000000402"), commodities[0], 2500, "MAIN", "Silo 2", "STANDARD", "7.05", 10},
		{uuid.MustParse("00000000-0000-0000-0000-000000000403"), commodities[1], 40, "ROTTERDAM", "Bay 4", "GRADE_A", "8150", 20},
		{uuid.MustParse("00000000-0000-0000-0000-000000000404"), commodities[2], 12000, "MAIN", "Tank 7", "STANDARD", "79.10", 5},
	}

	now := time.Now().UTC()
	for _, lot := range lots {
		created := now.AddDate(0, 0, -lot.createdDays)
		movementID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("opening|"+lot.id.String()))
		_, err := pool.Exec(ctx, `
			WITH lot AS (
				INSERT INTO inventory_lots (id, commodity_id, quantity, unit, warehouse, location, quality, cost_basis, market_value, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $10)
				ON CONFLICT DO NOTHING
				RETURNING id, quantity, cost_basis, market_value, created_at
			)
			INSERT INTO inventory_movements (id, lot_id, kind, quantity_delta, resulting_quantity, unit_cost, unit_market_value, reason, reference_type, created_at)
			SELECT $11, id, 'IN', quantity, quantity, cost_basis, market_value, 'opening balance', 'MANUAL', created_at
			FROM lot
		`, lot.id, lot.commodity.id, lot.quantity, lot.commodity.unit, lot.warehouse, lot.location, lot.quality, lot.costBasis, lot.commodity.price.String(), created, movementID)
		if err != nil {
			return err
		}
	}
	return nil
}
