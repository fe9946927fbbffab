package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// The ledger service creates the schema on startup; run it once before
// seeding.
func main() {
	env := getEnv("CTRADE_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: CTRADE_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "ctrade_ledger")
	user := getEnv("POSTGRES_USER", "ctrade")
	password := getEnv("POSTGRES_PASSWORD", "ctrade")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	if err := seedCommodities(ctx, pool); err != nil {
		log.Fatalf("seed commodities: %v", err)
	}
	fmt.Println("✓ Commodities seeded")

	if err := seedCounterparties(ctx, pool); err != nil {
		log.Fatalf("seed counterparties: %v", err)
	}
	fmt.Println("✓ Counterparties seeded")

	if os.Getenv("SEED_TESTDATA") == "1" {
		if err := seedTestData(ctx, pool); err != nil {
			log.Fatalf("seed test data: %v", err)
		}
		fmt.Println("✓ Test lots seeded")
	}

	fmt.Println("\n=== Seed Complete ===")
	for _, c := range commodities {
		fmt.Printf("  %-8s %s\n", c.name, c.id)
	}
	for _, cp := range counterparties {
		fmt.Printf("  %-20s %s (limit %s)\n", cp.name, cp.id, cp.creditLimit)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

type commoditySeed struct {
	id       uuid.UUID
	name     string
	category string
	unit     string
	price    decimal.Decimal
}

var commodities = []commoditySeed{
	{uuid.MustParse("00000000-0000-0000-0000-000000000011"), "Wheat", "AGRICULTURE", "bushel", decimal.RequireFromString("7.25")},
	{uuid.MustParse("00000000-0000-0000-0000-000000000012"), "Copper", "METALS", "tonne", decimal.RequireFromString("8400")},
	{uuid.MustParse("00000000-0000-0000-0000-000000000013"), "Brent", "ENERGY", "barrel", decimal.RequireFromString("82.40")},
	{uuid.MustParse("00000000-0000-0000-0000-000000000014"), "Coffee", "SOFTS", "lb", decimal.RequireFromString("1.95")},
}

type counterpartySeed struct {
	id          uuid.UUID
	name        string
	rating      string
	creditLimit decimal.Decimal
}

var counterparties = []counterpartySeed{
	{uuid.MustParse("00000000-0000-0000-0000-000000000021"), "Acme Grain", "A", decimal.NewFromInt(1_000_000)},
	{uuid.MustParse("00000000-0000-0000-0000-000000000022"), "Small Trader", "BB", decimal.NewFromInt(1_000)},
	{uuid.MustParse("00000000-0000-0000-0000-000000000023"), "Northsea Energy", "AA", decimal.NewFromInt(5_000_000)},
}

func seedCommodities(ctx context.Context, pool *pgxpool.Pool) error {
	for _, c := range commodities {
		_, err := pool.Exec(ctx, `
			INSERT INTO commodities (id, name, category, unit, current_price, updated_at)
			VALUES ($1, $2, $3, $4, $5::numeric, now())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    category = EXCLUDED.category,
			    unit = EXCLUDED.unit
		`, c.id, c.name, c.category, c.unit, c.price.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func seedCounterparties(ctx context.Context, pool *pgxpool.Pool) error {
	for _, cp := range counterparties {
		_, err := pool.Exec(ctx, `
			INSERT INTO counterparties (id, name, rating, credit_limit, updated_at)
			VALUES ($1, $2, $3, $4::numeric, now())
			ON CONFLICT (id) DO UPDATE
			SET rating = EXCLUDED.rating,
			    credit_limit = EXCLUDED.credit_limit,
			    updated_at = EXCLUDED.updated_at
		`, cp.id, cp.name, cp.rating, cp.creditLimit.String())
		if err != nil {
			return err
		}
	}
	return nil
}
