package inventory

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestConcurrentDrawsNeverOversell(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION") == "" {
		t.Skip("set RUN_DB_INTEGRATION=1 to run")
	}
	pool, err := testutil.SetupTestDB()
	if err != nil {
		t.Skipf("db connection failed: %v", err)
	}
	t.Cleanup(pool.Close)

	ctx := context.Background()
	store := storage.New(pool, nil, nil, storage.DefaultRetryPolicy())
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := testutil.SeedFixtures(ctx, pool); err != nil {
		t.Fatalf("SeedFixtures: %v", err)
	}
	if err := testutil.CleanupTestData(ctx, pool); err != nil {
		t.Fatalf("CleanupTestData: %v", err)
	}
	t.Cleanup(func() { _ = testutil.CleanupTestData(context.Background(), pool) })

	now := time.Now().UTC()
	lot := &storage.InventoryLot{
		ID:          uuid.New(),
		CommodityID: testutil.WheatCommodityID,
		Quantity:    100,
		Unit:        "bushel",
		Warehouse:   "Rotterdam",
		Location:    "Bay 3",
		Quality:     "Grade A",
		CostBasis:   decimal.RequireFromString("7"),
		MarketValue: decimal.RequireFromString("7.25"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.WithinTx(ctx, func(uow storage.UnitOfWork) error { return uow.InsertLot(ctx, lot) }); err != nil {
		t.Fatalf("insert lot: %v", err)
	}

	engine := NewEngine(nil)
	commodityID := testutil.WheatCommodityID
	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.WithinTx(ctx, func(uow storage.UnitOfWork) error {
				_, err := engine.Draw(ctx, uow, DrawRequest{
					Filter:    storage.LotFilter{CommodityID: &commodityID},
					Quantity:  70,
					Reason:    "sell",
					Reference: storage.Reference{Type: storage.ReferenceManual},
				})
				return err
			})
		}(i)
	}
	wg.Wait()

	var succeeded, short int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientInventory):
			short++
		default:
			t.Fatalf("unexpected draw error: %v", err)
		}
	}
	if succeeded != 1 || short != 1 {
		t.Fatalf("expected one draw to succeed and one to be short, got %d/%d", succeeded, short)
	}

	got, err := store.GetLot(ctx, lot.ID)
	if err != nil {
		t.Fatalf("GetLot: %v", err)
	}
	if got.Quantity != 30 {
		t.Fatalf("expected 30 left, got %d", got.Quantity)
	}
	movements, err := store.ListMovements(ctx, storage.MovementFilter{LotID: &lot.ID})
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if len(movements) != 1 || movements[0].QuantityDelta != -70 {
		t.Fatalf("expected a single -70 movement, got %+v", movements)
	}
}
