package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLotFilterBuildEmpty(t *testing.T) {
	query, args := LotFilter{}.build()
	if query != " ORDER BY created_at ASC, id ASC" {
		t.Fatalf("unexpected query %q", query)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestLotFilterBuildAllFields(t *testing.T) {
	commodityID := uuid.New()
	warehouse, location, quality := "Rotterdam", "Bay 4", "Grade A"
	query, args := LotFilter{
		CommodityID: &commodityID,
		Warehouse:   &warehouse,
		Location:    &location,
		Quality:     &quality,
		InStockOnly: true,
	}.build()

	want := " WHERE commodity_id = $1 AND warehouse = $2 AND location = $3 AND quality = $4 AND quantity > 0 ORDER BY created_at ASC, id ASC"
	if query != want {
		t.Fatalf("unexpected query\n got: %q\nwant: %q", query, want)
	}
	if len(args) != 4 || args[0] != commodityID || args[3] != quality {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestMovementFilterBuild(t *testing.T) {
	lotID := uuid.New()
	ref := ReferenceTrade
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := MovementFilter{LotID: &lotID, ReferenceType: &ref, Since: &since, Limit: 10000}.build()

	want := " WHERE lot_id = $1 AND reference_type = $2 AND created_at >= $3 ORDER BY created_at DESC, id DESC LIMIT $4"
	if query != want {
		t.Fatalf("unexpected query\n got: %q\nwant: %q", query, want)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[1] != "TRADE" {
		t.Fatalf("expected reference type arg, got %v", args[1])
	}
	if args[3] != maxListLimit {
		t.Fatalf("expected clamped limit %d, got %v", maxListLimit, args[3])
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, defaultListLimit},
		{-5, defaultListLimit},
		{25, 25},
		{maxListLimit + 1, maxListLimit},
	}
	for _, tc := range cases {
		if got := clampLimit(tc.in); got != tc.want {
			t.Fatalf("clampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
