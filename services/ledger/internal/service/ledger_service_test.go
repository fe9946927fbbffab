package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/inventory"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage/storagetest"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/validation"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type published struct {
	topic string
	key   string
	value any
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, topic, key string, value any) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, 0, p.err
	}
	p.messages = append(p.messages, published{topic: topic, key: key, value: value})
	return 0, int64(len(p.messages)), nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.topic)
	}
	return out
}

var testTopics = Topics{
	TradesExecuted:     "trades.executed",
	TradesCancelled:    "trades.cancelled",
	ContractTranches:   "contracts.tranche_executed",
	InventoryMovements: "inventory.movements",
}

var testRouting = Routing{Warehouse: "MAIN", Location: "DEFAULT", Quality: "STANDARD"}

type fixture struct {
	store          *storagetest.Store
	svc            *LedgerService
	pub            *recordingPublisher
	commodityID    uuid.UUID
	counterpartyID uuid.UUID
}

func newFixture(t *testing.T, creditLimit string) *fixture {
	t.Helper()
	store := storagetest.New()
	f := &fixture{
		store:          store,
		pub:            &recordingPublisher{},
		commodityID:    uuid.New(),
		counterpartyID: uuid.New(),
	}
	store.AddCommodity(storage.Commodity{
		ID:           f.commodityID,
		Name:         "Wheat",
		Category:     "AGRICULTURE",
		Unit:         "bushel",
		CurrentPrice: decimal.RequireFromString("7.5"),
	})
	store.AddCounterparty(storage.Counterparty{
		ID:          f.counterpartyID,
		Name:        "Acme Grain",
		Rating:      "A",
		CreditLimit: decimal.RequireFromString(creditLimit),
	})

	metrics := NewMetrics(prometheus.NewRegistry())
	events := NewEventPublisher(f.pub, testTopics, slog.Default(), metrics)
	f.svc = NewLedgerService(store, events, testRouting, slog.Default(), metrics)
	return f
}

func (f *fixture) seedLot(location string, qty int64, age time.Duration) storage.InventoryLot {
	created := time.Now().UTC().Add(-age)
	lot := storage.InventoryLot{
		ID:          uuid.New(),
		CommodityID: f.commodityID,
		Quantity:    qty,
		Unit:        "bushel",
		Warehouse:   "MAIN",
		Location:    location,
		Quality:     "STANDARD",
		CostBasis:   decimal.NewFromInt(6),
		MarketValue: decimal.RequireFromString("7.5"),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	f.store.AddLot(lot)
	return lot
}

func (f *fixture) createTrade(t *testing.T, tradeType storage.TradeType, qty int64, price string) *storage.Trade {
	t.Helper()
	trade, err := f.svc.CreateTrade(context.Background(), CreateTradeInput{
		CommodityID:    f.commodityID,
		CounterpartyID: f.counterpartyID,
		Type:           tradeType,
		Quantity:       qty,
		Price:          decimal.RequireFromString(price),
		SettlementDate: time.Now().Add(48 * time.Hour),
		Location:       "Pier 7",
	})
	if err != nil {
		t.Fatalf("CreateTrade: %v", err)
	}
	return trade
}

func (f *fixture) counterparty(t *testing.T) *storage.Counterparty {
	t.Helper()
	cp, err := f.store.GetCounterparty(context.Background(), f.counterpartyID)
	if err != nil {
		t.Fatalf("GetCounterparty: %v", err)
	}
	return cp
}

func TestCreateTradeReservesCredit(t *testing.T) {
	f := newFixture(t, "10000")
	trade := f.createTrade(t, storage.TradeTypeBuy, 100, "10")

	if trade.Status != storage.TradeStatusOpen {
		t.Fatalf("expected OPEN, got %s", trade.Status)
	}
	if !trade.TotalValue.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected total 1000, got %s", trade.TotalValue)
	}
	cp := f.counterparty(t)
	if !cp.CreditUsed.Equal(decimal.NewFromInt(1000)) || cp.TotalTrades != 1 {
		t.Fatalf("unexpected counterparty %+v", cp)
	}
	if cp.LastTradeDate == nil {
		t.Fatalf("expected last trade date")
	}
}

func TestCreateTradeCreditLimitExceeded(t *testing.T) {
	f := newFixture(t, "1500")
	f.createTrade(t, storage.TradeTypeBuy, 100, "10")

	_, err := f.svc.CreateTrade(context.Background(), CreateTradeInput{
		CommodityID:    f.commodityID,
		CounterpartyID: f.counterpartyID,
		Type:           storage.TradeTypeSell,
		Quantity:       60,
		Price:          decimal.NewFromInt(10),
		SettlementDate: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ErrCreditLimitExceeded) {
		t.Fatalf("expected ErrCreditLimitExceeded, got %v", err)
	}
	if Classify(err) != KindCapacity {
		t.Fatalf("expected capacity kind, got %s", Classify(err))
	}
	cp := f.counterparty(t)
	if !cp.CreditUsed.Equal(decimal.NewFromInt(1000)) || cp.TotalTrades != 1 {
		t.Fatalf("credit must be unchanged, got %+v", cp)
	}
}

func TestCreateTradeExactlyAtLimit(t *testing.T) {
	f := newFixture(t, "1000")
	f.createTrade(t, storage.TradeTypeBuy, 100, "10")
	if cp := f.counterparty(t); !cp.CreditUsed.Equal(cp.CreditLimit) {
		t.Fatalf("expected credit fully used, got %s", cp.CreditUsed)
	}
}

func TestCreateTradeLookupsAndValidation(t *testing.T) {
	f := newFixture(t, "1000")
	settle := time.Now().Add(time.Hour)
	cases := []struct {
		name string
		in   CreateTradeInput
		want ErrorKind
		err  error
	}{
		{
			name: "unknown commodity",
			in:   CreateTradeInput{CommodityID: uuid.New(), CounterpartyID: f.counterpartyID, Type: "BUY", Quantity: 1, Price: decimal.NewFromInt(1), SettlementDate: settle},
			want: KindNotFound,
			err:  storage.ErrCommodityNotFound,
		},
		{
			name: "unknown counterparty",
			in:   CreateTradeInput{CommodityID: f.commodityID, CounterpartyID: uuid.New(), Type: "buy", Quantity: 1, Price: decimal.NewFromInt(1), SettlementDate: settle},
			want: KindNotFound,
			err:  storage.ErrCounterpartyNotFound,
		},
		{
			name: "zero quantity",
			in:   CreateTradeInput{CommodityID: f.commodityID, CounterpartyID: f.counterpartyID, Type: "BUY", Price: decimal.NewFromInt(1), SettlementDate: settle},
			want: KindValidation,
		},
		{
			name: "bad type",
			in:   CreateTradeInput{CommodityID: f.commodityID, CounterpartyID: f.counterpartyID, Type: "HOLD", Quantity: 1, Price: decimal.NewFromInt(1), SettlementDate: settle},
			want: KindValidation,
		},
		{
			name: "missing settlement",
			in:   CreateTradeInput{CommodityID: f.commodityID, CounterpartyID: f.counterpartyID, Type: "BUY", Quantity: 1, Price: decimal.NewFromInt(1)},
			want: KindValidation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTrade(context.Background(), tc.in)
			if Classify(err) != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestCancelTradeRestoresCreditExactly(t *testing.T) {
	f := newFixture(t, "5000")
	f.createTrade(t, storage.TradeTypeBuy, 30, "15")
	before := f.counterparty(t)

	trade := f.createTrade(t, storage.TradeTypeBuy, 100, "10")
	cancelled, err := f.svc.CancelTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("CancelTrade: %v", err)
	}
	if cancelled.Status != storage.TradeStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}

	after := f.counterparty(t)
	if !after.CreditUsed.Equal(before.CreditUsed) {
		t.Fatalf("expected credit used %s, got %s", before.CreditUsed, after.CreditUsed)
	}
	if after.TotalTrades != before.TotalTrades || !after.TotalVolume.Equal(before.TotalVolume) {
		t.Fatalf("expected aggregates restored, got %+v", after)
	}
	if len(f.store.Movements()) != 0 {
		t.Fatalf("cancel must not touch inventory")
	}

	if _, err := f.svc.CancelTrade(context.Background(), trade.ID); !errors.Is(err, ErrInvalidTradeState) {
		t.Fatalf("expected ErrInvalidTradeState on second cancel, got %v", err)
	}
}

func TestExecuteBuyTradeReceivesIntoTradeLocation(t *testing.T) {
	f := newFixture(t, "5000")
	trade := f.createTrade(t, storage.TradeTypeBuy, 100, "10")

	result, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeInput{TradeID: trade.ID})
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if result.Trade.Status != storage.TradeStatusExecuted || result.Trade.ExecutedAt == nil {
		t.Fatalf("unexpected trade %+v", result.Trade)
	}
	lots := f.store.Lots()
	if len(lots) != 1 {
		t.Fatalf("expected one lot, got %d", len(lots))
	}
	lot := lots[0]
	if lot.Warehouse != "MAIN" || lot.Location != "Pier 7" || lot.Quality != "STANDARD" {
		t.Fatalf("unexpected routing %+v", lot.Key())
	}
	if lot.Quantity != 100 || !lot.CostBasis.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected lot %+v", lot)
	}
	if len(result.Movements) != 1 || result.Movements[0].ResultingQuantity != 100 {
		t.Fatalf("unexpected movements %+v", result.Movements)
	}

	topics := f.pub.topics()
	if len(topics) != 2 || topics[0] != "inventory.movements" || topics[1] != "trades.executed" {
		t.Fatalf("unexpected published topics %v", topics)
	}
}

func TestExecuteBuyTradeBlendsIntoExistingLot(t *testing.T) {
	f := newFixture(t, "5000")
	existing := storage.InventoryLot{
		ID:          uuid.New(),
		CommodityID: f.commodityID,
		Quantity:    100,
		Unit:        "bushel",
		Warehouse:   "MAIN",
		Location:    "Silo 1",
		Quality:     "STANDARD",
		CostBasis:   decimal.NewFromInt(10),
	}
	f.store.AddLot(existing)
	trade := f.createTrade(t, storage.TradeTypeBuy, 50, "16")

	if _, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeInput{TradeID: trade.ID, Location: "Silo 1"}); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	lot, _ := f.store.GetLot(context.Background(), existing.ID)
	if lot.Quantity != 150 || !lot.CostBasis.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("unexpected lot %+v", lot)
	}
}

func TestExecuteSellTradeAllocatesOldestFirst(t *testing.T) {
	f := newFixture(t, "5000")
	first := f.seedLot("A", 80, 3*time.Hour)
	second := f.seedLot("B", 50, 2*time.Hour)
	third := f.seedLot("C", 25, time.Hour)
	trade := f.createTrade(t, storage.TradeTypeSell, 120, "9")

	result, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeInput{TradeID: trade.ID, Warehouse: "MAIN"})
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if len(result.Movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(result.Movements))
	}
	if result.Movements[0].LotID != first.ID || result.Movements[0].QuantityDelta != -80 {
		t.Fatalf("unexpected first movement %+v", result.Movements[0])
	}
	if result.Movements[1].LotID != second.ID || result.Movements[1].QuantityDelta != -40 {
		t.Fatalf("unexpected second movement %+v", result.Movements[1])
	}
	if mv := result.Movements[1].UnitMarketValue; mv == nil || !mv.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("expected unit market value 9, got %v", mv)
	}
	lot, _ := f.store.GetLot(context.Background(), third.ID)
	if lot.Quantity != 25 {
		t.Fatalf("expected third lot untouched, got %d", lot.Quantity)
	}
}

func TestExecuteSellTradeInsufficientInventoryKeepsTradeOpen(t *testing.T) {
	f := newFixture(t, "5000")
	a := f.seedLot("A", 60, 2*time.Hour)
	f.seedLot("B", 50, time.Hour)
	trade := f.createTrade(t, storage.TradeTypeSell, 150, "9")

	_, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeInput{TradeID: trade.ID})
	if !errors.Is(err, inventory.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}
	stored, _ := f.svc.GetTrade(context.Background(), trade.ID)
	if stored.Status != storage.TradeStatusOpen {
		t.Fatalf("expected trade to stay OPEN, got %s", stored.Status)
	}
	lot, _ := f.store.GetLot(context.Background(), a.ID)
	if lot.Quantity != 60 || len(f.store.Movements()) != 0 {
		t.Fatalf("expected no inventory change")
	}
	if len(f.pub.topics()) != 0 {
		t.Fatalf("expected no events for a failed command")
	}
}

func TestExecuteTradeRollsBackWhenStatusUpdateFails(t *testing.T) {
	f := newFixture(t, "5000")
	lot := f.seedLot("A", 60, time.Hour)
	trade := f.createTrade(t, storage.TradeTypeSell, 10, "9")
	f.store.FailOn("UpdateTrade", errors.New("connection reset"))

	_, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeInput{TradeID: trade.ID})
	if Classify(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	stored, _ := f.store.GetLot(context.Background(), lot.ID)
	if stored.Quantity != 60 || len(f.store.Movements()) != 0 {
		t.Fatalf("expected lot draw to roll back, got %d", stored.Quantity)
	}
}

func TestExecuteTradeRequiresOpen(t *testing.T) {
	f := newFixture(t, "5000")
	trade := f.createTrade(t, storage.TradeTypeBuy, 10, "10")
	if _, err := f.svc.CancelTrade(context.Background(), trade.ID); err != nil {
		t.Fatalf("CancelTrade: %v", err)
	}
	_, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeInput{TradeID: trade.ID})
	if !errors.Is(err, ErrInvalidTradeState) || Classify(err) != KindState {
		t.Fatalf("expected ErrInvalidTradeState, got %v", err)
	}
}

func TestSettleTrade(t *testing.T) {
	f := newFixture(t, "5000")
	trade := f.createTrade(t, storage.TradeTypeBuy, 10, "10")

	if _, err := f.svc.SettleTrade(context.Background(), trade.ID); !errors.Is(err, ErrInvalidTradeState) {
		t.Fatalf("expected ErrInvalidTradeState for OPEN trade, got %v", err)
	}
	if _, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeInput{TradeID: trade.ID}); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	before := f.counterparty(t)
	movements := len(f.store.Movements())

	settled, err := f.svc.SettleTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("SettleTrade: %v", err)
	}
	if settled.Status != storage.TradeStatusSettled {
		t.Fatalf("expected SETTLED, got %s", settled.Status)
	}
	if len(f.store.Movements()) != movements {
		t.Fatalf("settle must not move inventory")
	}
	if after := f.counterparty(t); !after.CreditUsed.Equal(before.CreditUsed) {
		t.Fatalf("settle must not change exposure")
	}
	if _, err := f.svc.CancelTrade(context.Background(), trade.ID); !errors.Is(err, ErrInvalidTradeState) {
		t.Fatalf("expected SETTLED to be terminal, got %v", err)
	}
}

func TestPublishFailureDoesNotFailCommand(t *testing.T) {
	f := newFixture(t, "5000")
	f.pub.err = errors.New("broker down")
	trade := f.createTrade(t, storage.TradeTypeBuy, 10, "10")

	if _, err := f.svc.ExecuteTrade(context.Background(), ExecuteTradeInput{TradeID: trade.ID}); err != nil {
		t.Fatalf("expected committed execution despite publish failure, got %v", err)
	}
	stored, _ := f.svc.GetTrade(context.Background(), trade.ID)
	if stored.Status != storage.TradeStatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", stored.Status)
	}
}

func TestCheckCredit(t *testing.T) {
	cp := &storage.Counterparty{CreditLimit: decimal.NewFromInt(100), CreditUsed: decimal.NewFromInt(60)}
	if err := CheckCredit(cp, decimal.NewFromInt(40)); err != nil {
		t.Fatalf("expected exact fit to pass, got %v", err)
	}
	if err := CheckCredit(cp, decimal.RequireFromString("40.01")); !errors.Is(err, ErrCreditLimitExceeded) {
		t.Fatalf("expected ErrCreditLimitExceeded, got %v", err)
	}
	if got := AvailableCredit(cp); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected 40 available, got %s", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{validation.ValidationErrors{{Field: "quantity", Message: "bad"}}, KindValidation},
		{ErrInvalidDateRange, KindValidation},
		{inventory.ErrInvalidMovementKind, KindValidation},
		{storage.ErrLotNotFound, KindNotFound},
		{ErrInvalidContractState, KindState},
		{inventory.ErrInsufficientInventory, KindCapacity},
		{ErrExceedsRemainingBalance, KindCapacity},
		{inventory.ErrInsufficientQuantity, KindIntegrity},
		{inventory.ErrNegativeResultingQuantity, KindIntegrity},
		{inventory.ErrQuantityOverflow, KindIntegrity},
		{ErrTradeMismatch, KindValidation},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
