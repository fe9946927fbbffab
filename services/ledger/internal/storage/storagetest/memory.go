// Package storagetest provides an in-memory ledger store for tests.
package storagetest

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type state struct {
	commodities    map[uuid.UUID]storage.Commodity
	counterparties map[uuid.UUID]storage.Counterparty
	lots           map[uuid.UUID]storage.InventoryLot
	movements      []storage.InventoryMovement
	trades         map[uuid.UUID]storage.Trade
	contracts      map[uuid.UUID]storage.Contract
	executions     []storage.ContractExecution
	shipments      map[uuid.UUID]storage.Shipment
}

func (s *state) clone() *state {
	c := &state{
		commodities:    make(map[uuid.UUID]storage.Commodity, len(s.commodities)),
		counterparties: make(map[uuid.UUID]storage.Counterparty, len(s.counterparties)),
		lots:           make(map[uuid.UUID]storage.InventoryLot, len(s.lots)),
		movements:      append([]storage.InventoryMovement(nil), s.movements...),
		trades:         make(map[uuid.UUID]storage.Trade, len(s.trades)),
		contracts:      make(map[uuid.UUID]storage.Contract, len(s.contracts)),
		executions:     append([]storage.ContractExecution(nil), s.executions...),
		shipments:      make(map[uuid.UUID]storage.Shipment, len(s.shipments)),
	}
	for k, v := range s.commodities {
		c.commodities[k] = v
	}
	for k, v := range s.counterparties {
		c.counterparties[k] = v
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.trades {
		c.trades[k] = v
	}
	for k, v := range s.contracts {
		c.contracts[k] = v
	}
	for k, v := range s.shipments {
		c.shipments[k] = v
	}
	return c
}

// Store keeps the ledger in maps. WithinTx runs callbacks one at a time
// against a snapshot that is discarded when the callback fails.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
	Commits  int
}

func New() *Store {
	return &Store{
		st: (&state{}).clone(),
	}
}

// FailOn makes the named UnitOfWork method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == nil {
		s.failures = make(map[string]error)
	}
	s.failures[method] = err
}

func (s *Store) WithinTx(ctx context.Context, fn func(uow storage.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := &uow{st: s.st.clone(), failures: s.failures}
	if err := fn(work); err != nil {
		return err
	}
	s.st = work.st
	s.Commits++
	return nil
}

func (s *Store) AddCommodity(c storage.Commodity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.commodities[c.ID] = c
}

func (s *Store) AddCounterparty(cp storage.Counterparty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.counterparties[cp.ID] = cp
}

func (s *Store) AddLot(lot storage.InventoryLot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.lots[lot.ID] = lot
}

func (s *Store) AddTrade(t storage.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.trades[t.ID] = t
}

func (s *Store) AddContract(c storage.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.contracts[c.ID] = c
}

func (s *Store) AddShipment(sh storage.Shipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.shipments[sh.ID] = sh
}

// Movements returns every recorded movement in insertion order.
func (s *Store) Movements() []storage.InventoryMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.InventoryMovement(nil), s.st.movements...)
}

func (s *Store) Lots() []storage.InventoryLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedLots(s.st.lots, storage.LotFilter{})
}

func (s *Store) Shipment(id uuid.UUID) (storage.Shipment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.st.shipments[id]
	return sh, ok
}

func (s *Store) GetCommodity(ctx context.Context, id uuid.UUID) (*storage.Commodity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&uow{st: s.st}).GetCommodity(ctx, id)
}

func (s *Store) GetCounterparty(ctx context.Context, id uuid.UUID) (*storage.Counterparty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&uow{st: s.st}).GetCounterpartyForUpdate(ctx, id)
}

func (s *Store) GetLot(ctx context.Context, id uuid.UUID) (*storage.InventoryLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&uow{st: s.st}).GetLotForUpdate(ctx, id)
}

func (s *Store) ListLots(ctx context.Context, filter storage.LotFilter) ([]storage.InventoryLot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedLots(s.st.lots, filter), nil
}

func (s *Store) ListMovements(ctx context.Context, filter storage.MovementFilter) ([]storage.InventoryMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.InventoryMovement
	for i := len(s.st.movements) - 1; i >= 0; i-- {
		m := s.st.movements[i]
		if filter.LotID != nil && m.LotID != *filter.LotID {
			continue
		}
		if filter.Kind != nil && m.Kind != *filter.Kind {
			continue
		}
		if filter.ReferenceType != nil && m.ReferenceType != *filter.ReferenceType {
			continue
		}
		if filter.ReferenceID != nil && (m.ReferenceID == nil || *m.ReferenceID != *filter.ReferenceID) {
			continue
		}
		if filter.Since != nil && m.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetTrade(ctx context.Context, id uuid.UUID) (*storage.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&uow{st: s.st}).GetTradeForUpdate(ctx, id)
}

func (s *Store) GetContract(ctx context.Context, id uuid.UUID) (*storage.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&uow{st: s.st}).GetContractForUpdate(ctx, id)
}

func (s *Store) ListContractExecutions(ctx context.Context, contractID uuid.UUID) ([]storage.ContractExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ContractExecution
	for _, e := range s.st.executions {
		if e.ContractID == contractID {
			out = append(out, e)
		}
	}
	return out, nil
}

func sortedLots(lots map[uuid.UUID]storage.InventoryLot, filter storage.LotFilter) []storage.InventoryLot {
	var out []storage.InventoryLot
	for _, lot := range lots {
		if filter.CommodityID != nil && lot.CommodityID != *filter.CommodityID {
			continue
		}
		if filter.Warehouse != nil && lot.Warehouse != *filter.Warehouse {
			continue
		}
		if filter.Location != nil && lot.Location != *filter.Location {
			continue
		}
		if filter.Quality != nil && lot.Quality != *filter.Quality {
			continue
		}
		if filter.InStockOnly && lot.Quantity <= 0 {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

type uow struct {
	st       *state
	failures map[string]error
}

func (u *uow) fail(method string) error {
	return u.failures[method]
}

func (u *uow) GetCommodity(ctx context.Context, id uuid.UUID) (*storage.Commodity, error) {
	c, ok := u.st.commodities[id]
	if !ok {
		return nil, storage.ErrCommodityNotFound
	}
	return &c, nil
}

func (u *uow) GetCommodityForUpdate(ctx context.Context, id uuid.UUID) (*storage.Commodity, error) {
	return u.GetCommodity(ctx, id)
}

func (u *uow) UpdateCommodityPrice(ctx context.Context, c *storage.Commodity) error {
	if err := u.fail("UpdateCommodityPrice"); err != nil {
		return err
	}
	if _, ok := u.st.commodities[c.ID]; !ok {
		return storage.ErrCommodityNotFound
	}
	u.st.commodities[c.ID] = *c
	return nil
}

func (u *uow) RevalueLots(ctx context.Context, commodityID uuid.UUID, marketValue decimal.Decimal) (int64, error) {
	if err := u.fail("RevalueLots"); err != nil {
		return 0, err
	}
	var n int64
	for id, lot := range u.st.lots {
		if lot.CommodityID != commodityID {
			continue
		}
		lot.MarketValue = marketValue
		u.st.lots[id] = lot
		n++
	}
	return n, nil
}

func (u *uow) GetCounterpartyForUpdate(ctx context.Context, id uuid.UUID) (*storage.Counterparty, error) {
	cp, ok := u.st.counterparties[id]
	if !ok {
		return nil, storage.ErrCounterpartyNotFound
	}
	return &cp, nil
}

func (u *uow) RefreshCounterpartyExposure(ctx context.Context, id uuid.UUID) (*storage.Counterparty, error) {
	if err := u.fail("RefreshCounterpartyExposure"); err != nil {
		return nil, err
	}
	cp, ok := u.st.counterparties[id]
	if !ok {
		return nil, storage.ErrCounterpartyNotFound
	}
	cp.TotalTrades = 0
	cp.TotalVolume = decimal.Zero
	cp.LastTradeDate = nil
	for _, t := range u.st.trades {
		if t.CounterpartyID != id {
			continue
		}
		switch t.Status {
		case storage.TradeStatusOpen, storage.TradeStatusExecuted, storage.TradeStatusSettled:
		default:
			continue
		}
		cp.TotalTrades++
		cp.TotalVolume = cp.TotalVolume.Add(t.TotalValue)
		if cp.LastTradeDate == nil || t.TradeDate.After(*cp.LastTradeDate) {
			d := t.TradeDate
			cp.LastTradeDate = &d
		}
	}
	cp.CreditUsed = cp.TotalVolume
	u.st.counterparties[id] = cp
	return &cp, nil
}

func (u *uow) GetLotForUpdate(ctx context.Context, id uuid.UUID) (*storage.InventoryLot, error) {
	lot, ok := u.st.lots[id]
	if !ok {
		return nil, storage.ErrLotNotFound
	}
	return &lot, nil
}

func (u *uow) FindLotForUpdate(ctx context.Context, key storage.LotKey) (*storage.InventoryLot, error) {
	for _, lot := range u.st.lots {
		if lot.Key() == key {
			return &lot, nil
		}
	}
	return nil, storage.ErrLotNotFound
}

func (u *uow) ListLotsForUpdate(ctx context.Context, filter storage.LotFilter) ([]storage.InventoryLot, error) {
	if err := u.fail("ListLotsForUpdate"); err != nil {
		return nil, err
	}
	return sortedLots(u.st.lots, filter), nil
}

func (u *uow) InsertLot(ctx context.Context, lot *storage.InventoryLot) error {
	if err := u.fail("InsertLot"); err != nil {
		return err
	}
	for _, existing := range u.st.lots {
		if existing.Key() == lot.Key() {
			return storage.ErrDuplicateLot
		}
	}
	u.st.lots[lot.ID] = *lot
	return nil
}

func (u *uow) UpdateLot(ctx context.Context, lot *storage.InventoryLot) error {
	if err := u.fail("UpdateLot"); err != nil {
		return err
	}
	if _, ok := u.st.lots[lot.ID]; !ok {
		return storage.ErrLotNotFound
	}
	u.st.lots[lot.ID] = *lot
	return nil
}

func (u *uow) InsertMovement(ctx context.Context, m *storage.InventoryMovement) error {
	if err := u.fail("InsertMovement"); err != nil {
		return err
	}
	u.st.movements = append(u.st.movements, *m)
	return nil
}

func (u *uow) InsertTrade(ctx context.Context, t *storage.Trade) error {
	if err := u.fail("InsertTrade"); err != nil {
		return err
	}
	u.st.trades[t.ID] = *t
	return nil
}

func (u *uow) GetTradeForUpdate(ctx context.Context, id uuid.UUID) (*storage.Trade, error) {
	t, ok := u.st.trades[id]
	if !ok {
		return nil, storage.ErrTradeNotFound
	}
	return &t, nil
}

func (u *uow) UpdateTrade(ctx context.Context, t *storage.Trade) error {
	if err := u.fail("UpdateTrade"); err != nil {
		return err
	}
	if _, ok := u.st.trades[t.ID]; !ok {
		return storage.ErrTradeNotFound
	}
	u.st.trades[t.ID] = *t
	return nil
}

func (u *uow) InsertContract(ctx context.Context, c *storage.Contract) error {
	if err := u.fail("InsertContract"); err != nil {
		return err
	}
	u.st.contracts[c.ID] = *c
	return nil
}

func (u *uow) GetContractForUpdate(ctx context.Context, id uuid.UUID) (*storage.Contract, error) {
	c, ok := u.st.contracts[id]
	if !ok {
		return nil, storage.ErrContractNotFound
	}
	return &c, nil
}

func (u *uow) UpdateContract(ctx context.Context, c *storage.Contract) error {
	if err := u.fail("UpdateContract"); err != nil {
		return err
	}
	if _, ok := u.st.contracts[c.ID]; !ok {
		return storage.ErrContractNotFound
	}
	u.st.contracts[c.ID] = *c
	return nil
}

func (u *uow) InsertContractExecution(ctx context.Context, e *storage.ContractExecution) error {
	if err := u.fail("InsertContractExecution"); err != nil {
		return err
	}
	u.st.executions = append(u.st.executions, *e)
	return nil
}

func (u *uow) GetShipmentForUpdate(ctx context.Context, id uuid.UUID) (*storage.Shipment, error) {
	sh, ok := u.st.shipments[id]
	if !ok {
		return nil, storage.ErrShipmentNotFound
	}
	return &sh, nil
}

func (u *uow) SaveShipment(ctx context.Context, sh *storage.Shipment) error {
	if err := u.fail("SaveShipment"); err != nil {
		return err
	}
	u.st.shipments[sh.ID] = *sh
	return nil
}
