package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// UnitOfWork is the transactional view of the ledger handed to a
// WithinTx callback. Every ...ForUpdate read takes a row lock that is held
// until the unit of work ends.
type UnitOfWork interface {
	GetCommodity(ctx context.Context, id uuid.UUID) (*Commodity, error)
	GetCommodityForUpdate(ctx context.Context, id uuid.UUID) (*Commodity, error)
	UpdateCommodityPrice(ctx context.Context, commodity *Commodity) error
	RevalueLots(ctx context.Context, commodityID uuid.UUID, marketValue decimal.Decimal) (int64, error)

	GetCounterpartyForUpdate(ctx context.Context, id uuid.UUID) (*Counterparty, error)
	RefreshCounterpartyExposure(ctx context.Context, id uuid.UUID) (*Counterparty, error)

	GetLotForUpdate(ctx context.Context, id uuid.UUID) (*InventoryLot, error)
	FindLotForUpdate(ctx context.Context, key LotKey) (*InventoryLot, error)
	ListLotsForUpdate(ctx context.Context, filter LotFilter) ([]InventoryLot, error)
	InsertLot(ctx context.Context, lot *InventoryLot) error
	UpdateLot(ctx context.Context, lot *InventoryLot) error
	InsertMovement(ctx context.Context, movement *InventoryMovement) error

	InsertTrade(ctx context.Context, trade *Trade) error
	GetTradeForUpdate(ctx context.Context, id uuid.UUID) (*Trade, error)
	UpdateTrade(ctx context.Context, trade *Trade) error

	InsertContract(ctx context.Context, contract *Contract) error
	GetContractForUpdate(ctx context.Context, id uuid.UUID) (*Contract, error)
	UpdateContract(ctx context.Context, contract *Contract) error
	InsertContractExecution(ctx context.Context, execution *ContractExecution) error

	GetShipmentForUpdate(ctx context.Context, id uuid.UUID) (*Shipment, error)
	SaveShipment(ctx context.Context, shipment *Shipment) error
}

// querier is the subset shared by pgx.Tx and *pgxpool.Pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	commodityColumns    = `id, name, category, unit, current_price::text, price_change::text, price_change_percent::text, updated_at`
	counterpartyColumns = `id, name, rating, credit_limit::text, credit_used::text, total_trades, total_volume::text, last_trade_date, updated_at`
	lotColumns          = `id, commodity_id, quantity, unit, warehouse, location, quality, cost_basis::text, market_value::text, created_at, updated_at`
	movementColumns     = `id, lot_id, kind, quantity_delta, resulting_quantity, unit_cost::text, unit_market_value::text, reason, reference_type, reference_id::text, created_at`
	tradeColumns        = `id, commodity_id, counterparty_id, type, quantity, price::text, total_value::text, status, trade_date, settlement_date, location, executed_at, created_at, updated_at`
	contractColumns     = `id, commodity_id, counterparty_id, type, quantity, price::text, total_value::text, executed_quantity, remaining_quantity, status, start_date, end_date, terms, cancellation_reason, created_at, updated_at`
	shipmentColumns     = `id, trade_id::text, commodity_id, quantity, direction, status, delivered_at, updated_at`
)

type pgUnitOfWork struct {
	q querier
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (u *pgUnitOfWork) GetCommodity(ctx context.Context, id uuid.UUID) (*Commodity, error) {
	return getCommodity(ctx, u.q, id, false)
}

func (u *pgUnitOfWork) GetCommodityForUpdate(ctx context.Context, id uuid.UUID) (*Commodity, error) {
	return getCommodity(ctx, u.q, id, true)
}

func (u *pgUnitOfWork) UpdateCommodityPrice(ctx context.Context, c *Commodity) error {
	tag, err := u.q.Exec(ctx, `
		UPDATE commodities
		SET current_price = $2, price_change = $3, price_change_percent = $4, updated_at = $5
		WHERE id = $1
	`, c.ID, c.CurrentPrice.String(), c.PriceChange.String(), c.PriceChangePercent.String(), c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCommodityNotFound
	}
	return nil
}

func (u *pgUnitOfWork) RevalueLots(ctx context.Context, commodityID uuid.UUID, marketValue decimal.Decimal) (int64, error) {
	tag, err := u.q.Exec(ctx, `
		UPDATE inventory_lots SET market_value = $2, updated_at = now()
		WHERE commodity_id = $1
	`, commodityID, marketValue.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (u *pgUnitOfWork) GetCounterpartyForUpdate(ctx context.Context, id uuid.UUID) (*Counterparty, error) {
	return getCounterparty(ctx, u.q, id, true)
}

// RefreshCounterpartyExposure recomputes the counterparty aggregates from
// its live trades. The caller must already hold the counterparty row lock.
func (u *pgUnitOfWork) RefreshCounterpartyExposure(ctx context.Context, id uuid.UUID) (*Counterparty, error) {
	row := u.q.QueryRow(ctx, `
		WITH exposure AS (
			SELECT COUNT(*) AS total_trades,
			       COALESCE(SUM(total_value), 0) AS total_value,
			       MAX(trade_date) AS last_trade_date
			FROM trades
			WHERE counterparty_id = $1 AND status IN ('OPEN', 'EXECUTED', 'SETTLED')
		)
		UPDATE counterparties c
		SET credit_used = e.total_value,
		    total_trades = e.total_trades,
		    total_volume = e.total_value,
		    last_trade_date = e.last_trade_date,
		    updated_at = now()
		FROM exposure e
		WHERE c.id = $1
		RETURNING c.id, c.name, c.rating, c.credit_limit::text, c.credit_used::text, c.total_trades,
		          c.total_volume::text, c.last_trade_date, c.updated_at
	`, id)
	cp, err := scanCounterparty(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCounterpartyNotFound
	}
	return cp, err
}

func (u *pgUnitOfWork) GetLotForUpdate(ctx context.Context, id uuid.UUID) (*InventoryLot, error) {
	return getLot(ctx, u.q, id, true)
}

func (u *pgUnitOfWork) FindLotForUpdate(ctx context.Context, key LotKey) (*InventoryLot, error) {
	row := u.q.QueryRow(ctx, `
		SELECT `+lotColumns+`
		FROM inventory_lots
		WHERE commodity_id = $1 AND warehouse = $2 AND location = $3 AND quality = $4
		FOR UPDATE
	`, key.CommodityID, key.Warehouse, key.Location, key.Quality)
	lot, err := scanLot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLotNotFound
	}
	return lot, err
}

func (u *pgUnitOfWork) ListLotsForUpdate(ctx context.Context, filter LotFilter) ([]InventoryLot, error) {
	query, args := filter.build()
	return listLots(ctx, u.q, query+" FOR UPDATE", args)
}

func (u *pgUnitOfWork) InsertLot(ctx context.Context, lot *InventoryLot) error {
	_, err := u.q.Exec(ctx, `
		INSERT INTO inventory_lots (id, commodity_id, quantity, unit, warehouse, location, quality,
			cost_basis, market_value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, lot.ID, lot.CommodityID, lot.Quantity, lot.Unit, lot.Warehouse, lot.Location, lot.Quality,
		lot.CostBasis.String(), lot.MarketValue.String(), lot.CreatedAt, lot.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateLot
		}
		return err
	}
	return nil
}

func (u *pgUnitOfWork) UpdateLot(ctx context.Context, lot *InventoryLot) error {
	tag, err := u.q.Exec(ctx, `
		UPDATE inventory_lots
		SET quantity = $2, cost_basis = $3, market_value = $4, updated_at = $5
		WHERE id = $1
	`, lot.ID, lot.Quantity, lot.CostBasis.String(), lot.MarketValue.String(), lot.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (u *pgUnitOfWork) InsertMovement(ctx context.Context, m *InventoryMovement) error {
	_, err := u.q.Exec(ctx, `
		INSERT INTO inventory_movements (id, lot_id, kind, quantity_delta, resulting_quantity,
			unit_cost, unit_market_value, reason, reference_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, m.ID, m.LotID, string(m.Kind), m.QuantityDelta, m.ResultingQuantity,
		nullableDecimal(m.UnitCost), nullableDecimal(m.UnitMarketValue), m.Reason,
		string(m.ReferenceType), nullableUUID(m.ReferenceID), m.CreatedAt)
	return err
}

func (u *pgUnitOfWork) InsertTrade(ctx context.Context, t *Trade) error {
	_, err := u.q.Exec(ctx, `
		INSERT INTO trades (id, commodity_id, counterparty_id, type, quantity, price, total_value,
			status, trade_date, settlement_date, location, executed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.CommodityID, t.CounterpartyID, string(t.Type), t.Quantity, t.Price.String(),
		t.TotalValue.String(), string(t.Status), t.TradeDate, t.SettlementDate, t.Location,
		t.ExecutedAt, t.CreatedAt, t.UpdatedAt)
	return err
}

func (u *pgUnitOfWork) GetTradeForUpdate(ctx context.Context, id uuid.UUID) (*Trade, error) {
	return getTrade(ctx, u.q, id, true)
}

func (u *pgUnitOfWork) UpdateTrade(ctx context.Context, t *Trade) error {
	tag, err := u.q.Exec(ctx, `
		UPDATE trades SET status = $2, executed_at = $3, updated_at = $4
		WHERE id = $1
	`, t.ID, string(t.Status), t.ExecutedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTradeNotFound
	}
	return nil
}

func (u *pgUnitOfWork) InsertContract(ctx context.Context, c *Contract) error {
	_, err := u.q.Exec(ctx, `
		INSERT INTO contracts (id, commodity_id, counterparty_id, type, quantity, price, total_value,
			executed_quantity, remaining_quantity, status, start_date, end_date, terms,
			cancellation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, c.ID, c.CommodityID, c.CounterpartyID, string(c.Type), c.Quantity, c.Price.String(),
		c.TotalValue.String(), c.ExecutedQuantity, c.RemainingQuantity, string(c.Status),
		c.StartDate, c.EndDate, c.Terms, c.CancellationReason, c.CreatedAt, c.UpdatedAt)
	return err
}

func (u *pgUnitOfWork) GetContractForUpdate(ctx context.Context, id uuid.UUID) (*Contract, error) {
	return getContract(ctx, u.q, id, true)
}

func (u *pgUnitOfWork) UpdateContract(ctx context.Context, c *Contract) error {
	tag, err := u.q.Exec(ctx, `
		UPDATE contracts
		SET quantity = $2, price = $3, total_value = $4, executed_quantity = $5, remaining_quantity = $6,
		    status = $7, start_date = $8, end_date = $9, terms = $10, cancellation_reason = $11,
		    updated_at = $12
		WHERE id = $1
	`, c.ID, c.Quantity, c.Price.String(), c.TotalValue.String(), c.ExecutedQuantity,
		c.RemainingQuantity, string(c.Status), c.StartDate, c.EndDate, c.Terms,
		c.CancellationReason, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContractNotFound
	}
	return nil
}

func (u *pgUnitOfWork) InsertContractExecution(ctx context.Context, e *ContractExecution) error {
	_, err := u.q.Exec(ctx, `
		INSERT INTO contract_executions (id, contract_id, quantity, price, execution_date, trade_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ContractID, e.Quantity, e.Price.String(), e.ExecutionDate, nullableUUID(e.TradeID), e.CreatedAt)
	return err
}

func (u *pgUnitOfWork) GetShipmentForUpdate(ctx context.Context, id uuid.UUID) (*Shipment, error) {
	row := u.q.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, id)
	s, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrShipmentNotFound
	}
	return s, err
}

func (u *pgUnitOfWork) SaveShipment(ctx context.Context, s *Shipment) error {
	_, err := u.q.Exec(ctx, `
		INSERT INTO shipments (id, trade_id, commodity_id, quantity, direction, status, delivered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, delivered_at = EXCLUDED.delivered_at, updated_at = EXCLUDED.updated_at
	`, s.ID, nullableUUID(s.TradeID), s.CommodityID, s.Quantity, string(s.Direction), string(s.Status),
		s.DeliveredAt, s.UpdatedAt)
	return err
}

func getCommodity(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*Commodity, error) {
	row := q.QueryRow(ctx, `SELECT `+commodityColumns+` FROM commodities WHERE id = $1`+lockClause(forUpdate), id)
	var c Commodity
	var price, change, pct string
	if err := row.Scan(&c.ID, &c.Name, &c.Category, &c.Unit, &price, &change, &pct, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCommodityNotFound
		}
		return nil, err
	}
	var err error
	if c.CurrentPrice, err = parseDecimal(price, "current_price"); err != nil {
		return nil, err
	}
	if c.PriceChange, err = parseDecimal(change, "price_change"); err != nil {
		return nil, err
	}
	if c.PriceChangePercent, err = parseDecimal(pct, "price_change_percent"); err != nil {
		return nil, err
	}
	return &c, nil
}

func getCounterparty(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*Counterparty, error) {
	row := q.QueryRow(ctx, `SELECT `+counterpartyColumns+` FROM counterparties WHERE id = $1`+lockClause(forUpdate), id)
	cp, err := scanCounterparty(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCounterpartyNotFound
	}
	return cp, err
}

func scanCounterparty(row rowScanner) (*Counterparty, error) {
	var cp Counterparty
	var limit, used, volume string
	if err := row.Scan(&cp.ID, &cp.Name, &cp.Rating, &limit, &used, &cp.TotalTrades, &volume, &cp.LastTradeDate, &cp.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if cp.CreditLimit, err = parseDecimal(limit, "credit_limit"); err != nil {
		return nil, err
	}
	if cp.CreditUsed, err = parseDecimal(used, "credit_used"); err != nil {
		return nil, err
	}
	if cp.TotalVolume, err = parseDecimal(volume, "total_volume"); err != nil {
		return nil, err
	}
	return &cp, nil
}

func getLot(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*InventoryLot, error) {
	row := q.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots WHERE id = $1`+lockClause(forUpdate), id)
	lot, err := scanLot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLotNotFound
	}
	return lot, err
}

func listLots(ctx context.Context, q querier, tail string, args []any) ([]InventoryLot, error) {
	rows, err := q.Query(ctx, `SELECT `+lotColumns+` FROM inventory_lots`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []InventoryLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

func scanLot(row rowScanner) (*InventoryLot, error) {
	var lot InventoryLot
	var basis, market string
	if err := row.Scan(&lot.ID, &lot.CommodityID, &lot.Quantity, &lot.Unit, &lot.Warehouse, &lot.Location,
		&lot.Quality, &basis, &market, &lot.CreatedAt, &lot.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if lot.CostBasis, err = parseDecimal(basis, "cost_basis"); err != nil {
		return nil, err
	}
	if lot.MarketValue, err = parseDecimal(market, "market_value"); err != nil {
		return nil, err
	}
	return &lot, nil
}

func scanMovement(row rowScanner) (*InventoryMovement, error) {
	var m InventoryMovement
	var kind, refType string
	var unitCost, unitMarket, refID *string
	if err := row.Scan(&m.ID, &m.LotID, &kind, &m.QuantityDelta, &m.ResultingQuantity, &unitCost,
		&unitMarket, &m.Reason, &refType, &refID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Kind = MovementKind(kind)
	m.ReferenceType = ReferenceType(refType)
	var err error
	if m.UnitCost, err = parseNullableDecimal(unitCost, "unit_cost"); err != nil {
		return nil, err
	}
	if m.UnitMarketValue, err = parseNullableDecimal(unitMarket, "unit_market_value"); err != nil {
		return nil, err
	}
	if m.ReferenceID, err = parseNullableUUID(refID); err != nil {
		return nil, err
	}
	return &m, nil
}

func getTrade(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*Trade, error) {
	row := q.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`+lockClause(forUpdate), id)
	var t Trade
	var tradeType, status, price, total string
	if err := row.Scan(&t.ID, &t.CommodityID, &t.CounterpartyID, &tradeType, &t.Quantity, &price, &total,
		&status, &t.TradeDate, &t.SettlementDate, &t.Location, &t.ExecutedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	t.Type = TradeType(tradeType)
	t.Status = TradeStatus(status)
	var err error
	if t.Price, err = parseDecimal(price, "price"); err != nil {
		return nil, err
	}
	if t.TotalValue, err = parseDecimal(total, "total_value"); err != nil {
		return nil, err
	}
	return &t, nil
}

func getContract(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*Contract, error) {
	row := q.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`+lockClause(forUpdate), id)
	var c Contract
	var contractType, status, price, total string
	if err := row.Scan(&c.ID, &c.CommodityID, &c.CounterpartyID, &contractType, &c.Quantity, &price, &total,
		&c.ExecutedQuantity, &c.RemainingQuantity, &status, &c.StartDate, &c.EndDate, &c.Terms,
		&c.CancellationReason, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}
	c.Type = ContractType(contractType)
	c.Status = ContractStatus(status)
	var err error
	if c.Price, err = parseDecimal(price, "price"); err != nil {
		return nil, err
	}
	if c.TotalValue, err = parseDecimal(total, "total_value"); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanShipment(row rowScanner) (*Shipment, error) {
	var s Shipment
	var tradeID *string
	var direction, status string
	if err := row.Scan(&s.ID, &tradeID, &s.CommodityID, &s.Quantity, &direction, &status, &s.DeliveredAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Direction = ShipmentDirection(direction)
	s.Status = ShipmentStatus(status)
	var err error
	if s.TradeID, err = parseNullableUUID(tradeID); err != nil {
		return nil, err
	}
	return &s, nil
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func parseNullableDecimal(raw *string, field string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := parseDecimal(*raw, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseNullableUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, fmt.Errorf("parse uuid: %w", err)
	}
	return &id, nil
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}
