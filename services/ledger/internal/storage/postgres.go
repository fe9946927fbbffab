package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCommodityNotFound    = errors.New("commodity not found")
	ErrCounterpartyNotFound = errors.New("counterparty not found")
	ErrLotNotFound          = errors.New("lot not found")
	ErrTradeNotFound        = errors.New("trade not found")
	ErrContractNotFound     = errors.New("contract not found")
	ErrShipmentNotFound     = errors.New("shipment not found")
	ErrDuplicateLot         = errors.New("lot already exists for commodity, warehouse, location and quality")
)

//go:embed schema.sql
var schemaSQL string

// TxMetrics is notified every time a unit of work is retried.
type TxMetrics interface {
	IncTxRetry(reason string)
}

type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: 25 * time.Millisecond}
}

type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics TxMetrics
	retry   RetryPolicy
}

func New(pool *pgxpool.Pool, logger *slog.Logger, metrics TxMetrics, retry RetryPolicy) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Store{
		pool:    pool,
		logger:  logger,
		metrics: metrics,
		retry:   retry,
	}
}

// EnsureSchema creates the ledger tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithinTx runs fn inside one serializable transaction. The transaction
// commits when fn returns nil and rolls back otherwise. Serialization
// failures and deadlocks re-run fn from scratch, so fn must not keep state
// between attempts.
func (s *Store) WithinTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		retriable, reason := isTxRetriable(err)
		if !retriable || attempt >= s.retry.MaxAttempts {
			return err
		}
		if s.metrics != nil {
			s.metrics.IncTxRetry(reason)
		}
		s.logger.Warn("retrying unit of work", "attempt", attempt, "reason", reason, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDuration(s.retry.BaseBackoff, attempt)):
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&pgUnitOfWork{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) GetCommodity(ctx context.Context, id uuid.UUID) (*Commodity, error) {
	return getCommodity(ctx, s.pool, id, false)
}

func (s *Store) GetCounterparty(ctx context.Context, id uuid.UUID) (*Counterparty, error) {
	return getCounterparty(ctx, s.pool, id, false)
}

func (s *Store) GetLot(ctx context.Context, id uuid.UUID) (*InventoryLot, error) {
	return getLot(ctx, s.pool, id, false)
}

func (s *Store) ListLots(ctx context.Context, filter LotFilter) ([]InventoryLot, error) {
	query, args := filter.build()
	args = append(args, clampLimit(filter.Limit))
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	return listLots(ctx, s.pool, query, args)
}

func (s *Store) ListMovements(ctx context.Context, filter MovementFilter) ([]InventoryMovement, error) {
	where, args := filter.build()
	rows, err := s.pool.Query(ctx, `SELECT `+movementColumns+` FROM inventory_movements`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []InventoryMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	return movements, rows.Err()
}

func (s *Store) GetTrade(ctx context.Context, id uuid.UUID) (*Trade, error) {
	return getTrade(ctx, s.pool, id, false)
}

func (s *Store) GetContract(ctx context.Context, id uuid.UUID) (*Contract, error) {
	return getContract(ctx, s.pool, id, false)
}

func (s *Store) ListContractExecutions(ctx context.Context, contractID uuid.UUID) ([]ContractExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, contract_id, quantity, price::text, execution_date, trade_id::text, created_at
		FROM contract_executions
		WHERE contract_id = $1
		ORDER BY execution_date ASC, created_at ASC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []ContractExecution
	for rows.Next() {
		var e ContractExecution
		var price string
		var tradeID *string
		if err := rows.Scan(&e.ID, &e.ContractID, &e.Quantity, &price, &e.ExecutionDate, &tradeID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Price, err = parseDecimal(price, "price"); err != nil {
			return nil, err
		}
		if e.TradeID, err = parseNullableUUID(tradeID); err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

func isTxRetriable(err error) (bool, string) {
	// A concurrent receipt created the same lot; the retry will find it.
	if errors.Is(err, ErrDuplicateLot) {
		return true, "lot_conflict"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001":
			return true, "serialization_failure"
		case "40P01":
			return true, "deadlock"
		}
	}
	return false, ""
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func backoffDuration(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	if attempt <= 1 {
		return base
	}
	return base * time.Duration(attempt)
}
