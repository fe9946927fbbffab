package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/libs/trace"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/inventory"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type Store interface {
	WithinTx(ctx context.Context, fn func(uow storage.UnitOfWork) error) error
	GetCommodity(ctx context.Context, id uuid.UUID) (*storage.Commodity, error)
	GetCounterparty(ctx context.Context, id uuid.UUID) (*storage.Counterparty, error)
	GetLot(ctx context.Context, id uuid.UUID) (*storage.InventoryLot, error)
	ListLots(ctx context.Context, filter storage.LotFilter) ([]storage.InventoryLot, error)
	ListMovements(ctx context.Context, filter storage.MovementFilter) ([]storage.InventoryMovement, error)
	GetTrade(ctx context.Context, id uuid.UUID) (*storage.Trade, error)
	GetContract(ctx context.Context, id uuid.UUID) (*storage.Contract, error)
	ListContractExecutions(ctx context.Context, contractID uuid.UUID) ([]storage.ContractExecution, error)
}

// Routing is the lot placement used for receipts that do not name one.
type Routing struct {
	Warehouse string
	Location  string
	Quality   string
}

func (r Routing) key(commodityID uuid.UUID, warehouse, location, quality string) storage.LotKey {
	key := storage.LotKey{
		CommodityID: commodityID,
		Warehouse:   warehouse,
		Location:    location,
		Quality:     quality,
	}
	if key.Warehouse == "" {
		key.Warehouse = r.Warehouse
	}
	if key.Location == "" {
		key.Location = r.Location
	}
	if key.Quality == "" {
		key.Quality = r.Quality
	}
	return key
}

type LedgerService struct {
	store   Store
	engine  *inventory.Engine
	events  *EventPublisher
	routing Routing
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

func NewLedgerService(store Store, events *EventPublisher, routing Routing, logger *slog.Logger, metrics *Metrics) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		store:   store,
		engine:  inventory.NewEngine(logger),
		events:  events,
		routing: routing,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// run executes fn as one unit of work and records the command outcome.
func (s *LedgerService) run(ctx context.Context, command string, fn func(uow storage.UnitOfWork) error, attrs ...attribute.KeyValue) error {
	start := time.Now()
	ctx, end := trace.StartSpan(ctx, "ledger."+command, attrs...)
	err := s.store.WithinTx(ctx, fn)
	end(err)

	kind := Classify(err)
	s.metrics.ObserveCommand(command, kind, time.Since(start))
	switch {
	case err == nil:
	case kind == KindInternal:
		s.logger.Error("ledger command failed", "command", command, "error", err)
	default:
		s.logger.Info("ledger command rejected", "command", command, "kind", kind, "error", err)
	}
	return err
}

func (s *LedgerService) GetTrade(ctx context.Context, id uuid.UUID) (*storage.Trade, error) {
	return s.store.GetTrade(ctx, id)
}

func (s *LedgerService) GetContract(ctx context.Context, id uuid.UUID) (*storage.Contract, error) {
	return s.store.GetContract(ctx, id)
}

func (s *LedgerService) ListContractExecutions(ctx context.Context, contractID uuid.UUID) ([]storage.ContractExecution, error) {
	if _, err := s.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.store.ListContractExecutions(ctx, contractID)
}

func (s *LedgerService) GetLot(ctx context.Context, id uuid.UUID) (*storage.InventoryLot, error) {
	return s.store.GetLot(ctx, id)
}

func (s *LedgerService) ListLots(ctx context.Context, filter storage.LotFilter) ([]storage.InventoryLot, error) {
	return s.store.ListLots(ctx, filter)
}

func (s *LedgerService) ListMovements(ctx context.Context, filter storage.MovementFilter) ([]storage.InventoryMovement, error) {
	if filter.LotID != nil {
		if _, err := s.store.GetLot(ctx, *filter.LotID); err != nil {
			return nil, err
		}
	}
	return s.store.ListMovements(ctx, filter)
}

func movementsOf(draws []inventory.Draw) []storage.InventoryMovement {
	out := make([]storage.InventoryMovement, 0, len(draws))
	for _, d := range draws {
		out = append(out, d.Movement)
	}
	return out
}
