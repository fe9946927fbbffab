package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aJV99/CommodiTrade-sub000/libs/httpmiddleware"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/inventory"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/service"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerService interface {
	CreateTrade(ctx context.Context, in service.CreateTradeInput) (*storage.Trade, error)
	ExecuteTrade(ctx context.Context, in service.ExecuteTradeInput) (*service.TradeExecution, error)
	CancelTrade(ctx context.Context, id uuid.UUID) (*storage.Trade, error)
	SettleTrade(ctx context.Context, id uuid.UUID) (*storage.Trade, error)
	GetTrade(ctx context.Context, id uuid.UUID) (*storage.Trade, error)

	CreateContract(ctx context.Context, in service.CreateContractInput) (*storage.Contract, error)
	UpdateContractTerms(ctx context.Context, in service.UpdateContractInput) (*storage.Contract, error)
	ExecuteContractTranche(ctx context.Context, in service.ExecuteTrancheInput) (*service.TrancheExecution, error)
	CancelContract(ctx context.Context, id uuid.UUID, reason string) (*storage.Contract, error)
	GetContract(ctx context.Context, id uuid.UUID) (*storage.Contract, error)
	ListContractExecutions(ctx context.Context, contractID uuid.UUID) ([]storage.ContractExecution, error)

	PostInventoryMovement(ctx context.Context, req inventory.MovementRequest) (*service.MovementResult, error)
	GetLot(ctx context.Context, id uuid.UUID) (*storage.InventoryLot, error)
	ListLots(ctx context.Context, filter storage.LotFilter) ([]storage.InventoryLot, error)
	ListMovements(ctx context.Context, filter storage.MovementFilter) ([]storage.InventoryMovement, error)
	UpdateCommodityPrice(ctx context.Context, commodityID uuid.UUID, price decimal.Decimal) (*service.PriceUpdate, error)
}

type Handler struct {
	Service LedgerService
	Logger  *slog.Logger
}

type errorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func New(svc LedgerService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: svc, Logger: logger}
}

// Register mounts the ledger routes. Commands run behind the given
// middleware (rate limiting); reads do not.
func (h *Handler) Register(r gin.IRouter, commandMiddleware ...gin.HandlerFunc) {
	commands := r.Group("/", commandMiddleware...)
	commands.POST("/trades", h.CreateTrade)
	commands.POST("/trades/:id/execute", h.ExecuteTrade)
	commands.POST("/trades/:id/cancel", h.CancelTrade)
	commands.POST("/trades/:id/settle", h.SettleTrade)
	commands.POST("/contracts", h.CreateContract)
	commands.PATCH("/contracts/:id", h.UpdateContract)
	commands.POST("/contracts/:id/executions", h.ExecuteTranche)
	commands.POST("/contracts/:id/cancel", h.CancelContract)
	commands.POST("/inventory/movements", h.PostMovement)
	commands.PUT("/commodities/:id/price", h.UpdatePrice)

	r.GET("/trades/:id", h.GetTrade)
	r.GET("/contracts/:id", h.GetContract)
	r.GET("/contracts/:id/executions", h.ListExecutions)
	r.GET("/inventory/lots", h.ListLots)
	r.GET("/inventory/lots/:id", h.GetLot)
	r.GET("/inventory/lots/:id/movements", h.ListMovements)
}

// requestContext carries the request id into the service so emitted events
// can be correlated with the HTTP call.
func requestContext(c *gin.Context) context.Context {
	return service.WithCorrelationID(c.Request.Context(), httpmiddleware.RequestIDFromContext(c))
}

func parseUUIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

// bindOptionalJSON binds the body when one is sent. An empty body, with or
// without a Content-Length, leaves dst unchanged.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

func writeError(c *gin.Context, status int, code, message string, fields []validation.FieldError) {
	c.JSON(status, errorResponse{Code: code, Message: message, Fields: fields})
}

// writeServiceError translates a LedgerService failure into a response.
func (h *Handler) writeServiceError(c *gin.Context, op string, err error) {
	switch service.Classify(err) {
	case service.KindValidation:
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", verrs)
			return
		}
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case service.KindNotFound:
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case service.KindState:
		writeError(c, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case service.KindCapacity:
		code := "INSUFFICIENT_INVENTORY"
		switch {
		case errors.Is(err, service.ErrCreditLimitExceeded):
			code = "CREDIT_LIMIT_EXCEEDED"
		case errors.Is(err, service.ErrExceedsRemainingBalance):
			code = "EXCEEDS_REMAINING_BALANCE"
		}
		writeError(c, http.StatusUnprocessableEntity, code, err.Error(), nil)
	case service.KindIntegrity:
		writeError(c, http.StatusConflict, "CONFLICT", err.Error(), nil)
	default:
		h.Logger.Error(op+" failed", "error", err, "request_id", httpmiddleware.RequestIDFromContext(c))
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}
