package handlers

import (
	"net/http"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/service"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/validation"
	"github.com/gin-gonic/gin"
)

type createTradeRequest struct {
	CommodityID    string `json:"commodity_id"`
	CounterpartyID string `json:"counterparty_id"`
	Type           string `json:"type"`
	Quantity       int64  `json:"quantity"`
	Price          string `json:"price"`
	TradeDate      string `json:"trade_date"`
	SettlementDate string `json:"settlement_date"`
	Location       string `json:"location"`
}

type routingRequest struct {
	Warehouse string `json:"warehouse"`
	Location  string `json:"location"`
	Quality   string `json:"quality"`
}

type tradeResponse struct {
	TradeID        string  `json:"trade_id"`
	CommodityID    string  `json:"commodity_id"`
	CounterpartyID string  `json:"counterparty_id"`
	Type           string  `json:"type"`
	Quantity       int64   `json:"quantity"`
	Price          string  `json:"price"`
	TotalValue     string  `json:"total_value"`
	Status         string  `json:"status"`
	TradeDate      string  `json:"trade_date"`
	SettlementDate string  `json:"settlement_date"`
	Location       string  `json:"location,omitempty"`
	ExecutedAt     *string `json:"executed_at,omitempty"`
	UpdatedAt      string  `json:"updated_at"`
}

type tradeExecutionResponse struct {
	Trade     tradeResponse      `json:"trade"`
	Movements []movementResponse `json:"movements"`
}

func (h *Handler) CreateTrade(c *gin.Context) {
	var req createTradeRequest
	if !bindJSON(c, &req) {
		return
	}

	var errs validation.ValidationErrors
	in := service.CreateTradeInput{
		CommodityID:    errs.UUID("commodity_id", req.CommodityID),
		CounterpartyID: errs.UUID("counterparty_id", req.CounterpartyID),
		Type:           storage.TradeType(req.Type),
		Quantity:       errs.PositiveInt("quantity", req.Quantity),
		Price:          errs.PositiveDecimal("price", req.Price),
		SettlementDate: errs.Time("settlement_date", req.SettlementDate),
		Location:       req.Location,
	}
	if ts := errs.OptionalTime("trade_date", req.TradeDate); ts != nil {
		in.TradeDate = *ts
	}
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	trade, err := h.Service.CreateTrade(requestContext(c), in)
	if err != nil {
		h.writeServiceError(c, "create trade", err)
		return
	}
	c.JSON(http.StatusCreated, tradeToResponse(trade))
}

func (h *Handler) ExecuteTrade(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	var req routingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.Service.ExecuteTrade(requestContext(c), service.ExecuteTradeInput{
		TradeID:   id,
		Warehouse: req.Warehouse,
		Location:  req.Location,
		Quality:   req.Quality,
	})
	if err != nil {
		h.writeServiceError(c, "execute trade", err)
		return
	}
	c.JSON(http.StatusOK, tradeExecutionResponse{
		Trade:     tradeToResponse(result.Trade),
		Movements: movementsToResponse(result.Movements),
	})
}

func (h *Handler) CancelTrade(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	trade, err := h.Service.CancelTrade(requestContext(c), id)
	if err != nil {
		h.writeServiceError(c, "cancel trade", err)
		return
	}
	c.JSON(http.StatusOK, tradeToResponse(trade))
}

func (h *Handler) SettleTrade(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	trade, err := h.Service.SettleTrade(requestContext(c), id)
	if err != nil {
		h.writeServiceError(c, "settle trade", err)
		return
	}
	c.JSON(http.StatusOK, tradeToResponse(trade))
}

func (h *Handler) GetTrade(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	trade, err := h.Service.GetTrade(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, "get trade", err)
		return
	}
	c.JSON(http.StatusOK, tradeToResponse(trade))
}

func tradeToResponse(t *storage.Trade) tradeResponse {
	resp := tradeResponse{
		TradeID:        t.ID.String(),
		CommodityID:    t.CommodityID.String(),
		CounterpartyID: t.CounterpartyID.String(),
		Type:           string(t.Type),
		Quantity:       t.Quantity,
		Price:          t.Price.String(),
		TotalValue:     t.TotalValue.String(),
		Status:         string(t.Status),
		TradeDate:      t.TradeDate.UTC().Format(time.RFC3339),
		SettlementDate: t.SettlementDate.UTC().Format(time.RFC3339),
		Location:       t.Location,
		UpdatedAt:      t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.ExecutedAt != nil {
		ts := t.ExecutedAt.UTC().Format(time.RFC3339)
		resp.ExecutedAt = &ts
	}
	return resp
}
