package handlers

import (
	"net/http"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/service"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createContractRequest struct {
	CommodityID    string `json:"commodity_id"`
	CounterpartyID string `json:"counterparty_id"`
	Type           string `json:"type"`
	Quantity       int64  `json:"quantity"`
	Price          string `json:"price"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	Terms          string `json:"terms"`
}

type updateContractRequest struct {
	Quantity  *int64  `json:"quantity"`
	Price     *string `json:"price"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Terms     *string `json:"terms"`
}

type executeTrancheRequest struct {
	Quantity      int64  `json:"quantity"`
	ExecutionDate string `json:"execution_date"`
	TradeID       string `json:"trade_id"`
	routingRequest
}

type cancelContractRequest struct {
	Reason string `json:"reason"`
}

type contractResponse struct {
	ContractID         string `json:"contract_id"`
	CommodityID        string `json:"commodity_id"`
	CounterpartyID     string `json:"counterparty_id"`
	Type               string `json:"type"`
	Quantity           int64  `json:"quantity"`
	Price              string `json:"price"`
	TotalValue         string `json:"total_value"`
	ExecutedQuantity   int64  `json:"executed_quantity"`
	RemainingQuantity  int64  `json:"remaining_quantity"`
	Status             string `json:"status"`
	StartDate          string `json:"start_date"`
	EndDate            string `json:"end_date"`
	Terms              string `json:"terms,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	UpdatedAt          string `json:"updated_at"`
}

type executionResponse struct {
	ExecutionID   string  `json:"execution_id"`
	ContractID    string  `json:"contract_id"`
	Quantity      int64   `json:"quantity"`
	Price         string  `json:"price"`
	ExecutionDate string  `json:"execution_date"`
	TradeID       *string `json:"trade_id,omitempty"`
}

type trancheResponse struct {
	Contract  contractResponse   `json:"contract"`
	Execution executionResponse  `json:"execution"`
	Movements []movementResponse `json:"movements"`
}

func (h *Handler) CreateContract(c *gin.Context) {
	var req createContractRequest
	if !bindJSON(c, &req) {
		return
	}

	var errs validation.ValidationErrors
	in := service.CreateContractInput{
		CommodityID:    errs.UUID("commodity_id", req.CommodityID),
		CounterpartyID: errs.UUID("counterparty_id", req.CounterpartyID),
		Type:           storage.ContractType(req.Type),
		Quantity:       errs.PositiveInt("quantity", req.Quantity),
		Price:          errs.PositiveDecimal("price", req.Price),
		StartDate:      errs.Time("start_date", req.StartDate),
		EndDate:        errs.Time("end_date", req.EndDate),
		Terms:          req.Terms,
	}
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	contract, err := h.Service.CreateContract(requestContext(c), in)
	if err != nil {
		h.writeServiceError(c, "create contract", err)
		return
	}
	c.JSON(http.StatusCreated, contractToResponse(contract))
}

func (h *Handler) UpdateContract(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	var req updateContractRequest
	if !bindJSON(c, &req) {
		return
	}

	var errs validation.ValidationErrors
	in := service.UpdateContractInput{ContractID: id, Quantity: req.Quantity, Terms: req.Terms}
	if req.Price != nil {
		price := errs.PositiveDecimal("price", *req.Price)
		in.Price = &price
	}
	if req.StartDate != nil {
		start := errs.Time("start_date", *req.StartDate)
		in.StartDate = &start
	}
	if req.EndDate != nil {
		end := errs.Time("end_date", *req.EndDate)
		in.EndDate = &end
	}
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	contract, err := h.Service.UpdateContractTerms(requestContext(c), in)
	if err != nil {
		h.writeServiceError(c, "update contract", err)
		return
	}
	c.JSON(http.StatusOK, contractToResponse(contract))
}

func (h *Handler) ExecuteTranche(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	var req executeTrancheRequest
	if !bindJSON(c, &req) {
		return
	}

	var errs validation.ValidationErrors
	in := service.ExecuteTrancheInput{
		ContractID: id,
		Quantity:   errs.PositiveInt("quantity", req.Quantity),
		TradeID:    errs.OptionalUUID("trade_id", req.TradeID),
		Warehouse:  req.Warehouse,
		Location:   req.Location,
		Quality:    req.Quality,
	}
	if ts := errs.OptionalTime("execution_date", req.ExecutionDate); ts != nil {
		in.ExecutionDate = *ts
	}
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	result, err := h.Service.ExecuteContractTranche(requestContext(c), in)
	if err != nil {
		h.writeServiceError(c, "execute tranche", err)
		return
	}
	c.JSON(http.StatusCreated, trancheResponse{
		Contract:  contractToResponse(result.Contract),
		Execution: executionToResponse(*result.Execution),
		Movements: movementsToResponse(result.Movements),
	})
}

func (h *Handler) CancelContract(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	var req cancelContractRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	contract, err := h.Service.CancelContract(requestContext(c), id, req.Reason)
	if err != nil {
		h.writeServiceError(c, "cancel contract", err)
		return
	}
	c.JSON(http.StatusOK, contractToResponse(contract))
}

func (h *Handler) GetContract(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	contract, err := h.Service.GetContract(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, "get contract", err)
		return
	}
	c.JSON(http.StatusOK, contractToResponse(contract))
}

func (h *Handler) ListExecutions(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	executions, err := h.Service.ListContractExecutions(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, "list executions", err)
		return
	}
	items := make([]executionResponse, 0, len(executions))
	for _, e := range executions {
		items = append(items, executionToResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"executions": items})
}

func contractToResponse(ct *storage.Contract) contractResponse {
	return contractResponse{
		ContractID:         ct.ID.String(),
		CommodityID:        ct.CommodityID.String(),
		CounterpartyID:     ct.CounterpartyID.String(),
		Type:               string(ct.Type),
		Quantity:           ct.Quantity,
		Price:              ct.Price.String(),
		TotalValue:         ct.TotalValue.String(),
		ExecutedQuantity:   ct.ExecutedQuantity,
		RemainingQuantity:  ct.RemainingQuantity,
		Status:             string(ct.Status),
		StartDate:          ct.StartDate.UTC().Format(time.RFC3339),
		EndDate:            ct.EndDate.UTC().Format(time.RFC3339),
		Terms:              ct.Terms,
		CancellationReason: ct.CancellationReason,
		UpdatedAt:          ct.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func executionToResponse(e storage.ContractExecution) executionResponse {
	resp := executionResponse{
		ExecutionID:   e.ID.String(),
		ContractID:    e.ContractID.String(),
		Quantity:      e.Quantity,
		Price:         e.Price.String(),
		ExecutionDate: e.ExecutionDate.UTC().Format(time.RFC3339),
	}
	if e.TradeID != nil {
		id := e.TradeID.String()
		resp.TradeID = &id
	}
	return resp
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
