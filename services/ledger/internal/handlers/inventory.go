package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/inventory"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/storage"
	"github.com/aJV99/CommodiTrade-sub000/services/ledger/internal/validation"
	"github.com/gin-gonic/gin"
)

type postMovementRequest struct {
	LotID           string `json:"lot_id"`
	Kind            string `json:"kind"`
	Quantity        int64  `json:"quantity"`
	Reason          string `json:"reason"`
	ReferenceType   string `json:"reference_type"`
	ReferenceID     string `json:"reference_id"`
	UnitCost        string `json:"unit_cost"`
	UnitMarketValue string `json:"unit_market_value"`
}

type updatePriceRequest struct {
	Price string `json:"price"`
}

type lotResponse struct {
	LotID       string `json:"lot_id"`
	CommodityID string `json:"commodity_id"`
	Quantity    int64  `json:"quantity"`
	Unit        string `json:"unit"`
	Warehouse   string `json:"warehouse"`
	Location    string `json:"location"`
	Quality     string `json:"quality"`
	CostBasis   string `json:"cost_basis"`
	MarketValue string `json:"market_value"`
	UpdatedAt   string `json:"updated_at"`
}

type movementResponse struct {
	MovementID        string  `json:"movement_id"`
	LotID             string  `json:"lot_id"`
	Kind              string  `json:"kind"`
	QuantityDelta     int64   `json:"quantity_delta"`
	ResultingQuantity int64   `json:"resulting_quantity"`
	UnitCost          *string `json:"unit_cost,omitempty"`
	UnitMarketValue   *string `json:"unit_market_value,omitempty"`
	Reason            string  `json:"reason,omitempty"`
	ReferenceType     string  `json:"reference_type"`
	ReferenceID       *string `json:"reference_id,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

func (h *Handler) PostMovement(c *gin.Context) {
	var req postMovementRequest
	if !bindJSON(c, &req) {
		return
	}

	var errs validation.ValidationErrors
	mr := inventory.MovementRequest{
		LotID:           errs.UUID("lot_id", req.LotID),
		Kind:            storage.MovementKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		Quantity:        req.Quantity,
		Reason:          req.Reason,
		UnitCost:        errs.OptionalNonNegativeDecimal("unit_cost", req.UnitCost),
		UnitMarketValue: errs.OptionalNonNegativeDecimal("unit_market_value", req.UnitMarketValue),
	}
	if req.ReferenceType != "" {
		refType, ok := storage.ParseReferenceType(req.ReferenceType)
		if !ok {
			errs.Add("reference_type", "reference_type must be TRADE, CONTRACT, SHIPMENT or MANUAL")
		}
		mr.Reference.Type = refType
	}
	mr.Reference.ID = errs.OptionalUUID("reference_id", req.ReferenceID)
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	result, err := h.Service.PostInventoryMovement(requestContext(c), mr)
	if err != nil {
		h.writeServiceError(c, "post movement", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"lot":      lotToResponse(*result.Lot),
		"movement": movementToResponse(*result.Movement),
	})
}

func (h *Handler) UpdatePrice(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	var req updatePriceRequest
	if !bindJSON(c, &req) {
		return
	}
	var errs validation.ValidationErrors
	price := errs.PositiveDecimal("price", req.Price)
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	result, err := h.Service.UpdateCommodityPrice(requestContext(c), id, price)
	if err != nil {
		h.writeServiceError(c, "update price", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"commodity_id":         result.Commodity.ID.String(),
		"current_price":        result.Commodity.CurrentPrice.String(),
		"price_change":         result.Commodity.PriceChange.String(),
		"price_change_percent": result.Commodity.PriceChangePercent.String(),
		"revalued_lots":        result.RevaluedLots,
	})
}

func (h *Handler) GetLot(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	lot, err := h.Service.GetLot(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, "get lot", err)
		return
	}
	c.JSON(http.StatusOK, lotToResponse(*lot))
}

func (h *Handler) ListLots(c *gin.Context) {
	var errs validation.ValidationErrors
	filter := storage.LotFilter{
		CommodityID: errs.OptionalUUID("commodity_id", c.Query("commodity_id")),
		Warehouse:   optionalQuery(c, "warehouse"),
		Location:    optionalQuery(c, "location"),
		Quality:     optionalQuery(c, "quality"),
		InStockOnly: c.Query("in_stock") == "true",
	}
	limit, err := validation.ParseLimit(c.Query("limit"))
	if err != nil {
		errs.Add("limit", err.Error())
	}
	filter.Limit = limit
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	lots, err := h.Service.ListLots(c.Request.Context(), filter)
	if err != nil {
		h.writeServiceError(c, "list lots", err)
		return
	}
	items := make([]lotResponse, 0, len(lots))
	for _, lot := range lots {
		items = append(items, lotToResponse(lot))
	}
	c.JSON(http.StatusOK, gin.H{"lots": items})
}

func (h *Handler) ListMovements(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	var errs validation.ValidationErrors
	filter := storage.MovementFilter{LotID: &id, Since: errs.OptionalTime("since", c.Query("since"))}
	if raw := c.Query("kind"); raw != "" {
		kind, ok := storage.ParseMovementKind(raw)
		if !ok {
			errs.Add("kind", "kind must be IN, OUT or ADJUSTMENT")
		}
		filter.Kind = &kind
	}
	limit, err := validation.ParseLimit(c.Query("limit"))
	if err != nil {
		errs.Add("limit", err.Error())
	}
	filter.Limit = limit
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", errs)
		return
	}

	movements, err := h.Service.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.writeServiceError(c, "list movements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movementsToResponse(movements)})
}

func optionalQuery(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

func lotToResponse(l storage.InventoryLot) lotResponse {
	return lotResponse{
		LotID:       l.ID.String(),
		CommodityID: l.CommodityID.String(),
		Quantity:    l.Quantity,
		Unit:        l.Unit,
		Warehouse:   l.Warehouse,
		Location:    l.Location,
		Quality:     l.Quality,
		CostBasis:   l.CostBasis.String(),
		MarketValue: l.MarketValue.String(),
		UpdatedAt:   l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func movementToResponse(m storage.InventoryMovement) movementResponse {
	resp := movementResponse{
		MovementID:        m.ID.String(),
		LotID:             m.LotID.String(),
		Kind:              string(m.Kind),
		QuantityDelta:     m.QuantityDelta,
		ResultingQuantity: m.ResultingQuantity,
		UnitCost:          decimalString(m.UnitCost),
		UnitMarketValue:   decimalString(m.UnitMarketValue),
		Reason:            m.Reason,
		ReferenceType:     string(m.ReferenceType),
		CreatedAt:         m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.ReferenceID != nil {
		id := m.ReferenceID.String()
		resp.ReferenceID = &id
	}
	return resp
}

func movementsToResponse(movements []storage.InventoryMovement) []movementResponse {
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementToResponse(m))
	}
	return out
}
