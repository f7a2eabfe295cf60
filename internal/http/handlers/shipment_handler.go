// README: Shipment handlers for create/get/lifecycle updates.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trackas/internal/modules/assignment"
	"trackas/internal/modules/escrow"
	"trackas/internal/modules/shipment"
	"trackas/internal/types"
)

type ShipmentHandler struct {
	shipments   *shipment.Service
	escrow      *escrow.Service
	assignments *assignment.Service
}

func NewShipmentHandler(shipments *shipment.Service, escrowSvc *escrow.Service, assignments *assignment.Service) *ShipmentHandler {
	return &ShipmentHandler{shipments: shipments, escrow: escrowSvc, assignments: assignments}
}

type createShipmentReq struct {
	ShipperID    string  `json:"shipper_id"`
	PickupLat    float64 `json:"pickup_lat"`
	PickupLng    float64 `json:"pickup_lng"`
	DestLat      float64 `json:"dest_lat"`
	DestLng      float64 `json:"dest_lng"`
	VehicleClass string  `json:"vehicle_class"`
	Urgency      string  `json:"urgency"`
	WeightKg     float64 `json:"weight_kg"`
	PriceAmount  int64   `json:"price_amount"`
	Currency     string  `json:"currency"`
}

// Create quotes the shipment, opens the escrow hold, and kicks off the
// assignment loop.
func (h *ShipmentHandler) Create(c *gin.Context) {
	var req createShipmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}

	id, err := h.shipments.Create(c.Request.Context(), shipment.CreateCommand{
		ShipperID:    types.ID(req.ShipperID),
		Pickup:       types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Destination:  types.Point{Lat: req.DestLat, Lng: req.DestLng},
		VehicleClass: req.VehicleClass,
		Urgency:      shipment.Urgency(req.Urgency),
		WeightKg:     req.WeightKg,
		BasePrice:    types.Money{Amount: req.PriceAmount, Currency: req.Currency},
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	if _, err := h.escrow.CreateEscrow(c.Request.Context(), id, types.Money{Amount: req.PriceAmount, Currency: req.Currency}); err != nil {
		writeDomainError(c, err)
		return
	}
	if err := h.assignments.Initiate(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"shipment_id": id, "status": shipment.StatusAssigning})
}

func (h *ShipmentHandler) Get(c *gin.Context) {
	sh, err := h.shipments.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"shipment_id":      sh.ID,
		"status":           sh.Status,
		"current_price":    sh.CurrentPrice.Amount,
		"escalation_count": sh.EscalationCount,
		"vehicle_id":       sh.VehicleID,
	})
}

func (h *ShipmentHandler) Cancel(c *gin.Context) {
	id := types.ID(c.Param("id"))
	shipperID := types.ID(c.Query("shipper_id"))
	// The orchestrator withdraws any open offer, stops its timers, and
	// refunds the held escrow alongside the status change.
	if err := h.assignments.Cancel(c.Request.Context(), id, "shipper", &shipperID); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": shipment.StatusCancelled})
}

func (h *ShipmentHandler) PickedUp(c *gin.Context) {
	operatorID := types.ID(c.Query("operator_id"))
	if err := h.shipments.MarkPickedUp(c.Request.Context(), types.ID(c.Param("id")), operatorID); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": shipment.StatusPickedUp})
}

func (h *ShipmentHandler) InTransit(c *gin.Context) {
	operatorID := types.ID(c.Query("operator_id"))
	if err := h.shipments.MarkInTransit(c.Request.Context(), types.ID(c.Param("id")), operatorID); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": shipment.StatusInTransit})
}
