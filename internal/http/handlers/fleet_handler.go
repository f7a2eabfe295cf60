// README: Fleet endpoints for registration, availability, and location pings.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trackas/internal/modules/fleet"
	"trackas/internal/types"
)

type FleetHandler struct {
	fleet *fleet.Service
}

func NewFleetHandler(fleetSvc *fleet.Service) *FleetHandler {
	return &FleetHandler{fleet: fleetSvc}
}

type registerVehicleReq struct {
	VCode        string  `json:"vcode"`
	OwnerKind    string  `json:"owner_kind"`
	OwnerID      string  `json:"owner_id"`
	VehicleClass string  `json:"vehicle_class"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

func (h *FleetHandler) RegisterVehicle(c *gin.Context) {
	var req registerVehicleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	kind := fleet.OperatorKind(req.OwnerKind)
	if kind != fleet.KindFleet && kind != fleet.KindIndividual {
		writeError(c, http.StatusBadRequest, "owner_kind must be fleet or individual")
		return
	}
	v := &fleet.Vehicle{
		VCode:    req.VCode,
		Owner:    fleet.OperatorRef{Kind: kind, ID: types.ID(req.OwnerID)},
		Class:    req.VehicleClass,
		Location: types.Point{Lat: req.Lat, Lng: req.Lng},
	}
	if err := h.fleet.RegisterVehicle(c.Request.Context(), v); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"vehicle_id": v.ID})
}

type registerOperatorReq struct {
	Kind             string  `json:"kind"`
	Status           string  `json:"status"`
	Reliability      float64 `json:"reliability"`
	Subscribed       bool    `json:"subscribed"`
	SubscriptionTier int     `json:"subscription_tier"`
}

func (h *FleetHandler) RegisterOperator(c *gin.Context) {
	var req registerOperatorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	kind := fleet.OperatorKind(req.Kind)
	if kind != fleet.KindFleet && kind != fleet.KindIndividual {
		writeError(c, http.StatusBadRequest, "kind must be fleet or individual")
		return
	}
	switch fleet.OperatorStatus(req.Status) {
	case "", fleet.OperatorApproved, fleet.OperatorPending, fleet.OperatorSuspended:
	default:
		writeError(c, http.StatusBadRequest, "unknown operator status")
		return
	}
	o := &fleet.Operator{
		Kind:             kind,
		Status:           fleet.OperatorStatus(req.Status),
		Reliability:      req.Reliability,
		Subscribed:       req.Subscribed,
		SubscriptionTier: req.SubscriptionTier,
	}
	if err := h.fleet.RegisterOperator(c.Request.Context(), o); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"operator_id": o.ID})
}

type availabilityReq struct {
	Available bool `json:"available"`
}

func (h *FleetHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.fleet.SetAvailability(c.Request.Context(), types.ID(c.Param("id")), req.Available); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

type locationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *FleetHandler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.fleet.UpdateLocation(c.Request.Context(), types.ID(c.Param("id")), types.Point{Lat: req.Lat, Lng: req.Lng}); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ok": true})
}

func (h *FleetHandler) GetVehicle(c *gin.Context) {
	v, err := h.fleet.Vehicle(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (h *FleetHandler) GetOperator(c *gin.Context) {
	o, err := h.fleet.Operator(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
