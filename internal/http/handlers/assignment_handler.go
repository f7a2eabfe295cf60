// README: Operator-facing offer response endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trackas/internal/modules/assignment"
	"trackas/internal/types"
)

type AssignmentHandler struct {
	assignments *assignment.Service
}

func NewAssignmentHandler(assignments *assignment.Service) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

func (h *AssignmentHandler) Get(c *gin.Context) {
	a, err := h.assignments.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"assignment_id": a.ID,
		"shipment_id":   a.ShipmentID,
		"vehicle_id":    a.VehicleID,
		"status":        a.Status,
		"cycle":         a.Cycle,
		"score":         a.Score,
		"deadline":      a.Deadline,
	})
}

func (h *AssignmentHandler) Accept(c *gin.Context) {
	if err := h.assignments.Accept(c.Request.Context(), types.ID(c.Param("id"))); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": assignment.StatusAccepted})
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func (h *AssignmentHandler) Reject(c *gin.Context) {
	var req rejectReq
	// Reason is optional; an empty body is a reject without one.
	_ = c.ShouldBindJSON(&req)
	if err := h.assignments.Reject(c.Request.Context(), types.ID(c.Param("id")), req.Reason); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": assignment.StatusRejected})
}
