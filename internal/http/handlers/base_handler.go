// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"trackas/internal/modules/assignment"
	"trackas/internal/modules/escrow"
	"trackas/internal/modules/fleet"
	"trackas/internal/modules/pod"
	"trackas/internal/modules/shipment"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps module sentinel errors onto HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, shipment.ErrBadRequest),
		errors.Is(err, escrow.ErrInvalidPercent),
		errors.Is(err, pod.ErrNoPhotos):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, shipment.ErrNotFound),
		errors.Is(err, assignment.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, pod.ErrNotFound),
		errors.Is(err, fleet.ErrVehicleNotFound),
		errors.Is(err, fleet.ErrOperatorNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, shipment.ErrInvalidState),
		errors.Is(err, shipment.ErrConflict),
		errors.Is(err, assignment.ErrAlreadyResolved),
		errors.Is(err, assignment.ErrDeadlinePassed),
		errors.Is(err, escrow.ErrNoHeldEscrow),
		errors.Is(err, escrow.ErrAlreadyHeld),
		errors.Is(err, escrow.ErrNotDelivered),
		errors.Is(err, escrow.ErrNotAssigned),
		errors.Is(err, pod.ErrNotInTransit),
		errors.Is(err, fleet.ErrVehicleClaimed):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
