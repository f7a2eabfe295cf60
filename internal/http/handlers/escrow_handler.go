// README: Escrow lookup and commission configuration endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trackas/internal/modules/escrow"
	"trackas/internal/types"
)

type EscrowHandler struct {
	escrow *escrow.Service
}

func NewEscrowHandler(escrowSvc *escrow.Service) *EscrowHandler {
	return &EscrowHandler{escrow: escrowSvc}
}

func (h *EscrowHandler) ByShipment(c *gin.Context) {
	tx, err := h.escrow.Transaction(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"transaction_id": tx.ID,
		"shipment_id":    tx.ShipmentID,
		"status":         tx.Status,
		"amount":         tx.Amount.Amount,
		"currency":       tx.Amount.Currency,
		"commission":     tx.Commission.Amount,
		"operator_share": tx.OperatorShare.Amount,
		"reason":         tx.Reason,
	})
}

func (h *EscrowHandler) GetCommission(c *gin.Context) {
	cfg, err := h.escrow.ActiveCommission(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"percent":    cfg.Percent,
		"valid_from": cfg.ValidFrom,
	})
}

type commissionReq struct {
	Percent float64 `json:"percent"`
}

// UpdateCommission rotates the active commission config. Held escrows keep
// the percentage they were created with.
func (h *EscrowHandler) UpdateCommission(c *gin.Context) {
	var req commissionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cfg, err := h.escrow.UpdateCommission(c.Request.Context(), req.Percent)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{
		"percent":    cfg.Percent,
		"valid_from": cfg.ValidFrom,
	})
}
