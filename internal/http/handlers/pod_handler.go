// README: Proof-of-delivery upload and review endpoints.
package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trackas/internal/modules/pod"
	"trackas/internal/types"
)

type PodHandler struct {
	pods *pod.Service
}

func NewPodHandler(pods *pod.Service) *PodHandler {
	return &PodHandler{pods: pods}
}

type uploadPodReq struct {
	UploaderID    string   `json:"uploader_id"`
	Photos        []string `json:"photos"` // base64
	Signature     string   `json:"signature"`
	RecipientName string   `json:"recipient_name"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
}

func (h *PodHandler) Upload(c *gin.Context) {
	var req uploadPodReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	photos := make([][]byte, 0, len(req.Photos))
	for _, p := range req.Photos {
		raw, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid photo encoding")
			return
		}
		photos = append(photos, raw)
	}
	var signature []byte
	if req.Signature != "" {
		raw, err := base64.StdEncoding.DecodeString(req.Signature)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid signature encoding")
			return
		}
		signature = raw
	}

	proof, err := h.pods.Upload(c.Request.Context(), pod.UploadCommand{
		ShipmentID:     types.ID(c.Param("id")),
		UploaderID:     types.ID(req.UploaderID),
		Photos:         photos,
		Signature:      signature,
		RecipientName:  req.RecipientName,
		UploadLocation: types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{
		"proof_id":    proof.ID,
		"verified":    proof.Verified,
		"distance_km": proof.DistanceKm,
	})
}

func (h *PodHandler) ByShipment(c *gin.Context) {
	proof, err := h.pods.ByShipment(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, proof)
}

func (h *PodHandler) Unverified(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	proofs, err := h.pods.Unverified(c.Request.Context(), limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"proofs": proofs})
}
