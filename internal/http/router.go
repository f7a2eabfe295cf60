// README: HTTP router registration.
package http

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trackas/internal/http/handlers"
	"trackas/internal/http/middleware"
	"trackas/internal/modules/assignment"
	"trackas/internal/modules/escrow"
	"trackas/internal/modules/fleet"
	"trackas/internal/modules/pod"
	"trackas/internal/modules/shipment"
)

type RouterDeps struct {
	Shipments   *shipment.Service
	Assignments *assignment.Service
	Fleet       *fleet.Service
	Escrow      *escrow.Service
	Pods        *pod.Service
	Log         *zap.Logger
}

func NewRouter(deps RouterDeps) nethttp.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(deps.Log), middleware.Recovery(deps.Log))

	shipmentHandler := handlers.NewShipmentHandler(deps.Shipments, deps.Escrow, deps.Assignments)
	r.POST("/api/shipments", shipmentHandler.Create)
	r.GET("/api/shipments/:id", shipmentHandler.Get)
	r.POST("/api/shipments/:id/cancel", shipmentHandler.Cancel)
	r.POST("/api/shipments/:id/pickup", shipmentHandler.PickedUp)
	r.POST("/api/shipments/:id/transit", shipmentHandler.InTransit)

	assignmentHandler := handlers.NewAssignmentHandler(deps.Assignments)
	r.GET("/api/assignments/:id", assignmentHandler.Get)
	r.POST("/api/assignments/:id/accept", assignmentHandler.Accept)
	r.POST("/api/assignments/:id/reject", assignmentHandler.Reject)

	podHandler := handlers.NewPodHandler(deps.Pods)
	r.POST("/api/shipments/:id/pod", podHandler.Upload)
	r.GET("/api/shipments/:id/pod", podHandler.ByShipment)
	r.GET("/api/pods/unverified", podHandler.Unverified)

	fleetHandler := handlers.NewFleetHandler(deps.Fleet)
	r.POST("/api/vehicles", fleetHandler.RegisterVehicle)
	r.GET("/api/vehicles/:id", fleetHandler.GetVehicle)
	r.PUT("/api/vehicles/:id/availability", fleetHandler.SetAvailability)
	r.PUT("/api/vehicles/:id/location", fleetHandler.UpdateLocation)
	r.POST("/api/operators", fleetHandler.RegisterOperator)
	r.GET("/api/operators/:id", fleetHandler.GetOperator)

	escrowHandler := handlers.NewEscrowHandler(deps.Escrow)
	r.GET("/api/shipments/:id/escrow", escrowHandler.ByShipment)
	r.GET("/api/commission", escrowHandler.GetCommission)
	r.PUT("/api/commission", escrowHandler.UpdateCommission)

	r.GET("/health", func(c *gin.Context) {
		c.String(nethttp.StatusOK, "OK")
	})

	return r
}
