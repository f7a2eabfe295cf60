// README: Assignment offer record, one per offer attempt.
package assignment

import (
	"time"

	"trackas/internal/modules/fleet"
	"trackas/internal/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusTimeout  Status = "timeout"
)

// Assignment is a single offer of a shipment to one vehicle. At most one
// pending assignment may exist per shipment at any instant; the store's
// conditional insert enforces this.
type Assignment struct {
	ID         types.ID
	ShipmentID types.ID
	VehicleID  types.ID
	Operator   fleet.OperatorRef
	// Cycle is the candidate-sweep counter, starting at 1. Timeouts advance
	// it; explicit rejects re-offer within the same cycle.
	Cycle        int
	Score        float64
	Status       Status
	Deadline     time.Time
	RejectReason string
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}
