// README: Vehicle and operator records backing candidate sourcing.
package fleet

import (
	"time"

	"trackas/internal/types"
)

type OperatorKind string

const (
	KindFleet      OperatorKind = "fleet"
	KindIndividual OperatorKind = "individual"
)

// OperatorRef is a tagged reference to the owning operator of a vehicle.
// Every usage site switches on Kind; there are no parallel optional fields.
type OperatorRef struct {
	Kind OperatorKind
	ID   types.ID
}

type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehicleBusy      VehicleStatus = "busy"
	VehicleInactive  VehicleStatus = "inactive"
)

type OperatorStatus string

const (
	OperatorApproved  OperatorStatus = "approved"
	OperatorPending   OperatorStatus = "pending"
	OperatorSuspended OperatorStatus = "suspended"
)

type Vehicle struct {
	ID       types.ID
	VCode    string
	Owner    OperatorRef
	Class    string
	Status   VehicleStatus
	Location types.Point
	// ActiveShipments counts shipments currently bound to this vehicle.
	ActiveShipments int
	UpdatedAt       time.Time
}

type Operator struct {
	ID     types.ID
	Kind   OperatorKind
	Status OperatorStatus
	// Reliability is a rolling quality score in [0,100].
	Reliability float64
	// OnTrip applies to individual operators only; fleets run many vehicles.
	OnTrip              bool
	Subscribed          bool
	SubscriptionTier    int // 0..3
	CompletedDeliveries int
	Earnings            types.Money
}

// Candidate is the derived, per-attempt view of a vehicle and its owner used
// by the scorer. It is computed fresh for every assignment cycle and never
// cached across cycles.
type Candidate struct {
	VehicleID        types.ID
	Owner            OperatorRef
	VehicleClass     string
	Location         types.Point
	DistanceKm       float64
	Reliability      float64
	ActiveShipments  int
	Subscribed       bool
	SubscriptionTier int
}
