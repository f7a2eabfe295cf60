// README: Shipment aggregate and status state machine.
package shipment

import (
	"time"

	"trackas/internal/modules/fleet"
	"trackas/internal/types"
)

type Status string

const (
	StatusNone           Status = "none"
	StatusPending        Status = "pending"
	StatusAssigning      Status = "assigning"
	StatusAssigned       Status = "assigned"
	StatusPickedUp       Status = "picked_up"
	StatusInTransit      Status = "in_transit"
	StatusDelivered      Status = "delivered"
	StatusPaymentSettled Status = "payment_settled"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

type Urgency string

const (
	UrgencyStandard Urgency = "standard"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyExpress  Urgency = "express"
)

type Shipment struct {
	ID            types.ID
	ShipperID     types.ID
	Pickup        types.Point
	Destination   types.Point
	VehicleClass  string
	Urgency       Urgency
	WeightKg      float64
	BasePrice     types.Money
	CurrentPrice  types.Money
	// EscalationCount tracks how many price increases have been applied.
	EscalationCount int
	Status          Status
	StatusVersion   int
	VehicleID       *types.ID
	Operator        *fleet.OperatorRef
	CreatedAt       time.Time
	AssignedAt      *time.Time
	PickedUpAt      *time.Time
	InTransitAt     *time.Time
	DeliveredAt     *time.Time
	FailureReason   *string
}

type Event struct {
	ID         int64
	ShipmentID types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the shipment state flow as code.
// pending ↔ assigning cycles repeat in place; assigning does not loop
// through pending again.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusAssigning, StatusCancelled},
	StatusAssigning: {StatusAssigned, StatusFailed, StatusCancelled},
	StatusAssigned:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusInTransit},
	StatusInTransit: {StatusDelivered},
	StatusDelivered: {StatusPaymentSettled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the shipment can never change status again.
func Terminal(s Status) bool {
	switch s {
	case StatusPaymentSettled, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
