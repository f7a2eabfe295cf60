// README: Escrow transaction and commission config records.
package escrow

import (
	"time"

	"trackas/internal/modules/fleet"
	"trackas/internal/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusHeld     Status = "held"
	StatusReleased Status = "released"
	StatusRefunded Status = "refunded"
	StatusDisputed Status = "disputed"
)

// Transaction is the monetary hold tied 1:1 to a shipment. Amount is the
// full shipment price; Commission plus OperatorShare always equals Amount.
// released and refunded are terminal.
type Transaction struct {
	ID            types.ID
	ShipmentID    types.ID
	Amount        types.Money
	Commission    types.Money
	OperatorShare types.Money
	Status        Status
	Recipient     *fleet.OperatorRef
	Reason        string
	HeldAt        time.Time
	ResolvedAt    *time.Time
}

// CommissionConfig is the process-wide commission percentage. Exactly one
// config is active at a time; updates deactivate the previous record rather
// than mutating it, keeping an audit trail.
type CommissionConfig struct {
	ID        types.ID
	Percent   float64 // [0,10]
	ValidFrom time.Time
	ValidTo   *time.Time
	Active    bool
	CreatedAt time.Time
}

// Split divides amount into commission and operator share at pct percent.
// Rounding goes to the commission side; the operator share is the remainder
// so the two always sum to amount exactly.
func Split(amount types.Money, pct float64) (commission, operatorShare types.Money) {
	commission = amount.Scale(pct / 100.0)
	operatorShare = amount.Sub(commission)
	return commission, operatorShare
}
