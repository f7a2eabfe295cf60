// README: Common value objects shared across modules.
package types

import "github.com/google/uuid"

// ID identifies any persisted record (shipment, vehicle, operator, ...).
type ID string

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}
