// README: Proof-of-delivery record.
package pod

import (
	"time"

	"trackas/internal/types"
)

// Proof is one delivery-proof submission for a shipment. Verified flips once
// at upload time when the geofence check passes; it is never re-evaluated.
type Proof struct {
	ID             types.ID
	ShipmentID     types.ID
	UploaderID     types.ID
	PhotoRefs      []string
	SignatureRef   string
	RecipientName  string
	UploadLocation types.Point
	// DistanceKm is the recorded distance between the upload location and
	// the shipment destination at verification time.
	DistanceKm float64
	Verified   bool
	CreatedAt  time.Time
	VerifiedAt *time.Time
}
