// README: Proof-of-delivery verifier; geofences uploads and triggers settlement.
package pod

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"trackas/internal/geo"
	"trackas/internal/modules/fleet"
	"trackas/internal/modules/shipment"
	"trackas/internal/notify"
	"trackas/internal/storage"
	"trackas/internal/types"
)

var (
	ErrNotFound     = errors.New("proof of delivery not found")
	ErrNotInTransit = errors.New("shipment not in transit")
	ErrNoPhotos     = errors.New("proof requires at least one photo")
)

// GeofenceRadiusKm is the inclusive verification boundary: an upload at
// exactly this distance from the destination still verifies.
const GeofenceRadiusKm = 0.5

type Store interface {
	Create(ctx context.Context, p *Proof) error
	GetByShipment(ctx context.Context, shipmentID types.ID) (*Proof, error)
	// ListUnverified feeds the manual review queue for geofence-rejected
	// proofs.
	ListUnverified(ctx context.Context, limit int) ([]*Proof, error)
}

// Escrow is the slice of the ledger the verifier triggers on success.
type Escrow interface {
	Release(ctx context.Context, shipmentID types.ID) error
}

type Service struct {
	store     Store
	shipments *shipment.Service
	fleet     *fleet.Service
	escrow    Escrow
	blobs     storage.BlobStore
	notify    notify.Sender
	log       *zap.Logger
}

func NewService(store Store, shipments *shipment.Service, fleetSvc *fleet.Service, escrowSvc Escrow, blobs storage.BlobStore, sender notify.Sender, log *zap.Logger) *Service {
	if sender == nil {
		sender = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		shipments: shipments,
		fleet:     fleetSvc,
		escrow:    escrowSvc,
		blobs:     blobs,
		notify:    sender,
		log:       log,
	}
}

type UploadCommand struct {
	ShipmentID     types.ID
	UploaderID     types.ID
	Photos         [][]byte
	Signature      []byte
	RecipientName  string
	UploadLocation types.Point
}

// Upload persists a delivery proof and, when the upload location is within
// the geofence of the destination, completes the delivery: shipment to
// delivered, vehicle released, operator counters bumped, escrow released.
// A geofence miss stores the proof unverified and changes nothing else;
// it surfaces on the manual review queue.
func (s *Service) Upload(ctx context.Context, cmd UploadCommand) (*Proof, error) {
	sh, err := s.shipments.Get(ctx, cmd.ShipmentID)
	if err != nil {
		return nil, err
	}
	if sh.Status != shipment.StatusInTransit {
		return nil, ErrNotInTransit
	}
	if len(cmd.Photos) == 0 {
		return nil, ErrNoPhotos
	}

	photoRefs := make([]string, 0, len(cmd.Photos))
	for _, photo := range cmd.Photos {
		ref, err := s.blobs.Put(ctx, "pod_photo", photo)
		if err != nil {
			return nil, err
		}
		photoRefs = append(photoRefs, ref)
	}
	var signatureRef string
	if len(cmd.Signature) > 0 {
		signatureRef, err = s.blobs.Put(ctx, "pod_signature", cmd.Signature)
		if err != nil {
			return nil, err
		}
	}

	distance := geo.DistanceKm(cmd.UploadLocation, sh.Destination)
	now := time.Now()
	proof := &Proof{
		ID:             types.NewID(),
		ShipmentID:     cmd.ShipmentID,
		UploaderID:     cmd.UploaderID,
		PhotoRefs:      photoRefs,
		SignatureRef:   signatureRef,
		RecipientName:  cmd.RecipientName,
		UploadLocation: cmd.UploadLocation,
		DistanceKm:     distance,
		Verified:       distance <= GeofenceRadiusKm,
		CreatedAt:      now,
	}
	if proof.Verified {
		proof.VerifiedAt = &now
	}
	if err := s.store.Create(ctx, proof); err != nil {
		return nil, err
	}

	if !proof.Verified {
		s.log.Info("pod stored unverified",
			zap.String("shipment_id", string(cmd.ShipmentID)),
			zap.Float64("distance_km", distance))
		return proof, nil
	}

	if err := s.completeDelivery(ctx, sh); err != nil {
		return nil, err
	}
	return proof, nil
}

func (s *Service) completeDelivery(ctx context.Context, sh *shipment.Shipment) error {
	if err := s.shipments.MarkDelivered(ctx, sh.ID); err != nil {
		return err
	}
	if sh.VehicleID != nil && sh.Operator != nil {
		if err := s.fleet.ReleaseFromTrip(ctx, *sh.VehicleID, *sh.Operator); err != nil {
			s.log.Warn("vehicle release failed",
				zap.String("shipment_id", string(sh.ID)), zap.Error(err))
		}
		if err := s.fleet.RecordDelivery(ctx, sh.Operator.ID); err != nil {
			s.log.Warn("delivery counter failed",
				zap.String("shipment_id", string(sh.ID)), zap.Error(err))
		}
	}
	if err := s.escrow.Release(ctx, sh.ID); err != nil {
		return err
	}
	_ = s.notify.Send(ctx, notify.Event{
		Type:       notify.EventDeliveryVerified,
		Audience:   notify.AudienceShipper,
		TargetID:   sh.ShipperID,
		ShipmentID: sh.ID,
	})
	s.log.Info("delivery verified",
		zap.String("shipment_id", string(sh.ID)))
	return nil
}

func (s *Service) ByShipment(ctx context.Context, shipmentID types.ID) (*Proof, error) {
	return s.store.GetByShipment(ctx, shipmentID)
}

func (s *Service) Unverified(ctx context.Context, limit int) ([]*Proof, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListUnverified(ctx, limit)
}
