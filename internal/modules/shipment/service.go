// README: Shipment service implements lifecycle transitions and persistence.
package shipment

import (
	"context"
	"errors"
	"time"

	"trackas/internal/modules/fleet"
	"trackas/internal/types"
)

var (
	ErrNotFound     = errors.New("shipment not found")
	ErrInvalidState = errors.New("invalid shipment state transition")
	ErrConflict     = errors.New("shipment state conflict")
	ErrBadRequest   = errors.New("bad shipment request")
)

// Patch carries the optional column updates applied together with a status
// transition.
type Patch struct {
	VehicleID     *types.ID
	Operator      *fleet.OperatorRef
	FailureReason *string
}

// Store is the persistence contract for shipments. UpdateStatus is an
// optimistic compare-and-swap on (status, status_version); exactly one of
// several racing writers observes ok=true.
type Store interface {
	Create(ctx context.Context, sh *Shipment) error
	Get(ctx context.Context, id types.ID) (*Shipment, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, patch Patch) (bool, error)
	UpdatePrice(ctx context.Context, id types.ID, price types.Money, escalations int) error
	AppendEvent(ctx context.Context, e *Event) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type CreateCommand struct {
	ShipperID    types.ID
	Pickup       types.Point
	Destination  types.Point
	VehicleClass string
	Urgency      Urgency
	WeightKg     float64
	BasePrice    types.Money
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if cmd.ShipperID == "" || cmd.VehicleClass == "" {
		return "", ErrBadRequest
	}
	if cmd.BasePrice.Amount <= 0 {
		return "", ErrBadRequest
	}
	switch cmd.Urgency {
	case UrgencyStandard, UrgencyUrgent, UrgencyExpress:
	case "":
		cmd.Urgency = UrgencyStandard
	default:
		return "", ErrBadRequest
	}

	id := types.NewID()
	now := time.Now()
	sh := &Shipment{
		ID:           id,
		ShipperID:    cmd.ShipperID,
		Pickup:       cmd.Pickup,
		Destination:  cmd.Destination,
		VehicleClass: cmd.VehicleClass,
		Urgency:      cmd.Urgency,
		WeightKg:     cmd.WeightKg,
		BasePrice:    cmd.BasePrice,
		CurrentPrice: cmd.BasePrice,
		Status:       StatusPending,
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, sh); err != nil {
		return "", err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		ShipmentID: id,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorType:  "shipper",
		ActorID:    &cmd.ShipperID,
		CreatedAt:  now,
	})
	return id, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Shipment, error) {
	return s.store.Get(ctx, id)
}

// transition performs the load → CanTransition → CAS → event sequence shared
// by every lifecycle operation.
func (s *Service) transition(ctx context.Context, id types.ID, to Status, actorType string, actorID *types.ID, patch Patch) error {
	sh, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(sh.Status, to) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, sh.ID, sh.Status, to, sh.StatusVersion, patch)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &Event{
		ShipmentID: sh.ID,
		FromStatus: sh.Status,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	})
	return nil
}

// BeginAssigning claims the shipment for an orchestration run. The CAS on
// pending→assigning is what stops two orchestrators racing the same shipment.
func (s *Service) BeginAssigning(ctx context.Context, id types.ID) error {
	return s.transition(ctx, id, StatusAssigning, "system", nil, Patch{})
}

// Bind records the winning vehicle and operator after an accepted offer.
func (s *Service) Bind(ctx context.Context, id types.ID, vehicleID types.ID, op fleet.OperatorRef) error {
	return s.transition(ctx, id, StatusAssigned, "system", nil, Patch{
		VehicleID: &vehicleID,
		Operator:  &op,
	})
}

// Fail ends the shipment after candidate exhaustion.
func (s *Service) Fail(ctx context.Context, id types.ID, reason string) error {
	return s.transition(ctx, id, StatusFailed, "system", nil, Patch{FailureReason: &reason})
}

func (s *Service) MarkPickedUp(ctx context.Context, id types.ID, operatorID types.ID) error {
	return s.transition(ctx, id, StatusPickedUp, "operator", &operatorID, Patch{})
}

func (s *Service) MarkInTransit(ctx context.Context, id types.ID, operatorID types.ID) error {
	return s.transition(ctx, id, StatusInTransit, "operator", &operatorID, Patch{})
}

// MarkDelivered is driven by proof-of-delivery verification only.
func (s *Service) MarkDelivered(ctx context.Context, id types.ID) error {
	return s.transition(ctx, id, StatusDelivered, "system", nil, Patch{})
}

// SettlePayment is driven by escrow release only.
func (s *Service) SettlePayment(ctx context.Context, id types.ID) error {
	return s.transition(ctx, id, StatusPaymentSettled, "system", nil, Patch{})
}

func (s *Service) Cancel(ctx context.Context, id types.ID, actorType string, actorID *types.ID) error {
	return s.transition(ctx, id, StatusCancelled, actorType, actorID, Patch{})
}

// EscalatePrice applies a new current price and bumps the escalation count.
// It does not touch status; the orchestrator owns when escalation happens.
func (s *Service) EscalatePrice(ctx context.Context, id types.ID, price types.Money, escalations int) error {
	return s.store.UpdatePrice(ctx, id, price, escalations)
}
