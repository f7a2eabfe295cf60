// README: Fleet service manages vehicle availability, locations, and operator state.
package fleet

import (
	"context"
	"errors"

	"trackas/internal/types"
)

var (
	ErrVehicleNotFound  = errors.New("vehicle not found")
	ErrOperatorNotFound = errors.New("operator not found")
	ErrVehicleClaimed   = errors.New("vehicle already claimed")
)

// Store is the persistence contract the fleet service runs against.
// Production uses the pgx+redis store; tests use MemStore.
type Store interface {
	GetVehicle(ctx context.Context, id types.ID) (*Vehicle, error)
	GetOperator(ctx context.Context, id types.ID) (*Operator, error)
	UpsertVehicle(ctx context.Context, v *Vehicle) error
	UpsertOperator(ctx context.Context, o *Operator) error

	// CandidatesNear returns derived candidates for available vehicles owned
	// by approved operators within radiusKm of p, nearest first.
	CandidatesNear(ctx context.Context, p types.Point, radiusKm float64) ([]Candidate, error)

	// ClaimVehicle flips an available vehicle to busy. Returns false when the
	// vehicle was not available, without error; concurrent claimers race on
	// this compare-and-swap.
	ClaimVehicle(ctx context.Context, id types.ID) (bool, error)
	// ReleaseVehicle flips a busy vehicle back to available.
	ReleaseVehicle(ctx context.Context, id types.ID) error

	UpdateLocation(ctx context.Context, vehicleID types.ID, p types.Point) error
	SetOperatorOnTrip(ctx context.Context, id types.ID, onTrip bool) error
	CreditEarnings(ctx context.Context, id types.ID, amount types.Money) error
	IncrementDeliveries(ctx context.Context, id types.ID) error
	AdjustActiveShipments(ctx context.Context, vehicleID types.ID, delta int) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// RegisterVehicle creates or overwrites a vehicle record. New vehicles start
// inactive until the operator toggles availability.
func (s *Service) RegisterVehicle(ctx context.Context, v *Vehicle) error {
	if v.ID == "" {
		v.ID = types.NewID()
	}
	if v.Status == "" {
		v.Status = VehicleInactive
	}
	return s.store.UpsertVehicle(ctx, v)
}

// RegisterOperator creates or overwrites an operator record. New operators
// start pending until approved.
func (s *Service) RegisterOperator(ctx context.Context, o *Operator) error {
	if o.ID == "" {
		o.ID = types.NewID()
	}
	if o.Status == "" {
		o.Status = OperatorPending
	}
	return s.store.UpsertOperator(ctx, o)
}

func (s *Service) Vehicle(ctx context.Context, id types.ID) (*Vehicle, error) {
	return s.store.GetVehicle(ctx, id)
}

func (s *Service) Operator(ctx context.Context, id types.ID) (*Operator, error) {
	return s.store.GetOperator(ctx, id)
}

// SetAvailability toggles a vehicle between available and inactive. Busy
// vehicles are owned by the assignment flow and cannot be toggled here.
func (s *Service) SetAvailability(ctx context.Context, vehicleID types.ID, available bool) error {
	v, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if v.Status == VehicleBusy {
		return ErrVehicleClaimed
	}
	if available {
		v.Status = VehicleAvailable
	} else {
		v.Status = VehicleInactive
	}
	return s.store.UpsertVehicle(ctx, v)
}

func (s *Service) UpdateLocation(ctx context.Context, vehicleID types.ID, p types.Point) error {
	return s.store.UpdateLocation(ctx, vehicleID, p)
}

func (s *Service) CandidatesNear(ctx context.Context, p types.Point, radiusKm float64) ([]Candidate, error) {
	return s.store.CandidatesNear(ctx, p, radiusKm)
}

// BindToTrip claims the vehicle and, for individual operators, marks the
// operator on-trip. The vehicle claim is the atomic boundary: losing the
// compare-and-swap returns ErrVehicleClaimed and leaves everything untouched.
func (s *Service) BindToTrip(ctx context.Context, vehicleID types.ID, owner OperatorRef) error {
	ok, err := s.store.ClaimVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVehicleClaimed
	}
	if err := s.store.AdjustActiveShipments(ctx, vehicleID, 1); err != nil {
		return err
	}
	switch owner.Kind {
	case KindIndividual:
		return s.store.SetOperatorOnTrip(ctx, owner.ID, true)
	case KindFleet:
		return nil
	}
	return nil
}

// ReleaseFromTrip returns the vehicle to the available pool after delivery
// and clears the individual operator's on-trip flag.
func (s *Service) ReleaseFromTrip(ctx context.Context, vehicleID types.ID, owner OperatorRef) error {
	if err := s.store.ReleaseVehicle(ctx, vehicleID); err != nil {
		return err
	}
	if err := s.store.AdjustActiveShipments(ctx, vehicleID, -1); err != nil {
		return err
	}
	switch owner.Kind {
	case KindIndividual:
		return s.store.SetOperatorOnTrip(ctx, owner.ID, false)
	case KindFleet:
		return nil
	}
	return nil
}

func (s *Service) CreditEarnings(ctx context.Context, operatorID types.ID, amount types.Money) error {
	return s.store.CreditEarnings(ctx, operatorID, amount)
}

func (s *Service) RecordDelivery(ctx context.Context, operatorID types.ID) error {
	return s.store.IncrementDeliveries(ctx, operatorID)
}
