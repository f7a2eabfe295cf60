// README: In-memory fleet store for unit tests and single-process runs.
package fleet

import (
	"context"
	"sort"
	"sync"

	"trackas/internal/geo"
	"trackas/internal/types"
)

type MemStore struct {
	mu        sync.Mutex
	vehicles  map[types.ID]*Vehicle
	operators map[types.ID]*Operator
}

func NewMemStore() *MemStore {
	return &MemStore{
		vehicles:  make(map[types.ID]*Vehicle),
		operators: make(map[types.ID]*Operator),
	}
}

func (s *MemStore) GetVehicle(_ context.Context, id types.ID) (*Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, ErrVehicleNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemStore) GetOperator(_ context.Context, id types.ID) (*Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.operators[id]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemStore) UpsertVehicle(_ context.Context, v *Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.vehicles[v.ID] = &cp
	return nil
}

func (s *MemStore) UpsertOperator(_ context.Context, o *Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.operators[o.ID] = &cp
	return nil
}

func (s *MemStore) CandidatesNear(_ context.Context, p types.Point, radiusKm float64) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Candidate
	for _, v := range s.vehicles {
		if v.Status != VehicleAvailable {
			continue
		}
		op, ok := s.operators[v.Owner.ID]
		if !ok || op.Status != OperatorApproved {
			continue
		}
		if op.Kind == KindIndividual && op.OnTrip {
			continue
		}
		d := geo.DistanceKm(p, v.Location)
		if d > radiusKm {
			continue
		}
		out = append(out, Candidate{
			VehicleID:        v.ID,
			Owner:            v.Owner,
			VehicleClass:     v.Class,
			Location:         v.Location,
			DistanceKm:       d,
			Reliability:      op.Reliability,
			ActiveShipments:  v.ActiveShipments,
			Subscribed:       op.Subscribed,
			SubscriptionTier: op.SubscriptionTier,
		})
	}
	// Nearest first, matching the Redis GEO ASC ordering of the pg store.
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

func (s *MemStore) ClaimVehicle(_ context.Context, id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return false, ErrVehicleNotFound
	}
	if v.Status != VehicleAvailable {
		return false, nil
	}
	v.Status = VehicleBusy
	return true, nil
}

func (s *MemStore) ReleaseVehicle(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return ErrVehicleNotFound
	}
	if v.Status == VehicleBusy {
		v.Status = VehicleAvailable
	}
	return nil
}

func (s *MemStore) UpdateLocation(_ context.Context, vehicleID types.ID, p types.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return ErrVehicleNotFound
	}
	v.Location = p
	return nil
}

func (s *MemStore) SetOperatorOnTrip(_ context.Context, id types.ID, onTrip bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.operators[id]
	if !ok {
		return ErrOperatorNotFound
	}
	o.OnTrip = onTrip
	return nil
}

func (s *MemStore) CreditEarnings(_ context.Context, id types.ID, amount types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.operators[id]
	if !ok {
		return ErrOperatorNotFound
	}
	o.Earnings.Amount += amount.Amount
	if o.Earnings.Currency == "" {
		o.Earnings.Currency = amount.Currency
	}
	return nil
}

func (s *MemStore) IncrementDeliveries(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.operators[id]
	if !ok {
		return ErrOperatorNotFound
	}
	o.CompletedDeliveries++
	return nil
}

func (s *MemStore) AdjustActiveShipments(_ context.Context, vehicleID types.ID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return ErrVehicleNotFound
	}
	v.ActiveShipments += delta
	if v.ActiveShipments < 0 {
		v.ActiveShipments = 0
	}
	return nil
}
