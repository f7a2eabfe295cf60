// README: In-memory assignment store mirroring the Postgres partial uniqueness.
package assignment

import (
	"context"
	"sync"
	"time"

	"trackas/internal/types"
)

type MemStore struct {
	mu          sync.Mutex
	assignments map[types.ID]*Assignment
	order       []types.ID
}

func NewMemStore() *MemStore {
	return &MemStore{assignments: make(map[types.ID]*Assignment)}
}

func (s *MemStore) CreatePending(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		existing := s.assignments[id]
		if existing.Status != StatusPending {
			continue
		}
		if existing.ShipmentID == a.ShipmentID {
			return ErrOfferPending
		}
		if existing.VehicleID == a.VehicleID {
			return ErrVehicleOffered
		}
	}
	cp := *a
	s.assignments[a.ID] = &cp
	s.order = append(s.order, a.ID)
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) Resolve(_ context.Context, id types.ID, to Status, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok || a.Status != StatusPending {
		return false, nil
	}
	a.Status = to
	if reason != "" {
		a.RejectReason = reason
	}
	now := time.Now()
	a.ResolvedAt = &now
	return true, nil
}

func (s *MemStore) PendingByShipment(_ context.Context, shipmentID types.ID) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		a := s.assignments[id]
		if a.ShipmentID == shipmentID && a.Status == StatusPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) RollbackAccepted(_ context.Context, id types.ID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok || a.Status != StatusAccepted {
		return false, nil
	}
	a.Status = StatusRejected
	a.RejectReason = reason
	now := time.Now()
	a.ResolvedAt = &now
	return true, nil
}

func (s *MemStore) OfferedVehicles(_ context.Context, shipmentID types.ID, cycle int) ([]types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ID
	for _, id := range s.order {
		a := s.assignments[id]
		if a.ShipmentID == shipmentID && a.Cycle == cycle {
			out = append(out, a.VehicleID)
		}
	}
	return out, nil
}

func (s *MemStore) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Assignment
	for _, id := range s.order {
		a := s.assignments[id]
		if a.Status == StatusPending && a.Deadline.Before(now) {
			cp := *a
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ByShipment returns all assignments for a shipment in creation order.
// Test helper.
func (s *MemStore) ByShipment(shipmentID types.ID) []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Assignment
	for _, id := range s.order {
		a := s.assignments[id]
		if a.ShipmentID == shipmentID {
			out = append(out, *a)
		}
	}
	return out
}
