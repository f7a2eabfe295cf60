// README: In-memory shipment store mirroring the Postgres CAS semantics.
package shipment

import (
	"context"
	"sync"
	"time"

	"trackas/internal/types"
)

type MemStore struct {
	mu        sync.Mutex
	shipments map[types.ID]*Shipment
	events    []Event
	nextEvent int64
}

func NewMemStore() *MemStore {
	return &MemStore{shipments: make(map[types.ID]*Shipment)}
}

func (s *MemStore) Create(_ context.Context, sh *Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sh
	s.shipments[sh.ID] = &cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, patch Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[id]
	if !ok {
		return false, nil
	}
	if sh.Status != from || sh.StatusVersion != version {
		return false, nil
	}
	sh.Status = to
	sh.StatusVersion++
	if patch.VehicleID != nil {
		v := *patch.VehicleID
		sh.VehicleID = &v
	}
	if patch.Operator != nil {
		op := *patch.Operator
		sh.Operator = &op
	}
	if patch.FailureReason != nil {
		r := *patch.FailureReason
		sh.FailureReason = &r
	}
	now := time.Now()
	switch to {
	case StatusAssigned:
		sh.AssignedAt = &now
	case StatusPickedUp:
		sh.PickedUpAt = &now
	case StatusInTransit:
		sh.InTransitAt = &now
	case StatusDelivered:
		sh.DeliveredAt = &now
	}
	return true, nil
}

func (s *MemStore) UpdatePrice(_ context.Context, id types.ID, price types.Money, escalations int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shipments[id]
	if !ok {
		return ErrNotFound
	}
	if sh.Status != StatusAssigning {
		return ErrInvalidState
	}
	sh.CurrentPrice = price
	sh.EscalationCount = escalations
	return nil
}

func (s *MemStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvent++
	cp := *e
	cp.ID = s.nextEvent
	s.events = append(s.events, cp)
	return nil
}

// Events returns a copy of the audit log, oldest first. Test helper.
func (s *MemStore) Events(shipmentID types.ID) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.ShipmentID == shipmentID {
			out = append(out, e)
		}
	}
	return out
}
