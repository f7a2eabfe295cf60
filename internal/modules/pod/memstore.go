// README: In-memory proof-of-delivery store.
package pod

import (
	"context"
	"sync"

	"trackas/internal/types"
)

type MemStore struct {
	mu     sync.Mutex
	proofs []*Proof
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Create(_ context.Context, p *Proof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.proofs = append(s.proofs, &cp)
	return nil
}

func (s *MemStore) GetByShipment(_ context.Context, shipmentID types.ID) (*Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.proofs) - 1; i >= 0; i-- {
		if s.proofs[i].ShipmentID == shipmentID {
			cp := *s.proofs[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ListUnverified(_ context.Context, limit int) ([]*Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Proof
	for _, p := range s.proofs {
		if !p.Verified {
			cp := *p
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
