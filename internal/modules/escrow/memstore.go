// README: In-memory escrow store mirroring the Postgres conditional updates.
package escrow

import (
	"context"
	"sync"
	"time"

	"trackas/internal/modules/fleet"
	"trackas/internal/types"
)

type MemStore struct {
	mu      sync.Mutex
	txs     []*Transaction
	configs []*CommissionConfig
}

// NewMemStore seeds the store with a single active commission config at
// defaultPct so CreateEscrow works out of the box.
func NewMemStore(defaultPct float64) *MemStore {
	now := time.Now()
	return &MemStore{
		configs: []*CommissionConfig{{
			ID:        types.NewID(),
			Percent:   defaultPct,
			ValidFrom: now,
			Active:    true,
			CreatedAt: now,
		}},
	}
}

func (s *MemStore) CreateTransaction(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.Status == StatusHeld {
		for _, existing := range s.txs {
			if existing.ShipmentID == tx.ShipmentID && existing.Status == StatusHeld {
				return ErrAlreadyHeld
			}
		}
	}
	cp := *tx
	s.txs = append(s.txs, &cp)
	return nil
}

func (s *MemStore) GetByShipment(_ context.Context, shipmentID types.ID) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].ShipmentID == shipmentID {
			cp := *s.txs[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) GetHeld(_ context.Context, shipmentID types.ID) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx := s.heldLocked(shipmentID); tx != nil {
		cp := *tx
		return &cp, nil
	}
	return nil, ErrNoHeldEscrow
}

func (s *MemStore) UpdateHeldAmounts(_ context.Context, shipmentID types.ID, amount, commission, operatorShare types.Money) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.heldLocked(shipmentID)
	if tx == nil {
		return false, nil
	}
	tx.Amount = amount
	tx.Commission = commission
	tx.OperatorShare = operatorShare
	return true, nil
}

func (s *MemStore) Resolve(_ context.Context, shipmentID types.ID, to Status, recipient *fleet.OperatorRef, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.heldLocked(shipmentID)
	if tx == nil {
		return false, nil
	}
	tx.Status = to
	if recipient != nil {
		r := *recipient
		tx.Recipient = &r
	}
	if reason != "" {
		tx.Reason = reason
	}
	now := time.Now()
	tx.ResolvedAt = &now
	return true, nil
}

func (s *MemStore) ActiveCommission(_ context.Context, now time.Time) (*CommissionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.configs) - 1; i >= 0; i-- {
		cfg := s.configs[i]
		if !cfg.Active {
			continue
		}
		if cfg.ValidFrom.After(now) {
			continue
		}
		if cfg.ValidTo != nil && !cfg.ValidTo.After(now) {
			continue
		}
		cp := *cfg
		return &cp, nil
	}
	return nil, ErrNoActiveConfig
}

func (s *MemStore) RotateCommission(_ context.Context, cfg *CommissionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, old := range s.configs {
		if old.Active {
			old.Active = false
			to := cfg.ValidFrom
			old.ValidTo = &to
		}
	}
	cp := *cfg
	s.configs = append(s.configs, &cp)
	return nil
}

// Configs returns all commission configs, oldest first. Test helper.
func (s *MemStore) Configs() []CommissionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CommissionConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, *c)
	}
	return out
}

func (s *MemStore) heldLocked(shipmentID types.ID) *Transaction {
	for _, tx := range s.txs {
		if tx.ShipmentID == shipmentID && tx.Status == StatusHeld {
			return tx
		}
	}
	return nil
}
