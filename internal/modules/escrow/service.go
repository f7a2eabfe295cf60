// README: Escrow service holds, escalates, releases, and refunds shipment funds.
package escrow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"trackas/internal/modules/fleet"
	"trackas/internal/modules/shipment"
	"trackas/internal/types"
)

var (
	ErrNotFound       = errors.New("escrow not found")
	ErrNoHeldEscrow   = errors.New("no held escrow for shipment")
	ErrAlreadyHeld    = errors.New("escrow already held for shipment")
	ErrNotDelivered   = errors.New("shipment not delivered")
	ErrNotAssigned    = errors.New("shipment has no bound operator")
	ErrInvalidPercent = errors.New("commission percent out of range")
	ErrNoActiveConfig = errors.New("no active commission config")
)

// Store is the persistence contract for escrow transactions and commission
// configs. Resolve is a compare-and-swap on status=held; exactly one of
// several racing resolvers observes ok=true.
type Store interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetByShipment(ctx context.Context, shipmentID types.ID) (*Transaction, error)
	// GetHeld returns the held transaction for a shipment, or ErrNoHeldEscrow.
	GetHeld(ctx context.Context, shipmentID types.ID) (*Transaction, error)
	// UpdateHeldAmounts rewrites the money split of a held transaction.
	// Returns false without error when no held transaction exists.
	UpdateHeldAmounts(ctx context.Context, shipmentID types.ID, amount, commission, operatorShare types.Money) (bool, error)
	// Resolve moves the held transaction to a terminal status.
	Resolve(ctx context.Context, shipmentID types.ID, to Status, recipient *fleet.OperatorRef, reason string) (bool, error)

	ActiveCommission(ctx context.Context, now time.Time) (*CommissionConfig, error)
	// RotateCommission deactivates the active config and inserts a new one.
	RotateCommission(ctx context.Context, cfg *CommissionConfig) error
}

// Shipments is the slice of the shipment service the ledger needs.
type Shipments interface {
	Get(ctx context.Context, id types.ID) (*shipment.Shipment, error)
	SettlePayment(ctx context.Context, id types.ID) error
}

// Operators receives earnings credits on release.
type Operators interface {
	CreditEarnings(ctx context.Context, operatorID types.ID, amount types.Money) error
}

type Service struct {
	store     Store
	shipments Shipments
	operators Operators
	log       *zap.Logger
}

func NewService(store Store, shipments Shipments, operators Operators, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, shipments: shipments, operators: operators, log: log}
}

// CreateEscrow opens a held transaction for the shipment at the given amount,
// split according to the currently active commission config. At most one held
// transaction may exist per shipment.
func (s *Service) CreateEscrow(ctx context.Context, shipmentID types.ID, amount types.Money) (*Transaction, error) {
	cfg, err := s.store.ActiveCommission(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	commission, operatorShare := Split(amount, cfg.Percent)

	tx := &Transaction{
		ID:            types.NewID(),
		ShipmentID:    shipmentID,
		Amount:        amount,
		Commission:    commission,
		OperatorShare: operatorShare,
		Status:        StatusHeld,
		HeldAt:        time.Now(),
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	s.log.Info("escrow held",
		zap.String("shipment_id", string(shipmentID)),
		zap.Int64("amount", amount.Amount),
		zap.Float64("commission_pct", cfg.Percent))
	return tx, nil
}

// Escalate recomputes the money split of the held transaction at the new
// price using the currently active commission config. Silently a no-op when
// no held transaction exists.
func (s *Service) Escalate(ctx context.Context, shipmentID types.ID, newPrice types.Money) error {
	cfg, err := s.store.ActiveCommission(ctx, time.Now())
	if err != nil {
		return err
	}
	commission, operatorShare := Split(newPrice, cfg.Percent)
	ok, err := s.store.UpdateHeldAmounts(ctx, shipmentID, newPrice, commission, operatorShare)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("escalate skipped, no held escrow", zap.String("shipment_id", string(shipmentID)))
	}
	return nil
}

// Release pays the held funds out to the shipment's bound operator. The
// shipment must already be delivered. A second release reports
// ErrNoHeldEscrow and mutates nothing.
func (s *Service) Release(ctx context.Context, shipmentID types.ID) error {
	sh, err := s.shipments.Get(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh.Status != shipment.StatusDelivered {
		return ErrNotDelivered
	}
	if sh.Operator == nil {
		return ErrNotAssigned
	}

	held, err := s.store.GetHeld(ctx, shipmentID)
	if err != nil {
		return err
	}

	recipient := *sh.Operator
	ok, err := s.store.Resolve(ctx, shipmentID, StatusReleased, &recipient, "")
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoHeldEscrow
	}

	if err := s.operators.CreditEarnings(ctx, recipient.ID, held.OperatorShare); err != nil {
		return err
	}
	if err := s.shipments.SettlePayment(ctx, shipmentID); err != nil {
		return err
	}
	s.log.Info("escrow released",
		zap.String("shipment_id", string(shipmentID)),
		zap.String("recipient_kind", string(recipient.Kind)),
		zap.String("recipient_id", string(recipient.ID)),
		zap.Int64("operator_share", held.OperatorShare.Amount))
	return nil
}

// Refund returns the held funds to the shipper side. No recipient is
// credited. A second refund (or a refund after release) reports
// ErrNoHeldEscrow and mutates nothing.
func (s *Service) Refund(ctx context.Context, shipmentID types.ID, reason string) error {
	ok, err := s.store.Resolve(ctx, shipmentID, StatusRefunded, nil, reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoHeldEscrow
	}
	s.log.Info("escrow refunded",
		zap.String("shipment_id", string(shipmentID)),
		zap.String("reason", reason))
	return nil
}

func (s *Service) Transaction(ctx context.Context, shipmentID types.ID) (*Transaction, error) {
	return s.store.GetByShipment(ctx, shipmentID)
}

func (s *Service) ActiveCommission(ctx context.Context) (*CommissionConfig, error) {
	return s.store.ActiveCommission(ctx, time.Now())
}

// UpdateCommission rotates the active commission config to pct. The previous
// config is closed, not mutated.
func (s *Service) UpdateCommission(ctx context.Context, pct float64) (*CommissionConfig, error) {
	if pct < 0 || pct > 10 {
		return nil, ErrInvalidPercent
	}
	now := time.Now()
	cfg := &CommissionConfig{
		ID:        types.NewID(),
		Percent:   pct,
		ValidFrom: now,
		Active:    true,
		CreatedAt: now,
	}
	if err := s.store.RotateCommission(ctx, cfg); err != nil {
		return nil, err
	}
	s.log.Info("commission config rotated", zap.Float64("percent", pct))
	return cfg, nil
}
