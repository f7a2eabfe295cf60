// README: Assignment orchestrator driving the offer→respond→retry→escalate cycle.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trackas/internal/modules/fleet"
	"trackas/internal/modules/scoring"
	"trackas/internal/modules/shipment"
	"trackas/internal/notify"
	"trackas/internal/types"
)

var (
	ErrNotFound        = errors.New("assignment not found")
	ErrAlreadyResolved = errors.New("assignment already resolved")
	ErrDeadlinePassed  = errors.New("assignment deadline passed")
	// ErrOfferPending is returned by the store when a pending assignment
	// already exists for the shipment.
	ErrOfferPending = errors.New("pending assignment exists for shipment")
	// ErrVehicleOffered is returned by the store when the vehicle already has
	// a pending offer from another shipment.
	ErrVehicleOffered = errors.New("vehicle has a pending offer")
)

const (
	failureNoOperators = "no operators available"
	reasonCancelled    = "shipment cancelled"
	reasonShipmentGone = "shipment no longer open"
)

// Store is the persistence contract for assignments. CreatePending must be
// atomic against concurrent attempts for the same shipment.
type Store interface {
	CreatePending(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id types.ID) (*Assignment, error)
	// Resolve moves a pending assignment to a terminal status. Returns false
	// without error when the assignment was no longer pending.
	Resolve(ctx context.Context, id types.ID, to Status, reason string) (bool, error)
	// PendingByShipment returns the open offer for a shipment, or ErrNotFound
	// when none is pending.
	PendingByShipment(ctx context.Context, shipmentID types.ID) (*Assignment, error)
	// RollbackAccepted reverses an accepted resolution whose side effects
	// could not be applied, recording it as rejected. Returns false when the
	// assignment is not accepted.
	RollbackAccepted(ctx context.Context, id types.ID, reason string) (bool, error)
	// OfferedVehicles lists vehicles already offered for (shipment, cycle),
	// regardless of how those offers resolved.
	OfferedVehicles(ctx context.Context, shipmentID types.ID, cycle int) ([]types.ID, error)
	// ListExpiredPending returns pending assignments whose deadline is before
	// now. Used by the sweeper to catch timers lost to a restart.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Assignment, error)
}

// Escrow is the slice of the escrow ledger the orchestrator drives.
type Escrow interface {
	Escalate(ctx context.Context, shipmentID types.ID, newPrice types.Money) error
	Refund(ctx context.Context, shipmentID types.ID, reason string) error
}

type Config struct {
	// MaxRetries is the number of full candidate sweeps before the shipment
	// fails permanently.
	MaxRetries     int
	CandidateLimit int
	RadiusKm       float64
	// ResponseTimeout is how long an operator has to answer an offer.
	ResponseTimeout time.Duration
	// RetryBackoff is the fixed delay before re-sweeping after an empty cycle.
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		CandidateLimit:  scoring.DefaultLimit,
		RadiusKm:        scoring.MaxRadiusKm,
		ResponseTimeout: 120 * time.Second,
		RetryBackoff:    3 * time.Second,
	}
}

type Service struct {
	store     Store
	shipments *shipment.Service
	fleet     *fleet.Service
	escrow    Escrow
	notify    notify.Sender
	timers    *timerRegistry
	cfg       Config
	log       *zap.Logger
}

func NewService(store Store, shipments *shipment.Service, fleetSvc *fleet.Service, escrowSvc Escrow, sender notify.Sender, cfg Config, log *zap.Logger) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = scoring.DefaultLimit
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = scoring.MaxRadiusKm
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 120 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 3 * time.Second
	}
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
		notify:    sender,
		timers:    newTimerRegistry(),
		cfg:       cfg,
		log:       log,
	}
}

// Close cancels all in-flight timers. Pending assignments survive in the
// store; the sweeper job resumes them after restart.
func (s *Service) Close() {
	s.timers.close()
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	return s.store.Get(ctx, id)
}

// Initiate claims a pending shipment for orchestration and runs the first
// candidate sweep. A missing shipment fails fast with no retry; a shipment
// already claimed by a concurrent initiator returns the shipment conflict.
func (s *Service) Initiate(ctx context.Context, shipmentID types.ID) error {
	if _, err := s.shipments.Get(ctx, shipmentID); err != nil {
		return err
	}
	if err := s.shipments.BeginAssigning(ctx, shipmentID); err != nil {
		return err
	}
	return s.runCycle(ctx, shipmentID, 1)
}

// runCycle performs one candidate sweep at the given cycle number.
func (s *Service) runCycle(ctx context.Context, shipmentID types.ID, cycle int) error {
	if cycle > s.cfg.MaxRetries {
		return s.failShipment(ctx, shipmentID)
	}

	sh, err := s.shipments.Get(ctx, shipmentID)
	if err != nil {
		return err
	}
	if sh.Status != shipment.StatusAssigning {
		// Resolved elsewhere (accepted or cancelled) while a retry was queued.
		return nil
	}

	pool, err := s.fleet.CandidatesNear(ctx, sh.Pickup, s.cfg.RadiusKm)
	if err != nil {
		return err
	}
	ranked := scoring.Rank(scoring.Request{
		Pickup:        sh.Pickup,
		RequiredClass: sh.VehicleClass,
		Urgency:       sh.Urgency,
	}, pool, s.cfg.CandidateLimit)

	offered, err := s.store.OfferedVehicles(ctx, shipmentID, cycle)
	if err != nil {
		return err
	}
	skip := make(map[types.ID]bool, len(offered))
	for _, v := range offered {
		skip[v] = true
	}

	for _, r := range ranked {
		if skip[r.Candidate.VehicleID] {
			continue
		}
		a := &Assignment{
			ID:         types.NewID(),
			ShipmentID: shipmentID,
			VehicleID:  r.Candidate.VehicleID,
			Operator:   r.Candidate.Owner,
			Cycle:      cycle,
			Score:      r.Score,
			Status:     StatusPending,
			Deadline:   time.Now().Add(s.cfg.ResponseTimeout),
			CreatedAt:  time.Now(),
		}
		err := s.store.CreatePending(ctx, a)
		switch {
		case err == nil:
			s.startResponseTimer(a)
			s.notifyOffer(ctx, sh, a)
			s.log.Info("assignment offered",
				zap.String("shipment_id", string(shipmentID)),
				zap.String("vehicle_id", string(a.VehicleID)),
				zap.Int("cycle", cycle),
				zap.Float64("score", a.Score))
			return nil
		case errors.Is(err, ErrOfferPending):
			// Another orchestration path holds the offer; the invariant wins.
			return nil
		case errors.Is(err, ErrVehicleOffered):
			continue
		default:
			return err
		}
	}

	// Zero usable candidates this sweep.
	if cycle < s.cfg.MaxRetries {
		s.escalatePrice(ctx, shipmentID, cycle)
		s.scheduleRetry(shipmentID, cycle+1)
		return nil
	}
	return s.failShipment(ctx, shipmentID)
}

// Accept binds the shipment to the offered vehicle. Valid only while the
// assignment is pending and before its deadline; a second resolution reports
// ErrAlreadyResolved and mutates nothing.
func (s *Service) Accept(ctx context.Context, assignmentID types.ID) error {
	a, err := s.store.Get(ctx, assignmentID)
	if err != nil {
		return err
	}
	if a.Status != StatusPending {
		return ErrAlreadyResolved
	}
	if time.Now().After(a.Deadline) {
		return ErrDeadlinePassed
	}

	// Claim the vehicle first: the availability CAS is the atomic boundary
	// that stops two shipments binding the same vehicle.
	if err := s.fleet.BindToTrip(ctx, a.VehicleID, a.Operator); err != nil {
		if errors.Is(err, fleet.ErrVehicleClaimed) {
			// Vehicle got bound elsewhere between offer and accept; fold this
			// offer into the reject path and re-solicit at the same cycle.
			if ok, rerr := s.store.Resolve(ctx, a.ID, StatusRejected, "vehicle unavailable"); rerr == nil && ok {
				s.timers.cancel(timerKey(a.ID))
				s.resumeCycleAsync(a.ShipmentID, a.Cycle)
			}
			return fmt.Errorf("accept assignment: %w", err)
		}
		return err
	}

	// The shipment must still be open for offers. A shipper cancellation
	// while the offer was out withdraws it; the vehicle goes back to the
	// pool untouched.
	sh, err := s.shipments.Get(ctx, a.ShipmentID)
	if err != nil {
		_ = s.fleet.ReleaseFromTrip(ctx, a.VehicleID, a.Operator)
		return err
	}
	if sh.Status != shipment.StatusAssigning {
		_ = s.fleet.ReleaseFromTrip(ctx, a.VehicleID, a.Operator)
		if ok, rerr := s.store.Resolve(ctx, a.ID, StatusRejected, reasonShipmentGone); rerr == nil && ok {
			s.timers.cancel(timerKey(a.ID))
		}
		return shipment.ErrInvalidState
	}

	ok, err := s.store.Resolve(ctx, a.ID, StatusAccepted, "")
	if err != nil {
		_ = s.fleet.ReleaseFromTrip(ctx, a.VehicleID, a.Operator)
		return err
	}
	if !ok {
		// Lost the race against the timeout timer; undo the vehicle claim.
		_ = s.fleet.ReleaseFromTrip(ctx, a.VehicleID, a.Operator)
		return ErrAlreadyResolved
	}
	s.timers.cancel(timerKey(a.ID))

	if err := s.shipments.Bind(ctx, a.ShipmentID, a.VehicleID, a.Operator); err != nil {
		// Cancellation slipped in between the status check and the bind.
		// Undo both sides so the accept collapses to a no-op failure.
		_ = s.fleet.ReleaseFromTrip(ctx, a.VehicleID, a.Operator)
		if _, rerr := s.store.RollbackAccepted(ctx, a.ID, reasonShipmentGone); rerr != nil {
			s.log.Warn("accept rollback failed",
				zap.String("assignment_id", string(a.ID)), zap.Error(rerr))
		}
		return err
	}

	if sh, err := s.shipments.Get(ctx, a.ShipmentID); err == nil {
		_ = s.notify.Send(ctx, notify.Event{
			Type:       notify.EventOfferAccepted,
			Audience:   notify.AudienceShipper,
			TargetID:   sh.ShipperID,
			ShipmentID: sh.ID,
			Payload:    map[string]any{"vehicle_id": a.VehicleID},
		})
	}
	s.log.Info("assignment accepted",
		zap.String("shipment_id", string(a.ShipmentID)),
		zap.String("vehicle_id", string(a.VehicleID)),
		zap.Int("cycle", a.Cycle))
	return nil
}

// Reject records an explicit operator rejection and immediately re-solicits
// at the same cycle number. Rejects do not advance the cycle counter; only
// timeouts do.
func (s *Service) Reject(ctx context.Context, assignmentID types.ID, reason string) error {
	a, err := s.store.Get(ctx, assignmentID)
	if err != nil {
		return err
	}
	if a.Status != StatusPending {
		return ErrAlreadyResolved
	}

	ok, err := s.store.Resolve(ctx, a.ID, StatusRejected, reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyResolved
	}
	s.timers.cancel(timerKey(a.ID))

	sh, err := s.shipments.Get(ctx, a.ShipmentID)
	if err == nil {
		_ = s.notify.Send(ctx, notify.Event{
			Type:       notify.EventOfferRejected,
			Audience:   notify.AudienceShipper,
			TargetID:   sh.ShipperID,
			ShipmentID: sh.ID,
			Payload:    map[string]any{"reason": reason},
		})
	}
	s.log.Info("assignment rejected",
		zap.String("shipment_id", string(a.ShipmentID)),
		zap.String("vehicle_id", string(a.VehicleID)),
		zap.Int("cycle", a.Cycle),
		zap.String("reason", reason))

	return s.runCycle(ctx, a.ShipmentID, a.Cycle)
}

// Cancel ends a shipment at the shipper's request. Any open offer is
// withdrawn with its timers, and the held escrow returns to the shipper.
func (s *Service) Cancel(ctx context.Context, shipmentID types.ID, actorType string, actorID *types.ID) error {
	if err := s.shipments.Cancel(ctx, shipmentID, actorType, actorID); err != nil {
		return err
	}
	s.timers.cancel(retryKey(shipmentID))

	a, err := s.store.PendingByShipment(ctx, shipmentID)
	switch {
	case err == nil:
		if ok, rerr := s.store.Resolve(ctx, a.ID, StatusRejected, reasonCancelled); rerr == nil && ok {
			s.timers.cancel(timerKey(a.ID))
		}
	case !errors.Is(err, ErrNotFound):
		s.log.Warn("cancel offer lookup failed",
			zap.String("shipment_id", string(shipmentID)), zap.Error(err))
	}

	if err := s.escrow.Refund(ctx, shipmentID, reasonCancelled); err != nil {
		s.log.Warn("refund on cancel",
			zap.String("shipment_id", string(shipmentID)), zap.Error(err))
	}
	s.log.Info("shipment cancelled", zap.String("shipment_id", string(shipmentID)))
	return nil
}

// ExpireOverdue times out pending assignments whose deadline has passed.
// The in-process timers normally get there first; this is the sweeper's
// entry point for offers orphaned by a restart.
func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	overdue, err := s.store.ListExpiredPending(ctx, time.Now(), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, a := range overdue {
		if s.expireAssignment(ctx, a) {
			expired++
		}
	}
	return expired, nil
}

// expireAssignment resolves a pending assignment as timed out and advances
// the cycle. Returns false when someone else resolved it first.
func (s *Service) expireAssignment(ctx context.Context, a *Assignment) bool {
	ok, err := s.store.Resolve(ctx, a.ID, StatusTimeout, "")
	if err != nil {
		s.log.Warn("timeout resolve failed", zap.String("assignment_id", string(a.ID)), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	s.timers.cancel(timerKey(a.ID))
	s.log.Info("assignment timed out",
		zap.String("shipment_id", string(a.ShipmentID)),
		zap.String("vehicle_id", string(a.VehicleID)),
		zap.Int("cycle", a.Cycle))

	// A timeout ends the sweep: escalate, then advance the cycle counter.
	s.escalatePrice(ctx, a.ShipmentID, a.Cycle)
	if err := s.runCycle(ctx, a.ShipmentID, a.Cycle+1); err != nil {
		s.log.Warn("cycle after timeout failed",
			zap.String("shipment_id", string(a.ShipmentID)), zap.Error(err))
	}
	return true
}

func (s *Service) startResponseTimer(a *Assignment) {
	id := a.ID
	s.timers.schedule(timerKey(id), time.Until(a.Deadline), func() {
		ctx := context.Background()
		current, err := s.store.Get(ctx, id)
		if err != nil {
			s.log.Warn("timer load failed", zap.String("assignment_id", string(id)), zap.Error(err))
			return
		}
		if current.Status != StatusPending {
			return
		}
		s.expireAssignment(ctx, current)
	})
}

// escalatePrice applies the step increase for the failed cycle and pushes the
// new price into the held escrow. Cycle 3 and beyond never escalate.
func (s *Service) escalatePrice(ctx context.Context, shipmentID types.ID, failedCycle int) {
	factor := escalationFactor(failedCycle)
	if factor == 1.0 {
		return
	}
	sh, err := s.shipments.Get(ctx, shipmentID)
	if err != nil {
		s.log.Warn("escalation load failed", zap.String("shipment_id", string(shipmentID)), zap.Error(err))
		return
	}
	if sh.Status != shipment.StatusAssigning {
		// The price freezes once the shipment leaves assigning; a late
		// timeout on a cancelled shipment must not rewrite it.
		return
	}
	newPrice := sh.CurrentPrice.Scale(factor)
	if err := s.shipments.EscalatePrice(ctx, shipmentID, newPrice, sh.EscalationCount+1); err != nil {
		s.log.Warn("price escalation failed", zap.String("shipment_id", string(shipmentID)), zap.Error(err))
		return
	}
	if err := s.escrow.Escalate(ctx, shipmentID, newPrice); err != nil {
		s.log.Warn("escrow escalation failed", zap.String("shipment_id", string(shipmentID)), zap.Error(err))
	}
	_ = s.notify.Send(ctx, notify.Event{
		Type:       notify.EventPriceEscalated,
		Audience:   notify.AudienceShipper,
		TargetID:   sh.ShipperID,
		ShipmentID: shipmentID,
		Payload: map[string]any{
			"old_price": sh.CurrentPrice.Amount,
			"new_price": newPrice.Amount,
			"cycle":     failedCycle,
		},
	})
	s.log.Info("price escalated",
		zap.String("shipment_id", string(shipmentID)),
		zap.Int("failed_cycle", failedCycle),
		zap.Int64("new_price", newPrice.Amount))
}

// failShipment is the single path that permanently abandons a shipment.
func (s *Service) failShipment(ctx context.Context, shipmentID types.ID) error {
	if err := s.shipments.Fail(ctx, shipmentID, failureNoOperators); err != nil {
		return err
	}
	if err := s.escrow.Refund(ctx, shipmentID, failureNoOperators); err != nil {
		s.log.Warn("refund on failure", zap.String("shipment_id", string(shipmentID)), zap.Error(err))
	}
	if sh, err := s.shipments.Get(ctx, shipmentID); err == nil {
		_ = s.notify.Send(ctx, notify.Event{
			Type:       notify.EventShipmentFailed,
			Audience:   notify.AudienceShipper,
			TargetID:   sh.ShipperID,
			ShipmentID: shipmentID,
			Payload:    map[string]any{"reason": failureNoOperators},
		})
	}
	s.log.Info("shipment failed", zap.String("shipment_id", string(shipmentID)))
	return nil
}

func (s *Service) scheduleRetry(shipmentID types.ID, cycle int) {
	s.timers.schedule(retryKey(shipmentID), s.cfg.RetryBackoff, func() {
		if err := s.runCycle(context.Background(), shipmentID, cycle); err != nil {
			s.log.Warn("retry cycle failed",
				zap.String("shipment_id", string(shipmentID)),
				zap.Int("cycle", cycle),
				zap.Error(err))
		}
	})
}

func (s *Service) resumeCycleAsync(shipmentID types.ID, cycle int) {
	go func() {
		if err := s.runCycle(context.Background(), shipmentID, cycle); err != nil {
			s.log.Warn("resume cycle failed",
				zap.String("shipment_id", string(shipmentID)),
				zap.Int("cycle", cycle),
				zap.Error(err))
		}
	}()
}

func (s *Service) notifyOffer(ctx context.Context, sh *shipment.Shipment, a *Assignment) {
	audience := notify.AudienceOperator
	if a.Operator.Kind == fleet.KindFleet {
		audience = notify.AudienceFleet
	}
	_ = s.notify.Send(ctx, notify.Event{
		Type:       notify.EventOfferCreated,
		Audience:   audience,
		TargetID:   a.Operator.ID,
		ShipmentID: sh.ID,
		Payload: map[string]any{
			"assignment_id": a.ID,
			"vehicle_id":    a.VehicleID,
			"price":         sh.CurrentPrice.Amount,
			"deadline":      a.Deadline,
		},
	})
}

func escalationFactor(cycle int) float64 {
	switch cycle {
	case 1:
		return 1.10
	case 2:
		return 1.20
	default:
		return 1.0
	}
}

func timerKey(assignmentID types.ID) string { return "assignment:" + string(assignmentID) }
func retryKey(shipmentID types.ID) string   { return "retry:" + string(shipmentID) }
