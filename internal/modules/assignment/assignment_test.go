// README: Orchestrator tests: offer flow, retries, escalation, exhaustion, and races (run with -race).
package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trackas/internal/modules/escrow"
	"trackas/internal/modules/fleet"
	"trackas/internal/modules/shipment"
	"trackas/internal/notify"
	"trackas/internal/types"
)

// pickup is the fixed shipment origin; vehicle seeds offset from it.
var pickup = types.Point{Lat: 19.0760, Lng: 72.8777}

type env struct {
	svc       *Service
	store     *MemStore
	shipments *shipment.Service
	fleet     *fleet.Service
	escrow    *escrow.Service
	rec       *notify.Recorder
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	fleetSvc := fleet.NewService(fleet.NewMemStore())
	shipSvc := shipment.NewService(shipment.NewMemStore())
	escrowSvc := escrow.NewService(escrow.NewMemStore(5.0), shipSvc, fleetSvc, nil)
	store := NewMemStore()
	rec := notify.NewRecorder()
	svc := NewService(store, shipSvc, fleetSvc, escrowSvc, rec, cfg, nil)
	t.Cleanup(svc.Close)
	return &env{
		svc:       svc,
		store:     store,
		shipments: shipSvc,
		fleet:     fleetSvc,
		escrow:    escrowSvc,
		rec:       rec,
	}
}

// quickConfig keeps offer deadlines and retry backoffs in the millisecond
// range so timer-driven paths finish within a test run.
func quickConfig() Config {
	return Config{
		MaxRetries:      3,
		CandidateLimit:  5,
		RadiusKm:        50,
		ResponseTimeout: 40 * time.Millisecond,
		RetryBackoff:    10 * time.Millisecond,
	}
}

// patientConfig never times out on its own; tests drive every resolution.
func patientConfig() Config {
	cfg := quickConfig()
	cfg.ResponseTimeout = time.Hour
	cfg.RetryBackoff = time.Hour
	return cfg
}

func (e *env) seedVehicle(t *testing.T, vehicleID, operatorID types.ID, kind fleet.OperatorKind, latOffset float64) {
	t.Helper()
	ctx := context.Background()
	if err := e.fleet.RegisterOperator(ctx, &fleet.Operator{
		ID:          operatorID,
		Kind:        kind,
		Status:      fleet.OperatorApproved,
		Reliability: 90,
	}); err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	if err := e.fleet.RegisterVehicle(ctx, &fleet.Vehicle{
		ID:       vehicleID,
		VCode:    "V-" + string(vehicleID),
		Owner:    fleet.OperatorRef{Kind: kind, ID: operatorID},
		Class:    "light_truck",
		Status:   fleet.VehicleAvailable,
		Location: types.Point{Lat: pickup.Lat + latOffset, Lng: pickup.Lng},
	}); err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
}

func (e *env) newShipment(t *testing.T) types.ID {
	t.Helper()
	ctx := context.Background()
	id, err := e.shipments.Create(ctx, shipment.CreateCommand{
		ShipperID:    "shipper1",
		Pickup:       pickup,
		Destination:  types.Point{Lat: 18.5204, Lng: 73.8567},
		VehicleClass: "light_truck",
		BasePrice:    types.Money{Amount: 1000, Currency: "INR"},
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	if _, err := e.escrow.CreateEscrow(ctx, id, types.Money{Amount: 1000, Currency: "INR"}); err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	return id
}

func (e *env) pendingAssignment(t *testing.T, shipmentID types.ID) Assignment {
	t.Helper()
	for _, a := range e.store.ByShipment(shipmentID) {
		if a.Status == StatusPending {
			return a
		}
	}
	t.Fatal("no pending assignment")
	return Assignment{}
}

// waitFor polls cond until it holds or the deadline lapses.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestInitiateOffersNearestCandidate(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v_near", "op_near", fleet.KindIndividual, 0.001)
	e.seedVehicle(t, "v_far", "op_far", fleet.KindIndividual, 0.2)
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	sh, _ := e.shipments.Get(ctx, id)
	if sh.Status != shipment.StatusAssigning {
		t.Fatalf("shipment status = %s, want assigning", sh.Status)
	}

	a := e.pendingAssignment(t, id)
	if a.VehicleID != "v_near" {
		t.Fatalf("offered vehicle = %s, want v_near", a.VehicleID)
	}
	if a.Cycle != 1 {
		t.Fatalf("cycle = %d, want 1", a.Cycle)
	}
	if time.Until(a.Deadline) <= 0 {
		t.Fatal("deadline not in the future")
	}

	events := e.rec.Events()
	if len(events) == 0 || events[0].Type != notify.EventOfferCreated {
		t.Fatalf("offer notification missing, events = %v", events)
	}
	if events[0].TargetID != "op_near" || events[0].Audience != notify.AudienceOperator {
		t.Fatalf("offer routed to %s/%s", events[0].Audience, events[0].TargetID)
	}
}

func TestInitiateMissingShipment(t *testing.T) {
	e := newEnv(t, patientConfig())
	if err := e.svc.Initiate(context.Background(), "nope"); !errors.Is(err, shipment.ErrNotFound) {
		t.Fatalf("got %v, want shipment.ErrNotFound", err)
	}
}

func TestAcceptBindsShipmentAndVehicle(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	a := e.pendingAssignment(t, id)

	if err := e.svc.Accept(ctx, a.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	sh, _ := e.shipments.Get(ctx, id)
	if sh.Status != shipment.StatusAssigned {
		t.Fatalf("shipment status = %s, want assigned", sh.Status)
	}
	if sh.VehicleID == nil || *sh.VehicleID != "v1" {
		t.Fatal("vehicle not bound to shipment")
	}
	if sh.Operator == nil || sh.Operator.ID != "op1" {
		t.Fatal("operator not bound to shipment")
	}

	v, _ := e.fleet.Vehicle(ctx, "v1")
	if v.Status != fleet.VehicleBusy {
		t.Fatalf("vehicle status = %s, want busy", v.Status)
	}
	op, _ := e.fleet.Operator(ctx, "op1")
	if !op.OnTrip {
		t.Fatal("individual operator not marked on-trip")
	}

	// A second response to the same offer mutates nothing.
	if err := e.svc.Accept(ctx, a.ID); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("double accept: got %v, want ErrAlreadyResolved", err)
	}
	if err := e.svc.Reject(ctx, a.ID, "late"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("reject after accept: got %v, want ErrAlreadyResolved", err)
	}
}

func TestAcceptAfterDeadline(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	id := e.newShipment(t)
	if err := e.shipments.BeginAssigning(ctx, id); err != nil {
		t.Fatalf("begin assigning: %v", err)
	}

	// Plant an already-expired pending offer, bypassing the timers.
	a := &Assignment{
		ID:         types.NewID(),
		ShipmentID: id,
		VehicleID:  "v1",
		Operator:   fleet.OperatorRef{Kind: fleet.KindIndividual, ID: "op1"},
		Cycle:      1,
		Status:     StatusPending,
		Deadline:   time.Now().Add(-time.Minute),
		CreatedAt:  time.Now().Add(-2 * time.Minute),
	}
	if err := e.store.CreatePending(ctx, a); err != nil {
		t.Fatalf("plant assignment: %v", err)
	}

	if err := e.svc.Accept(ctx, a.ID); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("got %v, want ErrDeadlinePassed", err)
	}
	v, _ := e.fleet.Vehicle(ctx, "v1")
	if v.Status != fleet.VehicleAvailable {
		t.Fatal("late accept claimed the vehicle")
	}
}

func TestRejectReoffersNextCandidateSameCycle(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v_near", "op_near", fleet.KindIndividual, 0.001)
	e.seedVehicle(t, "v_far", "op_far", fleet.KindIndividual, 0.2)
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	first := e.pendingAssignment(t, id)
	if first.VehicleID != "v_near" {
		t.Fatalf("first offer = %s, want v_near", first.VehicleID)
	}

	if err := e.svc.Reject(ctx, first.ID, "busy elsewhere"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	second := e.pendingAssignment(t, id)
	if second.VehicleID != "v_far" {
		t.Fatalf("second offer = %s, want v_far", second.VehicleID)
	}
	if second.Cycle != 1 {
		t.Fatalf("reject advanced cycle to %d", second.Cycle)
	}

	// An explicit reject never escalates the price.
	sh, _ := e.shipments.Get(ctx, id)
	if sh.CurrentPrice.Amount != 1000 {
		t.Fatalf("price after reject = %d, want 1000", sh.CurrentPrice.Amount)
	}

	rejected, _ := e.svc.Get(ctx, first.ID)
	if rejected.Status != StatusRejected || rejected.RejectReason != "busy elsewhere" {
		t.Fatalf("first offer = %s %q", rejected.Status, rejected.RejectReason)
	}
}

func TestRejectLastCandidateEscalatesAndRetries(t *testing.T) {
	e := newEnv(t, quickConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	first := e.pendingAssignment(t, id)
	if err := e.svc.Reject(ctx, first.ID, "no thanks"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Cycle 1 is exhausted: price steps up and a cycle-2 sweep re-offers the
	// same vehicle after the backoff.
	waitFor(t, time.Second, func() bool {
		for _, a := range e.store.ByShipment(id) {
			if a.Status == StatusPending && a.Cycle == 2 {
				return true
			}
		}
		return false
	})

	sh, _ := e.shipments.Get(ctx, id)
	if sh.CurrentPrice.Amount != 1100 {
		t.Fatalf("price = %d, want 1100", sh.CurrentPrice.Amount)
	}
	if sh.EscalationCount != 1 {
		t.Fatalf("escalations = %d, want 1", sh.EscalationCount)
	}

	tx, _ := e.escrow.Transaction(ctx, id)
	if tx.Amount.Amount != 1100 {
		t.Fatalf("escrow amount = %d, want 1100", tx.Amount.Amount)
	}
}

func TestTimeoutAdvancesCycle(t *testing.T) {
	e := newEnv(t, quickConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	first := e.pendingAssignment(t, id)

	// Let the response timer lapse.
	waitFor(t, time.Second, func() bool {
		a, err := e.svc.Get(ctx, first.ID)
		return err == nil && a.Status == StatusTimeout
	})
	waitFor(t, time.Second, func() bool {
		for _, a := range e.store.ByShipment(id) {
			if a.Status == StatusPending && a.Cycle == 2 {
				return true
			}
		}
		return false
	})

	sh, _ := e.shipments.Get(ctx, id)
	if sh.CurrentPrice.Amount != 1100 {
		t.Fatalf("price after first timeout = %d, want 1100", sh.CurrentPrice.Amount)
	}
	if sh.Status != shipment.StatusAssigning {
		t.Fatalf("shipment status = %s, want assigning", sh.Status)
	}
}

func TestExhaustionFailsShipmentAndRefunds(t *testing.T) {
	// No vehicles at all: every sweep comes up empty.
	e := newEnv(t, quickConfig())
	ctx := context.Background()
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		sh, err := e.shipments.Get(ctx, id)
		return err == nil && sh.Status == shipment.StatusFailed
	})

	sh, _ := e.shipments.Get(ctx, id)
	if sh.FailureReason == nil || *sh.FailureReason != "no operators available" {
		t.Fatalf("failure reason = %v", sh.FailureReason)
	}
	// Two escalations before the final sweep: 1000 → 1100 → 1320.
	if sh.CurrentPrice.Amount != 1320 {
		t.Fatalf("final price = %d, want 1320", sh.CurrentPrice.Amount)
	}
	if sh.EscalationCount != 2 {
		t.Fatalf("escalations = %d, want 2", sh.EscalationCount)
	}

	tx, err := e.escrow.Transaction(ctx, id)
	if err != nil {
		t.Fatalf("get escrow: %v", err)
	}
	if tx.Status != escrow.StatusRefunded {
		t.Fatalf("escrow status = %s, want refunded", tx.Status)
	}
	if tx.Reason != "no operators available" {
		t.Fatalf("refund reason = %q", tx.Reason)
	}

	failed := false
	for _, ev := range e.rec.Events() {
		if ev.Type == notify.EventShipmentFailed {
			failed = true
		}
	}
	if !failed {
		t.Fatal("shipper never notified of failure")
	}
}

func TestCycleSkipsAlreadyOfferedVehicles(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	e.seedVehicle(t, "v2", "op2", fleet.KindIndividual, 0.002)
	e.seedVehicle(t, "v3", "op3", fleet.KindIndividual, 0.003)
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	seen := map[types.ID]bool{}
	for i := 0; i < 3; i++ {
		a := e.pendingAssignment(t, id)
		if seen[a.VehicleID] {
			t.Fatalf("vehicle %s offered twice within one cycle", a.VehicleID)
		}
		seen[a.VehicleID] = true
		if a.Cycle != 1 {
			t.Fatalf("cycle = %d, want 1", a.Cycle)
		}
		if err := e.svc.Reject(ctx, a.ID, ""); err != nil {
			t.Fatalf("reject %d: %v", i, err)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("distinct offers = %d, want 3", len(seen))
	}
}

func TestRunCycleLeavesResolvedShipmentsAlone(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	id := e.newShipment(t)

	// Shipment still pending: a stray cycle run must not offer anything.
	if err := e.svc.runCycle(ctx, id, 1); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if got := len(e.store.ByShipment(id)); got != 0 {
		t.Fatalf("assignments created for non-assigning shipment: %d", got)
	}
}

func TestExpireOverdueSweep(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	id := e.newShipment(t)
	if err := e.shipments.BeginAssigning(ctx, id); err != nil {
		t.Fatalf("begin assigning: %v", err)
	}

	// An offer orphaned by a restart: pending in the store, no live timer.
	a := &Assignment{
		ID:         types.NewID(),
		ShipmentID: id,
		VehicleID:  "v1",
		Operator:   fleet.OperatorRef{Kind: fleet.KindIndividual, ID: "op1"},
		Cycle:      1,
		Status:     StatusPending,
		Deadline:   time.Now().Add(-time.Minute),
		CreatedAt:  time.Now().Add(-3 * time.Minute),
	}
	if err := e.store.CreatePending(ctx, a); err != nil {
		t.Fatalf("plant assignment: %v", err)
	}

	expired, err := e.svc.ExpireOverdue(ctx, 10)
	if err != nil {
		t.Fatalf("expire overdue: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	timedOut, _ := e.svc.Get(ctx, a.ID)
	if timedOut.Status != StatusTimeout {
		t.Fatalf("status = %s, want timeout", timedOut.Status)
	}

	// The sweep escalated and re-offered at cycle 2.
	next := e.pendingAssignment(t, id)
	if next.Cycle != 2 {
		t.Fatalf("next cycle = %d, want 2", next.Cycle)
	}
	sh, _ := e.shipments.Get(ctx, id)
	if sh.CurrentPrice.Amount != 1100 {
		t.Fatalf("price = %d, want 1100", sh.CurrentPrice.Amount)
	}

	// Nothing overdue left.
	expired, err = e.svc.ExpireOverdue(ctx, 10)
	if err != nil || expired != 0 {
		t.Fatalf("second sweep = %d, %v", expired, err)
	}
}

func TestCancelWithdrawsPendingOffer(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.01)
	id := e.newShipment(t)
	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	a := e.pendingAssignment(t, id)

	shipperID := types.ID("shipper1")
	if err := e.svc.Cancel(ctx, id, "shipper", &shipperID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	sh, _ := e.shipments.Get(ctx, id)
	if sh.Status != shipment.StatusCancelled {
		t.Fatalf("shipment status = %s, want cancelled", sh.Status)
	}
	got, _ := e.svc.Get(ctx, a.ID)
	if got.Status != StatusRejected || got.RejectReason != "shipment cancelled" {
		t.Fatalf("assignment = %s (%q), want rejected offer withdrawal", got.Status, got.RejectReason)
	}
	tx, _ := e.escrow.Transaction(ctx, id)
	if tx.Status != escrow.StatusRefunded {
		t.Fatalf("escrow status = %s, want refunded", tx.Status)
	}

	// A late accept on the withdrawn offer is a no-op failure.
	if err := e.svc.Accept(ctx, a.ID); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("accept after cancel: got %v, want ErrAlreadyResolved", err)
	}
	v, _ := e.fleet.Vehicle(ctx, "v1")
	if v.Status != fleet.VehicleAvailable || v.ActiveShipments != 0 {
		t.Fatalf("vehicle = %s active=%d, want available with none", v.Status, v.ActiveShipments)
	}
}

func TestAcceptAfterCancelReleasesVehicle(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.01)
	id := e.newShipment(t)
	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	a := e.pendingAssignment(t, id)

	// Cancel the shipment underneath the still-pending offer, leaving the
	// accept path to discover it on its own.
	if err := e.shipments.Cancel(ctx, id, "shipper", nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := e.svc.Accept(ctx, a.ID); !errors.Is(err, shipment.ErrInvalidState) {
		t.Fatalf("accept after cancel: got %v, want ErrInvalidState", err)
	}

	// The failed accept left nothing behind: vehicle back in the pool,
	// operator off trip, the offer withdrawn rather than accepted.
	v, _ := e.fleet.Vehicle(ctx, "v1")
	if v.Status != fleet.VehicleAvailable || v.ActiveShipments != 0 {
		t.Fatalf("vehicle = %s active=%d, want available with none", v.Status, v.ActiveShipments)
	}
	op, _ := e.fleet.Operator(ctx, "op1")
	if op.OnTrip {
		t.Fatal("operator still on trip after failed accept")
	}
	got, _ := e.svc.Get(ctx, a.ID)
	if got.Status != StatusRejected {
		t.Fatalf("assignment status = %s, want rejected", got.Status)
	}
	sh, _ := e.shipments.Get(ctx, id)
	if sh.Status != shipment.StatusCancelled || sh.VehicleID != nil {
		t.Fatalf("shipment = %s vehicle=%v, want cancelled and unbound", sh.Status, sh.VehicleID)
	}
}

func TestTimeoutAfterCancelLeavesPriceAlone(t *testing.T) {
	e := newEnv(t, quickConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.01)
	id := e.newShipment(t)
	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	a := e.pendingAssignment(t, id)

	if err := e.shipments.Cancel(ctx, id, "shipper", nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Let the response timer lapse on the orphaned offer.
	waitFor(t, time.Second, func() bool {
		got, err := e.svc.Get(ctx, a.ID)
		return err == nil && got.Status != StatusPending
	})

	sh, _ := e.shipments.Get(ctx, id)
	if sh.Status != shipment.StatusCancelled {
		t.Fatalf("shipment status = %s, want cancelled", sh.Status)
	}
	if sh.CurrentPrice.Amount != 1000 || sh.EscalationCount != 0 {
		t.Fatalf("price = %d escalations = %d, want frozen at 1000/0",
			sh.CurrentPrice.Amount, sh.EscalationCount)
	}
	if n := len(e.store.ByShipment(id)); n != 1 {
		t.Fatalf("offers after cancel = %d, want the original only", n)
	}
}

func TestPendingUniquenessInStore(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	base := Assignment{
		ID:         "a1",
		ShipmentID: "s1",
		VehicleID:  "v1",
		Status:     StatusPending,
		Cycle:      1,
		Deadline:   time.Now().Add(time.Minute),
	}
	if err := store.CreatePending(ctx, &base); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := base
	dup.ID = "a2"
	dup.VehicleID = "v2"
	if err := store.CreatePending(ctx, &dup); !errors.Is(err, ErrOfferPending) {
		t.Fatalf("second pending for shipment: got %v, want ErrOfferPending", err)
	}

	other := base
	other.ID = "a3"
	other.ShipmentID = "s2"
	if err := store.CreatePending(ctx, &other); !errors.Is(err, ErrVehicleOffered) {
		t.Fatalf("second pending for vehicle: got %v, want ErrVehicleOffered", err)
	}

	// Resolving the first frees both shipment and vehicle.
	if ok, _ := store.Resolve(ctx, "a1", StatusRejected, ""); !ok {
		t.Fatal("resolve failed")
	}
	if err := store.CreatePending(ctx, &other); err != nil {
		t.Fatalf("insert after resolve: %v", err)
	}
}

func TestConcurrentAcceptsSingleWinner(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	a := e.pendingAssignment(t, id)

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.svc.Accept(ctx, a.ID)
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrAlreadyResolved):
		case errors.Is(err, fleet.ErrVehicleClaimed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success > 1 {
		t.Fatalf("successes = %d, want at most 1", success)
	}

	// Whatever the interleaving, the vehicle is never double-bound.
	v, _ := e.fleet.Vehicle(ctx, "v1")
	if v.ActiveShipments > 1 {
		t.Fatalf("vehicle bound %d times", v.ActiveShipments)
	}
	if success == 1 {
		sh, _ := e.shipments.Get(ctx, id)
		if sh.Status != shipment.StatusAssigned {
			t.Fatalf("shipment status = %s, want assigned", sh.Status)
		}
		if v.Status != fleet.VehicleBusy {
			t.Fatalf("vehicle status = %s, want busy", v.Status)
		}
	}
}

func TestAcceptVsRejectRace(t *testing.T) {
	e := newEnv(t, patientConfig())
	ctx := context.Background()
	e.seedVehicle(t, "v1", "op1", fleet.KindIndividual, 0.001)
	id := e.newShipment(t)

	if err := e.svc.Initiate(ctx, id); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	a := e.pendingAssignment(t, id)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- e.svc.Accept(ctx, a.ID)
	}()
	go func() {
		defer wg.Done()
		errs <- e.svc.Reject(ctx, a.ID, "changed my mind")
	}()
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrAlreadyResolved):
		case errors.Is(err, fleet.ErrVehicleClaimed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("successes = %d, want exactly 1", success)
	}

	final, _ := e.svc.Get(ctx, a.ID)
	if final.Status != StatusAccepted && final.Status != StatusRejected {
		t.Fatalf("final status = %s", final.Status)
	}
}
