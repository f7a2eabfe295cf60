// README: Shipment store backed by PostgreSQL.
package shipment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackas/internal/modules/fleet"
	"trackas/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Create(ctx context.Context, sh *Shipment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO shipments (
			id, shipper_id, pickup_lat, pickup_lng, dest_lat, dest_lng,
			vehicle_class, urgency, weight_kg,
			base_price, current_price, currency, escalation_count,
			status, status_version, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16
		)`,
		string(sh.ID), string(sh.ShipperID),
		sh.Pickup.Lat, sh.Pickup.Lng, sh.Destination.Lat, sh.Destination.Lng,
		sh.VehicleClass, string(sh.Urgency), sh.WeightKg,
		sh.BasePrice.Amount, sh.CurrentPrice.Amount, sh.BasePrice.Currency, sh.EscalationCount,
		string(sh.Status), sh.StatusVersion, sh.CreatedAt,
	)
	return err
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Shipment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, shipper_id, pickup_lat, pickup_lng, dest_lat, dest_lng,
		       vehicle_class, urgency, weight_kg,
		       base_price, current_price, currency, escalation_count,
		       status, status_version, vehicle_id, operator_kind, operator_id,
		       created_at, assigned_at, picked_up_at, in_transit_at, delivered_at,
		       failure_reason
		FROM shipments
		WHERE id = $1`, string(id),
	)

	var sh Shipment
	var currency string
	var vehicleID, operatorKind, operatorID, failureReason sql.NullString
	var assignedAt, pickedUpAt, inTransitAt, deliveredAt sql.NullTime

	err := row.Scan(
		&sh.ID, &sh.ShipperID, &sh.Pickup.Lat, &sh.Pickup.Lng,
		&sh.Destination.Lat, &sh.Destination.Lng,
		&sh.VehicleClass, &sh.Urgency, &sh.WeightKg,
		&sh.BasePrice.Amount, &sh.CurrentPrice.Amount, &currency, &sh.EscalationCount,
		&sh.Status, &sh.StatusVersion, &vehicleID, &operatorKind, &operatorID,
		&sh.CreatedAt, &assignedAt, &pickedUpAt, &inTransitAt, &deliveredAt,
		&failureReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sh.BasePrice.Currency = currency
	sh.CurrentPrice.Currency = currency
	if vehicleID.Valid {
		v := types.ID(vehicleID.String)
		sh.VehicleID = &v
	}
	if operatorKind.Valid && operatorID.Valid {
		sh.Operator = &fleet.OperatorRef{
			Kind: fleet.OperatorKind(operatorKind.String),
			ID:   types.ID(operatorID.String),
		}
	}
	sh.AssignedAt = toTimePtr(assignedAt)
	sh.PickedUpAt = toTimePtr(pickedUpAt)
	sh.InTransitAt = toTimePtr(inTransitAt)
	sh.DeliveredAt = toTimePtr(deliveredAt)
	if failureReason.Valid {
		sh.FailureReason = &failureReason.String
	}
	return &sh, nil
}

func (s *PgStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, patch Patch) (bool, error) {
	var vehicleID, operatorKind, operatorID, failureReason *string
	if patch.VehicleID != nil {
		v := string(*patch.VehicleID)
		vehicleID = &v
	}
	if patch.Operator != nil {
		k := string(patch.Operator.Kind)
		i := string(patch.Operator.ID)
		operatorKind, operatorID = &k, &i
	}
	failureReason = patch.FailureReason

	tag, err := s.db.Exec(ctx, `
		UPDATE shipments
		SET status = $1,
		    status_version = status_version + 1,
		    vehicle_id = COALESCE($2, vehicle_id),
		    operator_kind = COALESCE($3, operator_kind),
		    operator_id = COALESCE($4, operator_id),
		    failure_reason = COALESCE($5, failure_reason),
		    assigned_at = CASE WHEN $1 = 'assigned' THEN NOW() ELSE assigned_at END,
		    picked_up_at = CASE WHEN $1 = 'picked_up' THEN NOW() ELSE picked_up_at END,
		    in_transit_at = CASE WHEN $1 = 'in_transit' THEN NOW() ELSE in_transit_at END,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN NOW() ELSE delivered_at END
		WHERE id = $6 AND status = $7 AND status_version = $8`,
		string(to), vehicleID, operatorKind, operatorID, failureReason,
		string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePrice rewrites the current price. Conditional on status: price is
// mutable only while the shipment is still soliciting offers.
func (s *PgStore) UpdatePrice(ctx context.Context, id types.ID, price types.Money, escalations int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE shipments
		SET current_price = $1, escalation_count = $2
		WHERE id = $3 AND status = $4`,
		price.Amount, escalations, string(id), string(StatusAssigning),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrInvalidState
	}
	return nil
}

func (s *PgStore) AppendEvent(ctx context.Context, e *Event) error {
	var actorID *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actorID = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO shipment_state_events (
			shipment_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.ShipmentID), string(e.FromStatus), string(e.ToStatus),
		e.ActorType, actorID, e.CreatedAt,
	)
	return err
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
