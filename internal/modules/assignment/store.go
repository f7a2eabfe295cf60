// README: Assignment store backed by PostgreSQL.
package assignment

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackas/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

// CreatePending inserts a pending assignment. Two partial unique indexes
// uphold the invariants: uq_assignments_pending_shipment (one pending per
// shipment) and uq_assignments_pending_vehicle (one pending per vehicle).
func (s *PgStore) CreatePending(ctx context.Context, a *Assignment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO assignments (
			id, shipment_id, vehicle_id, operator_kind, operator_id,
			cycle, score, status, deadline, reject_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', $10)`,
		string(a.ID), string(a.ShipmentID), string(a.VehicleID),
		string(a.Operator.Kind), string(a.Operator.ID),
		a.Cycle, a.Score, string(a.Status), a.Deadline, a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "vehicle") {
			return ErrVehicleOffered
		}
		return ErrOfferPending
	}
	return err
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, shipment_id, vehicle_id, operator_kind, operator_id,
		       cycle, score, status, deadline, reject_reason, created_at, resolved_at
		FROM assignments
		WHERE id = $1`, string(id),
	)
	return scanAssignment(row)
}

func (s *PgStore) Resolve(ctx context.Context, id types.ID, to Status, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE assignments
		SET status = $1,
		    reject_reason = CASE WHEN $2 <> '' THEN $2 ELSE reject_reason END,
		    resolved_at = NOW()
		WHERE id = $3 AND status = 'pending'`,
		string(to), reason, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) PendingByShipment(ctx context.Context, shipmentID types.ID) (*Assignment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, shipment_id, vehicle_id, operator_kind, operator_id,
		       cycle, score, status, deadline, reject_reason, created_at, resolved_at
		FROM assignments
		WHERE shipment_id = $1 AND status = 'pending'`, string(shipmentID),
	)
	return scanAssignment(row)
}

func (s *PgStore) RollbackAccepted(ctx context.Context, id types.ID, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE assignments
		SET status = 'rejected', reject_reason = $1, resolved_at = NOW()
		WHERE id = $2 AND status = 'accepted'`,
		reason, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) OfferedVehicles(ctx context.Context, shipmentID types.ID, cycle int) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT vehicle_id
		FROM assignments
		WHERE shipment_id = $1 AND cycle = $2`,
		string(shipmentID), cycle,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, types.ID(v))
	}
	return out, rows.Err()
}

func (s *PgStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Assignment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, shipment_id, vehicle_id, operator_kind, operator_id,
		       cycle, score, status, deadline, reject_reason, created_at, resolved_at
		FROM assignments
		WHERE status = 'pending' AND deadline < $1
		ORDER BY deadline
		LIMIT $2`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	var a Assignment
	var resolvedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.ShipmentID, &a.VehicleID, &a.Operator.Kind, &a.Operator.ID,
		&a.Cycle, &a.Score, &a.Status, &a.Deadline, &a.RejectReason,
		&a.CreatedAt, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}
