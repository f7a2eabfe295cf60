// README: Escrow store backed by PostgreSQL.
package escrow

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// CreateTransaction inserts a held transaction. The partial unique index on
// (shipment_id) WHERE status = 'held' turns a duplicate hold into
// ErrAlreadyHeld.
func (s *PgStore) CreateTransaction(ctx context.Context, tx *Transaction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO escrow_transactions (
			id, shipment_id, amount, commission, operator_share, currency,
			status, reason, held_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(tx.ID), string(tx.ShipmentID),
		tx.Amount.Amount, tx.Commission.Amount, tx.OperatorShare.Amount, tx.Amount.Currency,
		string(tx.Status), tx.Reason, tx.HeldAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrAlreadyHeld
	}
	return err
}

func (s *PgStore) GetByShipment(ctx context.Context, shipmentID types.ID) (*Transaction, error) {
	tx, err := s.getWhere(ctx, `shipment_id = $1 ORDER BY held_at DESC LIMIT 1`, string(shipmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

func (s *PgStore) GetHeld(ctx context.Context, shipmentID types.ID) (*Transaction, error) {
	tx, err := s.getWhere(ctx, `shipment_id = $1 AND status = 'held'`, string(shipmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoHeldEscrow
	}
	return tx, err
}

func (s *PgStore) getWhere(ctx context.Context, where string, args ...any) (*Transaction, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, shipment_id, amount, commission, operator_share, currency,
		       status, recipient_kind, recipient_id, reason, held_at, resolved_at
		FROM escrow_transactions
		WHERE `+where, args...,
	)
	var tx Transaction
	var currency string
	var recipientKind, recipientID sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(
		&tx.ID, &tx.ShipmentID,
		&tx.Amount.Amount, &tx.Commission.Amount, &tx.OperatorShare.Amount, &currency,
		&tx.Status, &recipientKind, &recipientID, &tx.Reason, &tx.HeldAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Amount.Currency = currency
	tx.Commission.Currency = currency
	tx.OperatorShare.Currency = currency
	if recipientKind.Valid && recipientID.Valid {
		tx.Recipient = &fleet.OperatorRef{
			Kind: fleet.OperatorKind(recipientKind.String),
			ID:   types.ID(recipientID.String),
		}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		tx.ResolvedAt = &t
	}
	return &tx, nil
}

func (s *PgStore) UpdateHeldAmounts(ctx context.Context, shipmentID types.ID, amount, commission, operatorShare types.Money) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE escrow_transactions
		SET amount = $1, commission = $2, operator_share = $3
		WHERE shipment_id = $4 AND status = 'held'`,
		amount.Amount, commission.Amount, operatorShare.Amount, string(shipmentID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) Resolve(ctx context.Context, shipmentID types.ID, to Status, recipient *fleet.OperatorRef, reason string) (bool, error) {
	var recipientKind, recipientID *string
	if recipient != nil {
		k := string(recipient.Kind)
		i := string(recipient.ID)
		recipientKind, recipientID = &k, &i
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE escrow_transactions
		SET status = $1,
		    recipient_kind = COALESCE($2, recipient_kind),
		    recipient_id = COALESCE($3, recipient_id),
		    reason = CASE WHEN $4 <> '' THEN $4 ELSE reason END,
		    resolved_at = NOW()
		WHERE shipment_id = $5 AND status = 'held'`,
		string(to), recipientKind, recipientID, reason, string(shipmentID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) ActiveCommission(ctx context.Context, now time.Time) (*CommissionConfig, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, percent, valid_from, valid_to, active, created_at
		FROM commission_configs
		WHERE active AND valid_from <= $1 AND (valid_to IS NULL OR valid_to > $1)
		ORDER BY valid_from DESC
		LIMIT 1`, now,
	)
	var cfg CommissionConfig
	var validTo sql.NullTime
	err := row.Scan(&cfg.ID, &cfg.Percent, &cfg.ValidFrom, &validTo, &cfg.Active, &cfg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveConfig
	}
	if err != nil {
		return nil, err
	}
	if validTo.Valid {
		t := validTo.Time
		cfg.ValidTo = &t
	}
	return &cfg, nil
}

func (s *PgStore) RotateCommission(ctx context.Context, cfg *CommissionConfig) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE commission_configs
		SET active = FALSE, valid_to = $1
		WHERE active`, cfg.ValidFrom,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO commission_configs (id, percent, valid_from, valid_to, active, created_at)
		VALUES ($1, $2, $3, NULL, TRUE, $4)`,
		string(cfg.ID), cfg.Percent, cfg.ValidFrom, cfg.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
