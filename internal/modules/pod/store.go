// README: Proof-of-delivery store backed by PostgreSQL.
package pod

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackas/internal/types"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Create(ctx context.Context, p *Proof) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO proofs_of_delivery (
			id, shipment_id, uploader_id, photo_refs, signature_ref,
			recipient_name, upload_lat, upload_lng, distance_km,
			verified, created_at, verified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(p.ID), string(p.ShipmentID), string(p.UploaderID),
		p.PhotoRefs, p.SignatureRef, p.RecipientName,
		p.UploadLocation.Lat, p.UploadLocation.Lng, p.DistanceKm,
		p.Verified, p.CreatedAt, p.VerifiedAt,
	)
	return err
}

func (s *PgStore) GetByShipment(ctx context.Context, shipmentID types.ID) (*Proof, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, shipment_id, uploader_id, photo_refs, signature_ref,
		       recipient_name, upload_lat, upload_lng, distance_km,
		       verified, created_at, verified_at
		FROM proofs_of_delivery
		WHERE shipment_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, string(shipmentID),
	)
	return scanProof(row)
}

func (s *PgStore) ListUnverified(ctx context.Context, limit int) ([]*Proof, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, shipment_id, uploader_id, photo_refs, signature_ref,
		       recipient_name, upload_lat, upload_lng, distance_km,
		       verified, created_at, verified_at
		FROM proofs_of_delivery
		WHERE NOT verified
		ORDER BY created_at
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Proof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProof(row rowScanner) (*Proof, error) {
	var p Proof
	var verifiedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.ShipmentID, &p.UploaderID, &p.PhotoRefs, &p.SignatureRef,
		&p.RecipientName, &p.UploadLocation.Lat, &p.UploadLocation.Lng,
		&p.DistanceKm, &p.Verified, &p.CreatedAt, &verifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.VerifiedAt = &t
	}
	return &p, nil
}
