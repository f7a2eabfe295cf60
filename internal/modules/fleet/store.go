// README: Fleet store backed by PostgreSQL for records and Redis GEO for locations.
package fleet

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"trackas/internal/types"
)

const vehicleGeoKey = "fleet:vehicles"

type PgStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewPgStore(db *pgxpool.Pool, redis *redis.Client) *PgStore {
	return &PgStore{db: db, redis: redis}
}

func (s *PgStore) GetVehicle(ctx context.Context, id types.ID) (*Vehicle, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, vcode, owner_kind, owner_id, class, status,
		       lat, lng, active_shipments, updated_at
		FROM vehicles
		WHERE id = $1`, string(id),
	)
	var v Vehicle
	err := row.Scan(
		&v.ID, &v.VCode, &v.Owner.Kind, &v.Owner.ID, &v.Class, &v.Status,
		&v.Location.Lat, &v.Location.Lng, &v.ActiveShipments, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PgStore) GetOperator(ctx context.Context, id types.ID) (*Operator, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, kind, status, reliability, on_trip,
		       subscribed, subscription_tier, completed_deliveries,
		       earnings_amount, earnings_currency
		FROM operators
		WHERE id = $1`, string(id),
	)
	var o Operator
	err := row.Scan(
		&o.ID, &o.Kind, &o.Status, &o.Reliability, &o.OnTrip,
		&o.Subscribed, &o.SubscriptionTier, &o.CompletedDeliveries,
		&o.Earnings.Amount, &o.Earnings.Currency,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOperatorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PgStore) UpsertVehicle(ctx context.Context, v *Vehicle) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vehicles (
			id, vcode, owner_kind, owner_id, class, status,
			lat, lng, active_shipments, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			vcode = EXCLUDED.vcode,
			class = EXCLUDED.class,
			status = EXCLUDED.status,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			updated_at = NOW()`,
		string(v.ID), v.VCode, string(v.Owner.Kind), string(v.Owner.ID),
		v.Class, string(v.Status), v.Location.Lat, v.Location.Lng, v.ActiveShipments,
	)
	return err
}

func (s *PgStore) UpsertOperator(ctx context.Context, o *Operator) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO operators (
			id, kind, status, reliability, on_trip,
			subscribed, subscription_tier, completed_deliveries,
			earnings_amount, earnings_currency
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			reliability = EXCLUDED.reliability,
			subscribed = EXCLUDED.subscribed,
			subscription_tier = EXCLUDED.subscription_tier`,
		string(o.ID), string(o.Kind), string(o.Status), o.Reliability, o.OnTrip,
		o.Subscribed, o.SubscriptionTier, o.CompletedDeliveries,
		o.Earnings.Amount, o.Earnings.Currency,
	)
	return err
}

// CandidatesNear resolves nearby vehicle ids (with distances) from Redis GEO,
// then hydrates records from Postgres, filtering to available vehicles owned
// by approved operators. Redis returns nearest-first, which fixes the stable
// tie-break order downstream.
func (s *PgStore) CandidatesNear(ctx context.Context, p types.Point, radiusKm float64) ([]Candidate, error) {
	locs, err := s.redis.GeoSearchLocation(ctx, vehicleGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(locs))
	for _, loc := range locs {
		v, err := s.GetVehicle(ctx, types.ID(loc.Name))
		if errors.Is(err, ErrVehicleNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if v.Status != VehicleAvailable {
			continue
		}
		op, err := s.GetOperator(ctx, v.Owner.ID)
		if errors.Is(err, ErrOperatorNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if op.Status != OperatorApproved {
			continue
		}
		if op.Kind == KindIndividual && op.OnTrip {
			continue
		}
		out = append(out, Candidate{
			VehicleID:        v.ID,
			Owner:            v.Owner,
			VehicleClass:     v.Class,
			Location:         v.Location,
			DistanceKm:       loc.Dist,
			Reliability:      op.Reliability,
			ActiveShipments:  v.ActiveShipments,
			Subscribed:       op.Subscribed,
			SubscriptionTier: op.SubscriptionTier,
		})
	}
	return out, nil
}

func (s *PgStore) ClaimVehicle(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE vehicles
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(VehicleBusy), string(id), string(VehicleAvailable),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) ReleaseVehicle(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE vehicles
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		string(VehicleAvailable), string(id), string(VehicleBusy),
	)
	return err
}

func (s *PgStore) UpdateLocation(ctx context.Context, vehicleID types.ID, p types.Point) error {
	if err := s.redis.GeoAdd(ctx, vehicleGeoKey, &redis.GeoLocation{
		Name:      string(vehicleID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		UPDATE vehicles SET lat = $1, lng = $2, updated_at = NOW() WHERE id = $3`,
		p.Lat, p.Lng, string(vehicleID),
	)
	return err
}

func (s *PgStore) SetOperatorOnTrip(ctx context.Context, id types.ID, onTrip bool) error {
	_, err := s.db.Exec(ctx, `
		UPDATE operators SET on_trip = $1 WHERE id = $2`, onTrip, string(id))
	return err
}

func (s *PgStore) CreditEarnings(ctx context.Context, id types.ID, amount types.Money) error {
	_, err := s.db.Exec(ctx, `
		UPDATE operators SET earnings_amount = earnings_amount + $1 WHERE id = $2`,
		amount.Amount, string(id),
	)
	return err
}

func (s *PgStore) IncrementDeliveries(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE operators SET completed_deliveries = completed_deliveries + 1 WHERE id = $1`,
		string(id),
	)
	return err
}

func (s *PgStore) AdjustActiveShipments(ctx context.Context, vehicleID types.ID, delta int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE vehicles
		SET active_shipments = GREATEST(active_shipments + $1, 0)
		WHERE id = $2`,
		delta, string(vehicleID),
	)
	return err
}
