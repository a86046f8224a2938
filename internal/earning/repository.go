package earning

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, e *Earning) error
	ListByDriver(ctx context.Context, ext sqlx.ExtContext, driverID string, since *time.Time) ([]*Earning, error)
}

type earningRepository struct{}

func NewEarningRepository() Repository {
	return &earningRepository{}
}

func (r *earningRepository) Create(ctx context.Context, ext sqlx.ExtContext, e *Earning) error {
	const query = `INSERT INTO earnings (id, driver_id, order_id, amount, distance_km, duration_minutes, earned_at)
		VALUES (:id, :driver_id, :order_id, :amount, :distance_km, :duration_minutes, :earned_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, e)
	return err
}

func (r *earningRepository) ListByDriver(ctx context.Context, ext sqlx.ExtContext, driverID string, since *time.Time) ([]*Earning, error) {
	const query = `SELECT id, driver_id, order_id, amount, distance_km, duration_minutes, earned_at
		FROM earnings WHERE driver_id = $1 AND ($2::timestamptz IS NULL OR earned_at >= $2)
		ORDER BY earned_at DESC`

	var out []*Earning
	if err := sqlx.SelectContext(ctx, ext, &out, query, driverID, since); err != nil {
		return nil, err
	}
	return out, nil
}
