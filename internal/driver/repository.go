package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, name, phone, vehicle_type, status, latitude, longitude, last_active_at, total_jobs,
	total_earnings, rating, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, d *Driver) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Driver, error)
	GetByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*Driver, error)
	Update(ctx context.Context, ext sqlx.ExtContext, d *Driver) error
	// UpdatePresence records a position report; a nil lat/lng keeps the stored one.
	UpdatePresence(ctx context.Context, ext sqlx.ExtContext, id string, lat, lng *float64, seenAt time.Time) error
	// UpdateReportedStatus applies a client-reported status unless dispatch holds the driver ON_JOB.
	UpdateReportedStatus(ctx context.Context, ext sqlx.ExtContext, id string, status Status) error
	ListAll(ctx context.Context, ext sqlx.ExtContext, status *Status, page, limit int) ([]*Driver, int, error)
	// ListAvailable returns ONLINE drivers holding no active order.
	ListAvailable(ctx context.Context, ext sqlx.ExtContext) ([]*Driver, error)
	MeanRating(ctx context.Context, ext sqlx.ExtContext, id string) (*float64, error)
	// HasActiveOrder reports whether the driver holds an active order other than exceptOrder.
	HasActiveOrder(ctx context.Context, ext sqlx.ExtContext, id string, exceptOrder uuid.UUID) (bool, error)
}

type driverRepository struct{}

func NewDriverRepository() Repository {
	return &driverRepository{}
}

func (r *driverRepository) Create(ctx context.Context, ext sqlx.ExtContext, d *Driver) error {
	const query = `INSERT INTO drivers (id, name, phone, vehicle_type, status, latitude, longitude, last_active_at,
		total_jobs, total_earnings, rating, created_at, updated_at)
		VALUES (:id, :name, :phone, :vehicle_type, :status, :latitude, :longitude, :last_active_at,
		:total_jobs, :total_earnings, :rating, :created_at, :updated_at)`

	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

func (r *driverRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Driver, error) {
	var d Driver
	query := fmt.Sprintf(`SELECT %s FROM drivers WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &d, query, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *driverRepository) GetByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*Driver, error) {
	var d Driver
	query := fmt.Sprintf(`SELECT %s FROM drivers WHERE id = $1 FOR UPDATE`, columns)
	if err := sqlx.GetContext(ctx, ext, &d, query, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *driverRepository) Update(ctx context.Context, ext sqlx.ExtContext, d *Driver) error {
	const query = `UPDATE drivers SET status = :status, total_jobs = :total_jobs, total_earnings = :total_earnings,
		rating = :rating, updated_at = :updated_at WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

func (r *driverRepository) UpdatePresence(ctx context.Context, ext sqlx.ExtContext, id string, lat, lng *float64, seenAt time.Time) error {
	const query = `UPDATE drivers SET latitude = COALESCE($2, latitude), longitude = COALESCE($3, longitude),
		last_active_at = $4, updated_at = NOW() WHERE id = $1`
	_, err := ext.ExecContext(ctx, query, id, lat, lng, seenAt)
	return err
}

func (r *driverRepository) UpdateReportedStatus(ctx context.Context, ext sqlx.ExtContext, id string, status Status) error {
	const query = `UPDATE drivers SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> 'ON_JOB'`
	_, err := ext.ExecContext(ctx, query, id, status)
	return err
}

func (r *driverRepository) ListAll(ctx context.Context, ext sqlx.ExtContext, status *Status, page, limit int) ([]*Driver, int, error) {
	offset := (page - 1) * limit
	args := []any{}
	argIdx := 1

	where := ""
	if status != nil {
		where = fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM drivers%s`, where)
	if err := sqlx.GetContext(ctx, ext, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM drivers%s ORDER BY id LIMIT $%d OFFSET $%d`, columns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	var drivers []*Driver
	if err := sqlx.SelectContext(ctx, ext, &drivers, dataQuery, args...); err != nil {
		return nil, 0, err
	}
	return drivers, total, nil
}

func (r *driverRepository) ListAvailable(ctx context.Context, ext sqlx.ExtContext) ([]*Driver, error) {
	query := fmt.Sprintf(`SELECT %s FROM drivers d
		WHERE d.status = 'ONLINE'
		AND NOT EXISTS (
			SELECT 1 FROM orders o
			WHERE o.assigned_driver_id = d.id
			AND o.status IN ('ASSIGNED', 'ACCEPTED', 'PICKED_UP', 'EN_ROUTE')
		)
		ORDER BY d.id`, columns)

	var drivers []*Driver
	if err := sqlx.SelectContext(ctx, ext, &drivers, query); err != nil {
		return nil, err
	}
	return drivers, nil
}

func (r *driverRepository) MeanRating(ctx context.Context, ext sqlx.ExtContext, id string) (*float64, error) {
	const query = `SELECT AVG(manager_rating)::float8 FROM orders
		WHERE assigned_driver_id = $1 AND status = 'DELIVERED' AND manager_rating IS NOT NULL`

	var mean *float64
	if err := sqlx.GetContext(ctx, ext, &mean, query, id); err != nil {
		return nil, err
	}
	return mean, nil
}

func (r *driverRepository) HasActiveOrder(ctx context.Context, ext sqlx.ExtContext, id string, exceptOrder uuid.UUID) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM orders
		WHERE assigned_driver_id = $1 AND id <> $2
		AND status IN ('ASSIGNED', 'ACCEPTED', 'PICKED_UP', 'EN_ROUTE')
	)`

	var busy bool
	if err := sqlx.GetContext(ctx, ext, &busy, query, id, exceptOrder); err != nil {
		return false, err
	}
	return busy, nil
}
