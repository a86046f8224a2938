package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, created_by, pickup_lat, pickup_lng, delivery_lat, delivery_lng, order_value, delivery_fee,
	driver_pay, payment_type, estimated_time_minutes, status, assigned_driver_id, manager_rating, accepted_at,
	picked_up_at, delivered_at, actual_time_minutes, cancelled_by, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, o *Order) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Order, error)
	GetByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Order, error)
	// UpdateTransition writes o only if the stored status still equals prev.
	UpdateTransition(ctx context.Context, ext sqlx.ExtContext, o *Order, prev Status) (bool, error)
	UpdateRating(ctx context.Context, ext sqlx.ExtContext, o *Order) error
	ListAll(ctx context.Context, ext sqlx.ExtContext, status *Status, page, limit int) ([]*Order, int, error)
	ListByDriver(ctx context.Context, ext sqlx.ExtContext, driverID string) ([]*Order, error)
	ListPendingIDs(ctx context.Context, ext sqlx.ExtContext, limit int) ([]uuid.UUID, error)
}

type orderRepository struct{}

func NewOrderRepository() Repository {
	return &orderRepository{}
}

func (r *orderRepository) Create(ctx context.Context, ext sqlx.ExtContext, o *Order) error {
	const query = `INSERT INTO orders (id, created_by, pickup_lat, pickup_lng, delivery_lat, delivery_lng, order_value,
		delivery_fee, driver_pay, payment_type, estimated_time_minutes, status, created_at, updated_at)
		VALUES (:id, :created_by, :pickup_lat, :pickup_lng, :delivery_lat, :delivery_lng, :order_value,
		:delivery_fee, :driver_pay, :payment_type, :estimated_time_minutes, :status, :created_at, :updated_at)`

	_, err := sqlx.NamedExecContext(ctx, ext, query, o)
	return err
}

func (r *orderRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Order, error) {
	var o Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &o, query, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) GetByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Order, error) {
	var o Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1 FOR UPDATE`, columns)
	if err := sqlx.GetContext(ctx, ext, &o, query, id); err != nil {
		return nil, err
	}
	return &o, nil
}

// Coordinates are deliberately absent from the SET list.
func (r *orderRepository) UpdateTransition(ctx context.Context, ext sqlx.ExtContext, o *Order, prev Status) (bool, error) {
	const query = `UPDATE orders SET status = $3, assigned_driver_id = $4, accepted_at = $5, picked_up_at = $6,
		delivered_at = $7, actual_time_minutes = $8, cancelled_by = $9, updated_at = $10
		WHERE id = $1 AND status = $2`

	res, err := ext.ExecContext(ctx, query, o.ID, prev, o.Status, o.AssignedDriverID, o.AcceptedAt,
		o.PickedUpAt, o.DeliveredAt, o.ActualTimeMinutes, o.CancelledBy, o.UpdatedAt)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *orderRepository) UpdateRating(ctx context.Context, ext sqlx.ExtContext, o *Order) error {
	const query = `UPDATE orders SET manager_rating = $2, updated_at = $3 WHERE id = $1 AND status = 'DELIVERED'`
	_, err := ext.ExecContext(ctx, query, o.ID, o.ManagerRating, o.UpdatedAt)
	return err
}

func (r *orderRepository) ListAll(ctx context.Context, ext sqlx.ExtContext, status *Status, page, limit int) ([]*Order, int, error) {
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
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM orders%s`, where)
	if err := sqlx.GetContext(ctx, ext, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, columns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	var orders []*Order
	if err := sqlx.SelectContext(ctx, ext, &orders, dataQuery, args...); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) ListByDriver(ctx context.Context, ext sqlx.ExtContext, driverID string) ([]*Order, error) {
	var orders []*Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE assigned_driver_id = $1 ORDER BY created_at DESC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &orders, query, driverID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListPendingIDs(ctx context.Context, ext sqlx.ExtContext, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	const query = `SELECT id FROM orders WHERE status = 'PENDING' ORDER BY created_at ASC LIMIT $1`
	if err := sqlx.SelectContext(ctx, ext, &ids, query, limit); err != nil {
		return nil, err
	}
	return ids, nil
}
