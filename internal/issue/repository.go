package issue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, driver_id, order_id, type, description, status, created_at, resolved_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, i *Issue) error
	ResolveOpenByOrder(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID, at time.Time) (int64, error)
	ListOpen(ctx context.Context, ext sqlx.ExtContext) ([]*Issue, error)
}

type issueRepository struct{}

func NewIssueRepository() Repository {
	return &issueRepository{}
}

func (r *issueRepository) Create(ctx context.Context, ext sqlx.ExtContext, i *Issue) error {
	const query = `INSERT INTO driver_issues (id, driver_id, order_id, type, description, status, created_at, resolved_at)
		VALUES (:id, :driver_id, :order_id, :type, :description, :status, :created_at, :resolved_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, i)
	return err
}

func (r *issueRepository) ResolveOpenByOrder(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID, at time.Time) (int64, error) {
	const query = `UPDATE driver_issues SET status = 'RESOLVED', resolved_at = $2 WHERE order_id = $1 AND status = 'OPEN'`
	res, err := ext.ExecContext(ctx, query, orderID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *issueRepository) ListOpen(ctx context.Context, ext sqlx.ExtContext) ([]*Issue, error) {
	var out []*Issue
	query := `SELECT ` + columns + ` FROM driver_issues WHERE status = 'OPEN' ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, ext, &out, query); err != nil {
		return nil, err
	}
	return out, nil
}
