package issue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "dispatch-engine/internal/errors"
)

// Tracker opens and resolves order-linked issues inside the caller's transaction.
type Tracker struct {
	repo Repository
	db   sqlx.ExtContext
	now  func() time.Time
}

func NewTracker(repo Repository, db sqlx.ExtContext) *Tracker {
	return &Tracker{repo: repo, db: db, now: time.Now}
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) OpenCancellation(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID, driverID, description string) error {
	id := orderID
	return t.repo.Create(ctx, ext, New(driverID, &id, TypeOther, description, t.now()))
}

func (t *Tracker) ResolveForOrder(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) error {
	_, err := t.repo.ResolveOpenByOrder(ctx, ext, orderID, t.now())
	return err
}

func (t *Tracker) ListOpen(ctx context.Context) ([]*Issue, error) {
	list, err := t.repo.ListOpen(ctx, t.db)
	if err != nil {
		return nil, domainerrors.NewUnavailable("failed to list issues", err)
	}
	if list == nil {
		list = []*Issue{}
	}
	return list, nil
}
