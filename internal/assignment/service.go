package assignment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dispatch-engine/internal/common"
	"dispatch-engine/internal/driver"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/order"
	"dispatch-engine/internal/repo/postgres"
)

const autoAssignAttempts = 3

type Service interface {
	Candidates(ctx context.Context, orderID uuid.UUID, notifyCount int) (*Ranking, error)
	AutoAssign(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
}

type Config struct {
	NotifyCount int
}

type Deps struct {
	Orders   order.Repository
	Drivers  driver.Repository
	Tx       postgres.Transactor
	Dispatch order.Service
	Locator  order.Locator
	Clock    func() time.Time
}

type service struct {
	orders   order.Repository
	drivers  driver.Repository
	tx       postgres.Transactor
	dispatch order.Service
	locator  order.Locator
	cfg      Config
	now      func() time.Time
}

func NewAssignmentService(deps Deps, cfg Config) Service {
	if cfg.NotifyCount <= 0 {
		cfg.NotifyCount = DefaultNotifyCount
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		orders:   deps.Orders,
		drivers:  deps.Drivers,
		tx:       deps.Tx,
		dispatch: deps.Dispatch,
		locator:  deps.Locator,
		cfg:      cfg,
		now:      now,
	}
}

// --------------------------------------------------------------
func (s *service) Candidates(ctx context.Context, orderID uuid.UUID, notifyCount int) (*Ranking, error) {
	if notifyCount <= 0 {
		notifyCount = s.cfg.NotifyCount
	}

	var (
		o    *order.Order
		pool []*driver.Driver
	)
	// order and pool come from one snapshot. The pool can still go stale
	// before the assignment commits; Engage re-checks under the driver lock.
	err := s.tx.WithinSnapshot(ctx, func(tx sqlx.ExtContext) error {
		var err error
		o, err = s.orders.GetByID(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domainerrors.OrderNotFound(orderID.String())
			}
			return domainerrors.NewUnavailable("order store unavailable", err)
		}
		if o.Status != order.StatusPending {
			return domainerrors.OrderInvalidTransition(string(o.Status), string(order.StatusAssigned))
		}
		pool, err = s.drivers.ListAvailable(ctx, tx)
		if err != nil {
			return domainerrors.NewUnavailable("failed to load candidate drivers", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.overlayLivePositions(ctx, pool)
	return Rank(o, pool, notifyCount, s.now())
}

// overlayLivePositions replaces stored positions with the newer live ones.
func (s *service) overlayLivePositions(ctx context.Context, pool []*driver.Driver) {
	if s.locator == nil {
		return
	}
	for _, d := range pool {
		if loc, ok := s.locator.LatestLocation(ctx, d.ID); ok {
			d.SetPosition(loc)
		}
	}
}

// --------------------------------------------------------------
// AutoAssign hands the order to the best ranked driver. A driver taken by a
// concurrent assignment is rejected under its row lock; the pool is then
// re-ranked, up to autoAssignAttempts times.
func (s *service) AutoAssign(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	for attempt := 0; attempt < autoAssignAttempts; attempt++ {
		ranking, err := s.Candidates(ctx, orderID, 1)
		if err != nil {
			return nil, err
		}
		best := ranking.Candidates[0]

		o, err := s.dispatch.Transition(ctx, order.TransitionRequest{
			OrderID:  orderID,
			Actor:    common.SystemActor,
			Target:   order.StatusAssigned,
			DriverID: best.Driver.ID,
			Expected: order.StatusPending,
		})
		if domainerrors.Is(err, domainerrors.ErrConflict) {
			continue
		}
		return o, err
	}
	return nil, domainerrors.NoDriversAvailable()
}
