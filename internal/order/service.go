package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/repo/postgres"
)

// DriverLedger applies the driver-side effects of a transition inside the caller's transaction.
type DriverLedger interface {
	Engage(ctx context.Context, ext sqlx.ExtContext, driverID string, orderID uuid.UUID) error
	Release(ctx context.Context, ext sqlx.ExtContext, driverID string) error
	SettleDelivery(ctx context.Context, ext sqlx.ExtContext, o *Order) error
	RecomputeRating(ctx context.Context, ext sqlx.ExtContext, driverID string) (float64, error)
}

// IssueTracker opens and resolves driver issues tied to an order.
type IssueTracker interface {
	OpenCancellation(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID, driverID, description string) error
	ResolveForOrder(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) error
}

// Locator resolves a driver's latest known position.
type Locator interface {
	LatestLocation(ctx context.Context, driverID string) (common.Location, bool)
}

type Notifier interface {
	PublishJobStatus(driverID string, payload any)
}

type Service interface {
	Create(ctx context.Context, actor common.Actor, in CreateOrderInput) (*Order, error)
	Get(ctx context.Context, actor common.Actor, id uuid.UUID) (*Order, error)
	List(ctx context.Context, status *Status, page, limit int) ([]*Order, int, error)
	ListByDriver(ctx context.Context, driverID string) ([]*Order, error)
	ListPendingIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
	Transition(ctx context.Context, req TransitionRequest) (*Order, error)
	Rate(ctx context.Context, actor common.Actor, id uuid.UUID, rating int) (*Order, error)
}

type Config struct {
	GeofenceRadiusM float64
}

type service struct {
	repo     Repository
	db       sqlx.ExtContext
	tx       postgres.Transactor
	ledger   DriverLedger
	issues   IssueTracker
	locator  Locator
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

type Deps struct {
	Repo     Repository
	DB       sqlx.ExtContext
	Tx       postgres.Transactor
	Ledger   DriverLedger
	Issues   IssueTracker
	Locator  Locator
	Notifier Notifier
	Clock    func() time.Time
}

func NewOrderService(deps Deps, cfg Config) Service {
	if cfg.GeofenceRadiusM <= 0 {
		cfg.GeofenceRadiusM = common.GeofenceRadiusMeters
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     deps.Repo,
		db:       deps.DB,
		tx:       deps.Tx,
		ledger:   deps.Ledger,
		issues:   deps.Issues,
		locator:  deps.Locator,
		notifier: deps.Notifier,
		cfg:      cfg,
		now:      now,
	}
}

func storeError(id uuid.UUID, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainerrors.OrderNotFound(id.String())
	}
	return domainerrors.NewUnavailable("order store unavailable", err)
}

// -------------------------------------------------------------------------------------------------
func (s *service) Create(ctx context.Context, actor common.Actor, in CreateOrderInput) (*Order, error) {
	if !actor.IsManager() {
		return nil, domainerrors.OrderManagerOnly("create orders")
	}
	if in.Pickup == nil || in.Delivery == nil {
		return nil, domainerrors.NewValidation("pickup and delivery locations are required")
	}
	if err := in.Pickup.Validate(); err != nil {
		return nil, domainerrors.NewValidation("pickup: " + err.Error())
	}
	if err := in.Delivery.Validate(); err != nil {
		return nil, domainerrors.NewValidation("delivery: " + err.Error())
	}
	if in.PaymentType != "" && !in.PaymentType.Valid() {
		return nil, domainerrors.NewValidation("payment_type must be EFT or CASH")
	}
	if in.OrderValue < 0 || in.DeliveryFee < 0 || in.DriverPay < 0 {
		return nil, domainerrors.NewValidation("monetary amounts must not be negative")
	}
	if in.EstimatedTimeMinutes != nil && *in.EstimatedTimeMinutes <= 0 {
		return nil, domainerrors.NewValidation("estimated_time_minutes must be positive")
	}

	o := NewOrder(actor.ID, in, s.now())
	if err := s.repo.Create(ctx, s.db, o); err != nil {
		return nil, domainerrors.NewUnavailable("failed to create order", err)
	}
	return o, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) Get(ctx context.Context, actor common.Actor, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, storeError(id, err)
	}
	if actor.IsDriver() && !o.IsAssignedTo(actor.ID) {
		return nil, domainerrors.OrderNotAssignedToDriver()
	}
	return o, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) List(ctx context.Context, status *Status, page, limit int) ([]*Order, int, error) {
	if status != nil && !status.Valid() {
		return nil, 0, domainerrors.NewValidation("unknown status " + string(*status))
	}
	orders, total, err := s.repo.ListAll(ctx, s.db, status, page, limit)
	if err != nil {
		return nil, 0, domainerrors.NewUnavailable("failed to list orders", err)
	}
	return orders, total, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) ListByDriver(ctx context.Context, driverID string) ([]*Order, error) {
	orders, err := s.repo.ListByDriver(ctx, s.db, driverID)
	if err != nil {
		return nil, domainerrors.NewUnavailable("failed to list orders", err)
	}
	return orders, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) ListPendingIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.ListPendingIDs(ctx, s.db, limit)
	if err != nil {
		return nil, domainerrors.NewUnavailable("failed to list pending orders", err)
	}
	return ids, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) Transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	if !req.Target.Valid() {
		return nil, domainerrors.NewValidation("unknown status " + string(req.Target))
	}
	if req.Expected != "" && !req.Expected.Valid() {
		return nil, domainerrors.NewValidation("unknown expected status " + string(req.Expected))
	}
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return nil, domainerrors.NewValidation(err.Error())
		}
	}

	driverID := req.DriverID
	if req.Target == StatusAssigned && driverID == "" && req.Actor.IsDriver() {
		driverID = req.Actor.ID
	}

	var (
		updated *Order
		prev    Status
	)
	err := s.tx.WithinTx(ctx, func(tx sqlx.ExtContext) error {
		o, err := s.repo.GetByIDForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return storeError(req.OrderID, err)
		}
		prev = o.Status

		if err := o.Authorize(req.Actor, req.Target, driverID); err != nil {
			return err
		}
		if req.Expected != "" && o.Status != req.Expected {
			return domainerrors.OrderInvalidTransition(string(o.Status), string(req.Target))
		}
		if !CanTransition(o.Status, req.Target) {
			return domainerrors.OrderInvalidTransition(string(o.Status), string(req.Target))
		}
		if err := s.checkGeofence(ctx, o, req); err != nil {
			return err
		}

		releasedDriver := ""
		if o.AssignedDriverID != nil {
			releasedDriver = *o.AssignedDriverID
		}

		if err := o.Apply(req.Target, req.Actor, driverID, s.now()); err != nil {
			return err
		}

		ok, err := s.repo.UpdateTransition(ctx, tx, o, prev)
		if err != nil {
			return domainerrors.NewUnavailable("failed to update order", err)
		}
		if !ok {
			return domainerrors.OrderInvalidTransition(string(prev), string(req.Target))
		}

		if err := s.applySideEffects(ctx, tx, o, prev, releasedDriver); err != nil {
			return err
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(updated, prev)
	return updated, nil
}

func (s *service) applySideEffects(ctx context.Context, tx sqlx.ExtContext, o *Order, prev Status, previousDriver string) error {
	switch o.Status {
	case StatusAssigned:
		if err := s.ledger.Engage(ctx, tx, *o.AssignedDriverID, o.ID); err != nil {
			return err
		}
	case StatusDelivered:
		if err := s.ledger.SettleDelivery(ctx, tx, o); err != nil {
			return err
		}
		if err := s.issues.ResolveForOrder(ctx, tx, o.ID); err != nil {
			return domainerrors.NewUnavailable("failed to resolve order issues", err)
		}
	case StatusCancelled:
		if err := s.issues.ResolveForOrder(ctx, tx, o.ID); err != nil {
			return domainerrors.NewUnavailable("failed to resolve order issues", err)
		}
		if prev == StatusPending || previousDriver == "" {
			return nil
		}
		if err := s.ledger.Release(ctx, tx, previousDriver); err != nil {
			return err
		}
		// opened after the sweep so it stays OPEN for the manager to review
		desc := "order cancelled by " + *o.CancelledBy + " while " + string(prev)
		if err := s.issues.OpenCancellation(ctx, tx, o.ID, previousDriver, desc); err != nil {
			return domainerrors.NewUnavailable("failed to record cancellation issue", err)
		}
	}
	return nil
}

func (s *service) checkGeofence(ctx context.Context, o *Order, req TransitionRequest) error {
	target, label, gated := GeofenceTarget(o, req.Target)
	if !gated {
		return nil
	}

	loc, ok := s.resolveLocation(ctx, o, req)
	if !ok {
		return domainerrors.LocationRequired(label)
	}
	within, distance := common.WithinRadius(loc, target, s.cfg.GeofenceRadiusM)
	if !within {
		return domainerrors.TooFarFromTarget(label, distance, s.cfg.GeofenceRadiusM)
	}
	return nil
}

// resolveLocation prefers the position sent with the request, then the
// latest position known for the driver doing the job.
func (s *service) resolveLocation(ctx context.Context, o *Order, req TransitionRequest) (common.Location, bool) {
	if req.Location != nil {
		return *req.Location, true
	}
	if s.locator == nil {
		return common.Location{}, false
	}

	driverID := req.Actor.ID
	if req.Actor.IsManager() {
		if o.AssignedDriverID == nil {
			return common.Location{}, false
		}
		driverID = *o.AssignedDriverID
	}
	return s.locator.LatestLocation(ctx, driverID)
}

func (s *service) publish(o *Order, prev Status) {
	if s.notifier == nil || o == nil {
		return
	}
	driverID := ""
	if o.AssignedDriverID != nil {
		driverID = *o.AssignedDriverID
	}
	s.notifier.PublishJobStatus(driverID, JobStatusPayload{
		OrderID:  o.ID,
		Status:   o.Status,
		Previous: prev,
		Order:    o,
	})
}

// -------------------------------------------------------------------------------------------------
func (s *service) Rate(ctx context.Context, actor common.Actor, id uuid.UUID, rating int) (*Order, error) {
	if !actor.IsManager() {
		return nil, domainerrors.OrderManagerOnly("rate deliveries")
	}

	var rated *Order
	err := s.tx.WithinTx(ctx, func(tx sqlx.ExtContext) error {
		o, err := s.repo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return storeError(id, err)
		}
		if err := o.Rate(rating, s.now()); err != nil {
			return err
		}
		if err := s.repo.UpdateRating(ctx, tx, o); err != nil {
			return domainerrors.NewUnavailable("failed to rate order", err)
		}
		if o.AssignedDriverID != nil {
			if _, err := s.ledger.RecomputeRating(ctx, tx, *o.AssignedDriverID); err != nil {
				return err
			}
		}
		rated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rated, nil
}
