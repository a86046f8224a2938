package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dispatch-engine/internal/driver"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/earning"
	"dispatch-engine/internal/order"
)

// Ledger applies the driver side of order transitions: busy flags, delivery
// totals, earnings and rating. Every method runs inside the caller's
// transaction so the order write and its effects commit together.
type Ledger struct {
	drivers  driver.Repository
	earnings earning.Repository
	now      func() time.Time
}

func NewLedger(drivers driver.Repository, earnings earning.Repository) *Ledger {
	return &Ledger{drivers: drivers, earnings: earnings, now: time.Now}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// --------------------------------------------------------------
// Engage marks the driver ON_JOB for a fresh assignment of orderID. The
// driver row stays locked until commit, so of two assignments racing for the
// same driver the second sees ON_JOB and fails with CONFLICT.
func (l *Ledger) Engage(ctx context.Context, ext sqlx.ExtContext, driverID string, orderID uuid.UUID) error {
	d, err := l.drivers.GetByIDForUpdate(ctx, ext, driverID)
	if err != nil {
		return driver.StoreError(driverID, err)
	}
	busy, err := l.drivers.HasActiveOrder(ctx, ext, driverID, orderID)
	if err != nil {
		return domainerrors.NewUnavailable("failed to check driver orders", err)
	}
	if busy {
		return domainerrors.DriverNotAvailable(driverID, "active order")
	}
	if err := d.Engage(l.now()); err != nil {
		return err
	}
	if err := l.drivers.Update(ctx, ext, d); err != nil {
		return domainerrors.NewUnavailable("failed to engage driver", err)
	}
	return nil
}

// --------------------------------------------------------------
// Release frees the driver of a cancelled order.
func (l *Ledger) Release(ctx context.Context, ext sqlx.ExtContext, driverID string) error {
	d, err := l.drivers.GetByIDForUpdate(ctx, ext, driverID)
	if err != nil {
		return driver.StoreError(driverID, err)
	}
	d.Release(l.now())
	if err := l.drivers.Update(ctx, ext, d); err != nil {
		return domainerrors.NewUnavailable("failed to release driver", err)
	}
	return nil
}

// --------------------------------------------------------------
// SettleDelivery credits the driver for a delivered order and records the earning.
func (l *Ledger) SettleDelivery(ctx context.Context, ext sqlx.ExtContext, o *order.Order) error {
	if o.AssignedDriverID == nil || o.DeliveredAt == nil || o.ActualTimeMinutes == nil {
		return domainerrors.NewInternal("delivered order is missing driver or delivery time", nil)
	}
	driverID := *o.AssignedDriverID

	d, err := l.drivers.GetByIDForUpdate(ctx, ext, driverID)
	if err != nil {
		return driver.StoreError(driverID, err)
	}
	d.CompleteDelivery(o.DriverPay, l.now())
	if err := l.drivers.Update(ctx, ext, d); err != nil {
		return domainerrors.NewUnavailable("failed to update driver totals", err)
	}

	e := earning.New(driverID, o.ID, o.DriverPay, o.DistanceKM(), *o.ActualTimeMinutes, *o.DeliveredAt)
	if err := l.earnings.Create(ctx, ext, e); err != nil {
		return domainerrors.NewUnavailable("failed to record earning", err)
	}
	return nil
}

// --------------------------------------------------------------
// RecomputeRating sets the driver's rating to the mean of their manager ratings.
func (l *Ledger) RecomputeRating(ctx context.Context, ext sqlx.ExtContext, driverID string) (float64, error) {
	d, err := l.drivers.GetByIDForUpdate(ctx, ext, driverID)
	if err != nil {
		return 0, driver.StoreError(driverID, err)
	}
	mean, err := l.drivers.MeanRating(ctx, ext, driverID)
	if err != nil {
		return 0, domainerrors.NewUnavailable("failed to aggregate ratings", err)
	}
	d.ApplyRating(mean, l.now())
	if err := l.drivers.Update(ctx, ext, d); err != nil {
		return 0, domainerrors.NewUnavailable("failed to update driver rating", err)
	}
	return d.Rating, nil
}
