package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dispatch-engine/internal/driver"
	"dispatch-engine/internal/earning"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/issue"
	"dispatch-engine/internal/order"
)

// -------------------------------------------------------------------------------------------------
type OrderRepository struct{ s *Store }

var _ order.Repository = (*OrderRepository)(nil)

func (r *OrderRepository) Create(_ context.Context, _ sqlx.ExtContext, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.data.orders[o.ID]; exists {
		return domainerrors.NewConflict("order " + o.ID.String() + " already exists")
	}
	r.s.data.orders[o.ID] = *o
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, _ sqlx.ExtContext, id uuid.UUID) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.data.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &o, nil
}

func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*order.Order, error) {
	return r.GetByID(ctx, ext, id)
}

func (r *OrderRepository) UpdateTransition(_ context.Context, _ sqlx.ExtContext, o *order.Order, prev order.Status) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.orders[o.ID]
	if !ok || stored.Status != prev {
		return false, nil
	}
	next := *o
	next.PickupLat, next.PickupLng = stored.PickupLat, stored.PickupLng
	next.DeliveryLat, next.DeliveryLng = stored.DeliveryLat, stored.DeliveryLng
	next.ManagerRating = stored.ManagerRating
	r.s.data.orders[o.ID] = next
	return true, nil
}

func (r *OrderRepository) UpdateRating(_ context.Context, _ sqlx.ExtContext, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.orders[o.ID]
	if !ok || stored.Status != order.StatusDelivered {
		return nil
	}
	stored.ManagerRating = o.ManagerRating
	stored.UpdatedAt = o.UpdatedAt
	r.s.data.orders[o.ID] = stored
	return nil
}

func (r *OrderRepository) ListAll(_ context.Context, _ sqlx.ExtContext, status *order.Status, page, limit int) ([]*order.Order, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var all []*order.Order
	for _, o := range r.s.data.orders {
		if status != nil && o.Status != *status {
			continue
		}
		o := o
		all = append(all, &o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page, limit), len(all), nil
}

func (r *OrderRepository) ListByDriver(_ context.Context, _ sqlx.ExtContext, driverID string) ([]*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*order.Order
	for _, o := range r.s.data.orders {
		if o.IsAssignedTo(driverID) {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *OrderRepository) ListPendingIDs(_ context.Context, _ sqlx.ExtContext, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var pending []order.Order
	for _, o := range r.s.data.orders {
		if o.Status == order.StatusPending {
			pending = append(pending, o)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })

	ids := make([]uuid.UUID, 0, len(pending))
	for i, o := range pending {
		if i == limit {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}

// -------------------------------------------------------------------------------------------------
type DriverRepository struct{ s *Store }

var _ driver.Repository = (*DriverRepository)(nil)

func (r *DriverRepository) Create(_ context.Context, _ sqlx.ExtContext, d *driver.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.data.drivers[d.ID]; exists {
		return domainerrors.DriverAlreadyExists(d.ID)
	}
	r.s.data.drivers[d.ID] = *d
	return nil
}

func (r *DriverRepository) GetByID(_ context.Context, _ sqlx.ExtContext, id string) (*driver.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.drivers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (r *DriverRepository) GetByIDForUpdate(ctx context.Context, ext sqlx.ExtContext, id string) (*driver.Driver, error) {
	return r.GetByID(ctx, ext, id)
}

func (r *DriverRepository) Update(_ context.Context, _ sqlx.ExtContext, d *driver.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.drivers[d.ID]
	if !ok {
		return nil
	}
	stored.Status = d.Status
	stored.TotalJobs = d.TotalJobs
	stored.TotalEarnings = d.TotalEarnings
	stored.Rating = d.Rating
	stored.UpdatedAt = d.UpdatedAt
	r.s.data.drivers[d.ID] = stored
	return nil
}

func (r *DriverRepository) UpdatePresence(_ context.Context, _ sqlx.ExtContext, id string, lat, lng *float64, seenAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.drivers[id]
	if !ok {
		return nil
	}
	if lat != nil && lng != nil {
		la, ln := *lat, *lng
		d.Latitude, d.Longitude = &la, &ln
	}
	seen := seenAt
	d.LastActiveAt = &seen
	r.s.data.drivers[id] = d
	return nil
}

func (r *DriverRepository) UpdateReportedStatus(_ context.Context, _ sqlx.ExtContext, id string, status driver.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.drivers[id]
	if !ok || d.Status == driver.StatusOnJob {
		return nil
	}
	d.Status = status
	r.s.data.drivers[id] = d
	return nil
}

func (r *DriverRepository) ListAll(_ context.Context, _ sqlx.ExtContext, status *driver.Status, page, limit int) ([]*driver.Driver, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var all []*driver.Driver
	for _, d := range r.s.data.drivers {
		if status != nil && d.Status != *status {
			continue
		}
		d := d
		all = append(all, &d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, page, limit), len(all), nil
}

func (r *DriverRepository) ListAvailable(_ context.Context, _ sqlx.ExtContext) ([]*driver.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	busy := make(map[string]bool)
	for _, o := range r.s.data.orders {
		if o.AssignedDriverID != nil && o.Status.IsActive() {
			busy[*o.AssignedDriverID] = true
		}
	}

	var out []*driver.Driver
	for _, d := range r.s.data.drivers {
		if d.Status == driver.StatusOnline && !busy[d.ID] {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *DriverRepository) HasActiveOrder(_ context.Context, _ sqlx.ExtContext, id string, exceptOrder uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, o := range r.s.data.orders {
		if o.ID != exceptOrder && o.Status.IsActive() && o.IsAssignedTo(id) {
			return true, nil
		}
	}
	return false, nil
}

func (r *DriverRepository) MeanRating(_ context.Context, _ sqlx.ExtContext, id string) (*float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var sum, n int
	for _, o := range r.s.data.orders {
		if o.Status == order.StatusDelivered && o.IsAssignedTo(id) && o.ManagerRating != nil {
			sum += *o.ManagerRating
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}
	mean := float64(sum) / float64(n)
	return &mean, nil
}

// Put stores d as-is, for seeding.
func (r *DriverRepository) Put(d driver.Driver) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.drivers[d.ID] = d
}

// -------------------------------------------------------------------------------------------------
type EarningRepository struct{ s *Store }

var _ earning.Repository = (*EarningRepository)(nil)

func (r *EarningRepository) Create(_ context.Context, _ sqlx.ExtContext, e *earning.Earning) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.earnings {
		if existing.OrderID == e.OrderID {
			return domainerrors.NewConflict("earning for order " + e.OrderID.String() + " already exists")
		}
	}
	r.s.data.earnings = append(r.s.data.earnings, *e)
	return nil
}

func (r *EarningRepository) ListByDriver(_ context.Context, _ sqlx.ExtContext, driverID string, since *time.Time) ([]*earning.Earning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*earning.Earning
	for _, e := range r.s.data.earnings {
		if e.DriverID != driverID || (since != nil && e.EarnedAt.Before(*since)) {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedAt.After(out[j].EarnedAt) })
	return out, nil
}

// -------------------------------------------------------------------------------------------------
type IssueRepository struct{ s *Store }

var _ issue.Repository = (*IssueRepository)(nil)

func (r *IssueRepository) Create(_ context.Context, _ sqlx.ExtContext, i *issue.Issue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.issues = append(r.s.data.issues, *i)
	return nil
}

func (r *IssueRepository) ResolveOpenByOrder(_ context.Context, _ sqlx.ExtContext, orderID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for idx, i := range r.s.data.issues {
		if i.Status == issue.StatusOpen && i.OrderID != nil && *i.OrderID == orderID {
			resolved := at
			i.Status = issue.StatusResolved
			i.ResolvedAt = &resolved
			r.s.data.issues[idx] = i
			n++
		}
	}
	return n, nil
}

func (r *IssueRepository) ListOpen(_ context.Context, _ sqlx.ExtContext) ([]*issue.Issue, error) {
	return r.list(func(i issue.Issue) bool { return i.Status == issue.StatusOpen }), nil
}

// All returns every issue, for inspection.
func (r *IssueRepository) All() []*issue.Issue {
	return r.list(func(issue.Issue) bool { return true })
}

func (r *IssueRepository) list(keep func(issue.Issue) bool) []*issue.Issue {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*issue.Issue
	for _, i := range r.s.data.issues {
		if keep(i) {
			i := i
			out = append(out, &i)
		}
	}
	return out
}
