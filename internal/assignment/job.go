package assignment

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/order"
)

const pendingBatch = 50

// AutoAssignJob periodically hands PENDING orders to the best ranked driver.
type AutoAssignJob struct {
	assigner Service
	orders   order.Service
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewAutoAssignJob(assigner Service, orders order.Service, schedule string, logger *slog.Logger) *AutoAssignJob {
	return &AutoAssignJob{
		assigner: assigner,
		orders:   orders,
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		timeout:  10 * time.Second,
		logger:   logger.With("component", "auto_assign_job"),
	}
}

func (j *AutoAssignJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.tick); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("auto-assign job started", "schedule", j.schedule)
	return nil
}

// Stop waits for a running tick to finish.
func (j *AutoAssignJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("auto-assign job stopped")
}

func (j *AutoAssignJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	j.RunOnce(ctx)
}

// RunOnce assigns as many pending orders as it can and returns how many it assigned.
func (j *AutoAssignJob) RunOnce(ctx context.Context) int {
	ids, err := j.orders.ListPendingIDs(ctx, pendingBatch)
	if err != nil {
		j.logger.ErrorContext(ctx, "failed to list pending orders", "error", err)
		return 0
	}

	assigned := 0
	for _, id := range ids {
		o, err := j.assigner.AutoAssign(ctx, id)
		switch {
		case err == nil:
			assigned++
			j.logger.InfoContext(ctx, "order auto-assigned",
				"order_id", id.String(),
				"driver_id", *o.AssignedDriverID,
			)
		case domainerrors.Is(err, domainerrors.ErrNoDriversAvailable):
			// nobody free, later orders will not find anyone either
			return assigned
		case domainerrors.Is(err, domainerrors.ErrInvalidTransition):
			// taken by someone else since the listing
		default:
			j.logger.ErrorContext(ctx, "auto-assign failed", "order_id", id.String(), "error", err)
		}
	}
	return assigned
}
