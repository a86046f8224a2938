package driver

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"dispatch-engine/internal/tracking"
)

// PresenceSink persists hub activity onto the driver rows the candidate pool is read from.
type PresenceSink struct {
	repo Repository
	db   sqlx.ExtContext
}

func NewPresenceSink(repo Repository, db sqlx.ExtContext) *PresenceSink {
	return &PresenceSink{repo: repo, db: db}
}

func (s *PresenceSink) Handle(ctx context.Context, e tracking.Event) error {
	switch e.Type {
	case tracking.EventLocationUpdate, tracking.EventDriverActivity:
		rec, ok := e.Payload.(tracking.LocationRecord)
		if !ok {
			return nil
		}
		var lat, lng *float64
		if rec.Positioned {
			lat, lng = &rec.Latitude, &rec.Longitude
		}
		if err := s.repo.UpdatePresence(ctx, s.db, rec.DriverID, lat, lng, rec.Timestamp); err != nil {
			return fmt.Errorf("persist presence of %s: %w", rec.DriverID, err)
		}
		return s.reportStatus(ctx, rec.DriverID, rec.Status)

	case tracking.EventStatusChange:
		rec, ok := e.Payload.(tracking.LocationRecord)
		if !ok {
			return nil
		}
		return s.reportStatus(ctx, rec.DriverID, rec.Status)

	case tracking.EventDriverDisconnected:
		return s.reportStatus(ctx, e.DriverID, tracking.StatusOffline)
	}
	return nil
}

// ON_JOB belongs to dispatch and is never taken from the client.
func (s *PresenceSink) reportStatus(ctx context.Context, driverID string, status tracking.DriverStatus) error {
	if status == "" || status == tracking.StatusOnJob {
		return nil
	}
	if err := s.repo.UpdateReportedStatus(ctx, s.db, driverID, Status(status)); err != nil {
		return fmt.Errorf("persist status of %s: %w", driverID, err)
	}
	return nil
}
