package tracking

import (
	"context"

	"dispatch-engine/internal/common"
)

// LastKnown is a slower store of driver positions that outlives the process.
type LastKnown interface {
	LastLocation(ctx context.Context, driverID string) (common.Location, bool, error)
}

// Locator answers "where is this driver" from the hub first, then the last-known store.
type Locator struct {
	hub      *Hub
	fallback LastKnown
}

func NewLocator(hub *Hub, fallback LastKnown) *Locator {
	return &Locator{hub: hub, fallback: fallback}
}

func (l *Locator) LatestLocation(ctx context.Context, driverID string) (common.Location, bool) {
	if rec, ok := l.hub.Location(driverID); ok {
		if loc, positioned := rec.Location(); positioned {
			return loc, true
		}
	}
	if l.fallback == nil {
		return common.Location{}, false
	}
	loc, ok, err := l.fallback.LastLocation(ctx, driverID)
	if err != nil {
		l.hub.logger.Warn("last-known location lookup failed",
			"driver_id", driverID,
			"error", err.Error(),
		)
		return common.Location{}, false
	}
	return loc, ok
}
