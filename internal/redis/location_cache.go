package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"dispatch-engine/internal/common"
	"dispatch-engine/internal/tracking"
)

type CachedDriverLocation struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverLocationCache keeps each driver's last reported position so the
// geofence can still find it after a restart or a dropped socket.
type DriverLocationCache struct {
	client *goredis.Client
	ttl    time.Duration
}

var (
	_ tracking.Sink      = (*DriverLocationCache)(nil)
	_ tracking.LastKnown = (*DriverLocationCache)(nil)
)

func NewDriverLocationCache(client *goredis.Client, ttlSeconds int) *DriverLocationCache {
	return &DriverLocationCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func (c *DriverLocationCache) Set(ctx context.Context, driverID string, loc CachedDriverLocation) error {
	bytes, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal driver location: %w", err)
	}
	return c.client.Set(ctx, driverLocationKey(driverID), bytes, c.ttl).Err()
}

func (c *DriverLocationCache) Get(ctx context.Context, driverID string) (*CachedDriverLocation, error) {
	bytes, err := c.client.Get(ctx, driverLocationKey(driverID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get driver location: %w", err)
	}

	var loc CachedDriverLocation
	if err := json.Unmarshal(bytes, &loc); err != nil {
		return nil, fmt.Errorf("unmarshal driver location: %w", err)
	}
	return &loc, nil
}

func (c *DriverLocationCache) LastLocation(ctx context.Context, driverID string) (common.Location, bool, error) {
	cached, err := c.Get(ctx, driverID)
	if err != nil || cached == nil {
		return common.Location{}, false, err
	}
	return common.NewLocation(cached.Lat, cached.Lng), true, nil
}

// Handle stores the positioned record carried by a hub event.
func (c *DriverLocationCache) Handle(ctx context.Context, e tracking.Event) error {
	rec, ok := recordOf(e)
	if !ok || !rec.Positioned {
		return nil
	}
	return c.Set(ctx, rec.DriverID, CachedDriverLocation{
		Lat:       rec.Latitude,
		Lng:       rec.Longitude,
		Status:    string(rec.Status),
		Timestamp: rec.Timestamp,
	})
}

func recordOf(e tracking.Event) (tracking.LocationRecord, bool) {
	switch p := e.Payload.(type) {
	case tracking.LocationRecord:
		return p, true
	case tracking.ConnectionPayload:
		if p.Record != nil {
			return *p.Record, true
		}
	}
	return tracking.LocationRecord{}, false
}

func driverLocationKey(driverID string) string {
	return fmt.Sprintf("driver:location:%s", driverID)
}
