package tracking

import (
	"encoding/json"
	"time"

	"dispatch-engine/internal/common"
)

type EventType string

const (
	EventSnapshot           EventType = "snapshot"
	EventLocationUpdate     EventType = "location-update"
	EventStatusChange       EventType = "status-change"
	EventDriverConnected    EventType = "driver-connected"
	EventDriverDisconnected EventType = "driver-disconnected"
	EventDriverActivity     EventType = "driver-activity"
	EventJobStatusUpdate    EventType = "job-status-update"
	EventPong               EventType = "pong"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is the unit fanned out to connections and handed to sinks.
type Event struct {
	Type      EventType `json:"type"`
	DriverID  string    `json:"driverId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		DriverID  string    `json:"driverId,omitempty"`
		Payload   any       `json:"payload,omitempty"`
		Timestamp string    `json:"timestamp"`
	}{
		Type:      e.Type,
		DriverID:  e.DriverID,
		Payload:   e.Payload,
		Timestamp: e.Timestamp.UTC().Format(timestampLayout),
	})
}

type DriverStatus string

const (
	StatusOnline  DriverStatus = "ONLINE"
	StatusOffline DriverStatus = "OFFLINE"
	StatusOnJob   DriverStatus = "ON_JOB"
	StatusBreak   DriverStatus = "BREAK"
)

func (s DriverStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusOnJob, StatusBreak:
		return true
	}
	return false
}

// LocationRecord is the latest known position and status of one driver.
type LocationRecord struct {
	DriverID     string       `json:"driverId"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Positioned   bool         `json:"positioned"`
	Status       DriverStatus `json:"status"`
	Heading      *float64     `json:"heading,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	ConnectionID string       `json:"connectionId,omitempty"`
	LastPing     *time.Time   `json:"lastPing,omitempty"`
	LastSeen     *time.Time   `json:"lastSeen,omitempty"`
}

func (r LocationRecord) Location() (common.Location, bool) {
	return common.NewLocation(r.Latitude, r.Longitude), r.Positioned
}

func (r LocationRecord) clone() LocationRecord {
	out := r
	if r.Heading != nil {
		h := *r.Heading
		out.Heading = &h
	}
	if r.LastPing != nil {
		p := *r.LastPing
		out.LastPing = &p
	}
	if r.LastSeen != nil {
		s := *r.LastSeen
		out.LastSeen = &s
	}
	return out
}

type LocationUpdate struct {
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Status    DriverStatus `json:"status,omitempty"`
	Heading   *float64     `json:"heading,omitempty"`
}

type Heartbeat struct {
	Status     DriverStatus `json:"status,omitempty"`
	Latitude   *float64     `json:"latitude,omitempty"`
	Longitude  *float64     `json:"longitude,omitempty"`
	ClientTime *int64       `json:"clientTime,omitempty"`
}

// Pong answers a heartbeat; the driver client derives round-trip latency from it.
type Pong struct {
	ServerTime int64  `json:"serverTime"`
	ClientTime *int64 `json:"clientTime,omitempty"`
}

type ConnectionPayload struct {
	ConnectionID string          `json:"connectionId"`
	LastSeen     *time.Time      `json:"lastSeen,omitempty"`
	Record       *LocationRecord `json:"record,omitempty"`
}
