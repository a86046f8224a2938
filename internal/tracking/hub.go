package tracking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
)

const (
	DefaultConnBuffer = 256
	DefaultSinkBuffer = 1024
)

type Role string

const (
	RoleObserver Role = "observer"
	RoleDriver   Role = "driver"
)

// Sink receives every fanned-out event off the hot path, from Hub.Run.
type Sink interface {
	Handle(ctx context.Context, e Event) error
}

// Conn is one registered transport connection. The transport drains Events()
// until the channel is closed by Disconnect.
type Conn struct {
	ID       string
	Role     Role
	DriverID string

	epoch   uint64
	send    chan Event
	closed  bool
	dropped atomic.Uint64
}

func (c *Conn) Events() <-chan Event { return c.send }

func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

type binding struct {
	connID string
	epoch  uint64
}

type Stats struct {
	Drivers   int    `json:"drivers"`
	Observers int    `json:"observers"`
	Records   int    `json:"records"`
	Dropped   uint64 `json:"dropped"`
	SinkDrops uint64 `json:"sink_drops"`
}

// Hub is the in-memory registry of driver positions and live connections.
// All state sits behind one mutex; fan-out never blocks on a slow reader.
type Hub struct {
	mu       sync.Mutex
	records  map[string]*LocationRecord
	bindings map[string]binding
	epochs   map[string]uint64
	conns    map[string]*Conn

	connBuffer int
	sinks      []Sink
	sinkQueue  chan Event
	now        func() time.Time
	logger     *slog.Logger

	dropped   atomic.Uint64
	sinkDrops atomic.Uint64
}

type Option func(*Hub)

func WithConnBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.connBuffer = n
		}
	}
}

func WithSinks(buffer int, sinks ...Sink) Option {
	return func(h *Hub) {
		if buffer <= 0 {
			buffer = DefaultSinkBuffer
		}
		h.sinks = append(h.sinks, sinks...)
		h.sinkQueue = make(chan Event, buffer)
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		records:    make(map[string]*LocationRecord),
		bindings:   make(map[string]binding),
		epochs:     make(map[string]uint64),
		conns:      make(map[string]*Conn),
		connBuffer: DefaultConnBuffer,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(slog.String("component", "hub"))
	return h
}

// -------------------------------------------------------------------------------------------------
func (h *Hub) RegisterObserver(connID string) (*Conn, error) {
	if connID == "" {
		return nil, domainerrors.NewValidation("connection id is required")
	}

	h.mu.Lock()
	if _, exists := h.conns[connID]; exists {
		h.mu.Unlock()
		return nil, domainerrors.NewConflict("connection " + connID + " is already registered")
	}
	c := h.newConnLocked(connID, RoleObserver, "", 0)
	// seed the observer's view before any later fan-out reaches its queue
	c.send <- Event{Type: EventSnapshot, Payload: h.snapshotLocked(), Timestamp: h.now()}
	h.mu.Unlock()

	h.logger.Debug("observer registered", slog.String("conn_id", connID))
	return c, nil
}

// RegisterDriver binds connID to driverID. A newer connection supersedes the
// previous one; the LocationRecord is kept, and one left OFFLINE by an
// earlier disconnect comes back ONLINE.
func (h *Hub) RegisterDriver(connID, driverID string) (*Conn, error) {
	if connID == "" || driverID == "" {
		return nil, domainerrors.NewValidation("connection id and driver id are required")
	}

	now := h.now()
	h.mu.Lock()
	if _, exists := h.conns[connID]; exists {
		h.mu.Unlock()
		return nil, domainerrors.NewConflict("connection " + connID + " is already registered")
	}
	h.epochs[driverID]++
	epoch := h.epochs[driverID]
	previous := h.bindings[driverID].connID

	c := h.newConnLocked(connID, RoleDriver, driverID, epoch)
	h.bindings[driverID] = binding{connID: connID, epoch: epoch}
	if rec, ok := h.records[driverID]; ok {
		rec.ConnectionID = connID
		if rec.Status == StatusOffline {
			rec.Status = StatusOnline
			rec.LastSeen = nil
		}
	}

	ev := Event{Type: EventDriverConnected, DriverID: driverID, Payload: ConnectionPayload{ConnectionID: connID}, Timestamp: now}
	drops := h.fanOutLocked(ev, "")
	h.mu.Unlock()

	h.logger.Info("driver connected",
		slog.String("driver_id", driverID),
		slog.String("conn_id", connID),
		slog.Uint64("epoch", epoch),
		slog.String("superseded", previous),
	)
	h.afterFanOut(ev, drops)
	return c, nil
}

func (h *Hub) newConnLocked(connID string, role Role, driverID string, epoch uint64) *Conn {
	c := &Conn{
		ID:       connID,
		Role:     role,
		DriverID: driverID,
		epoch:    epoch,
		send:     make(chan Event, h.connBuffer),
	}
	h.conns[connID] = c
	return c
}

// -------------------------------------------------------------------------------------------------
func (h *Hub) UpdateLocation(driverID string, u LocationUpdate) error {
	if err := validateDriver(driverID); err != nil {
		return h.rejected(driverID, err)
	}
	if err := common.ValidateLatLng(u.Latitude, u.Longitude); err != nil {
		return h.rejected(driverID, domainerrors.NewValidation(err.Error()))
	}
	if u.Status != "" && !u.Status.Valid() {
		return h.rejected(driverID, domainerrors.NewValidation("unknown driver status "+string(u.Status)))
	}
	if u.Heading != nil && (*u.Heading < 0 || *u.Heading > 360) {
		return h.rejected(driverID, domainerrors.NewValidation("heading must be between 0 and 360"))
	}

	now := h.now()
	h.mu.Lock()
	rec := h.upsertLocked(driverID)
	rec.Latitude = u.Latitude
	rec.Longitude = u.Longitude
	rec.Positioned = true
	if u.Status != "" {
		rec.Status = u.Status
	}
	if u.Heading != nil {
		heading := *u.Heading
		rec.Heading = &heading
	}
	rec.Timestamp = now

	ev := Event{Type: EventLocationUpdate, DriverID: driverID, Payload: rec.clone(), Timestamp: now}
	drops := h.fanOutLocked(ev, "")
	h.mu.Unlock()

	h.afterFanOut(ev, drops)
	return nil
}

// UpdateStatus changes the driver's status and keeps the last position.
func (h *Hub) UpdateStatus(driverID string, status DriverStatus) error {
	if err := validateDriver(driverID); err != nil {
		return h.rejected(driverID, err)
	}
	if !status.Valid() {
		return h.rejected(driverID, domainerrors.NewValidation("unknown driver status "+string(status)))
	}

	now := h.now()
	h.mu.Lock()
	rec := h.upsertLocked(driverID)
	rec.Status = status
	rec.Timestamp = now

	ev := Event{Type: EventStatusChange, DriverID: driverID, Payload: rec.clone(), Timestamp: now}
	drops := h.fanOutLocked(ev, "")
	h.mu.Unlock()

	h.afterFanOut(ev, drops)
	return nil
}

// Ping records a heartbeat. The returned pong is for the sending connection only.
func (h *Hub) Ping(driverID string, hb Heartbeat) (Pong, error) {
	if err := validateDriver(driverID); err != nil {
		return Pong{}, h.rejected(driverID, err)
	}
	if (hb.Latitude == nil) != (hb.Longitude == nil) {
		return Pong{}, h.rejected(driverID, domainerrors.NewValidation("latitude and longitude must be sent together"))
	}
	if hb.Latitude != nil {
		if err := common.ValidateLatLng(*hb.Latitude, *hb.Longitude); err != nil {
			return Pong{}, h.rejected(driverID, domainerrors.NewValidation(err.Error()))
		}
	}
	if hb.Status != "" && !hb.Status.Valid() {
		return Pong{}, h.rejected(driverID, domainerrors.NewValidation("unknown driver status "+string(hb.Status)))
	}

	now := h.now()
	h.mu.Lock()
	rec := h.upsertLocked(driverID)
	if hb.Latitude != nil {
		rec.Latitude = *hb.Latitude
		rec.Longitude = *hb.Longitude
		rec.Positioned = true
	}
	if hb.Status != "" {
		rec.Status = hb.Status
	}
	pinged := now
	rec.LastPing = &pinged
	rec.Timestamp = now

	ev := Event{Type: EventDriverActivity, DriverID: driverID, Payload: rec.clone(), Timestamp: now}
	drops := h.fanOutLocked(ev, "")
	h.mu.Unlock()

	h.afterFanOut(ev, drops)
	return Pong{ServerTime: now.UnixMilli(), ClientTime: hb.ClientTime}, nil
}

// Disconnect unbinds connID and closes its queue. Only the driver's current
// connection marks the driver OFFLINE; a superseded one is dropped silently.
// It reports whether the driver went offline.
func (h *Hub) Disconnect(connID string) bool {
	now := h.now()

	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, connID)
	c.closed = true
	close(c.send)

	if c.Role != RoleDriver {
		h.mu.Unlock()
		h.logger.Debug("observer disconnected", slog.String("conn_id", connID))
		return false
	}

	current, bound := h.bindings[c.DriverID]
	if !bound || current.connID != connID || current.epoch != c.epoch {
		h.mu.Unlock()
		h.logger.Info("superseded driver connection closed",
			slog.String("driver_id", c.DriverID),
			slog.String("conn_id", connID),
			slog.Uint64("epoch", c.epoch),
		)
		return false
	}
	delete(h.bindings, c.DriverID)

	seen := now
	payload := ConnectionPayload{ConnectionID: connID, LastSeen: &seen}
	if rec, ok := h.records[c.DriverID]; ok {
		rec.Status = StatusOffline
		rec.LastSeen = &seen
		rec.Timestamp = now
		snap := rec.clone()
		payload.Record = &snap
	}

	ev := Event{Type: EventDriverDisconnected, DriverID: c.DriverID, Payload: payload, Timestamp: now}
	drops := h.fanOutLocked(ev, "")
	h.mu.Unlock()

	h.logger.Info("driver disconnected", slog.String("driver_id", c.DriverID), slog.String("conn_id", connID))
	h.afterFanOut(ev, drops)
	return true
}

// -------------------------------------------------------------------------------------------------
// Publish fans e out to observers and, when e names a driver, to that driver's connection.
func (h *Hub) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now()
	}

	h.mu.Lock()
	target := ""
	if e.DriverID != "" {
		target = h.bindings[e.DriverID].connID
	}
	drops := h.fanOutLocked(e, target)
	h.mu.Unlock()

	h.afterFanOut(e, drops)
}

func (h *Hub) PublishJobStatus(driverID string, payload any) {
	h.Publish(Event{Type: EventJobStatusUpdate, DriverID: driverID, Payload: payload})
}

// SendToDriver queues e for the driver's current connection only.
func (h *Hub) SendToDriver(driverID string, e Event) bool {
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.bindings[driverID]
	if !ok {
		return false
	}
	c := h.conns[b.connID]
	if c == nil || c.closed {
		return false
	}
	return h.trySendLocked(c, e)
}

func (h *Hub) Snapshot() []LocationRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Hub) Location(driverID string) (LocationRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.records[driverID]
	if !ok {
		return LocationRecord{}, false
	}
	return rec.clone(), true
}

func (h *Hub) Connected(driverID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.bindings[driverID]
	return ok
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{Records: len(h.records), Dropped: h.dropped.Load(), SinkDrops: h.sinkDrops.Load()}
	for _, c := range h.conns {
		if c.Role == RoleObserver {
			st.Observers++
		} else {
			st.Drivers++
		}
	}
	return st
}

// Run drains the sink queue until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.sinkQueue == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.sinkQueue:
			for _, s := range h.sinks {
				if err := s.Handle(ctx, ev); err != nil {
					h.logger.Warn("sink failed",
						slog.String("event", string(ev.Type)),
						slog.String("driver_id", ev.DriverID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// -------------------------------------------------------------------------------------------------
func (h *Hub) upsertLocked(driverID string) *LocationRecord {
	rec, ok := h.records[driverID]
	if !ok {
		rec = &LocationRecord{DriverID: driverID, Status: StatusOnline}
		h.records[driverID] = rec
	}
	if b, bound := h.bindings[driverID]; bound {
		rec.ConnectionID = b.connID
	}
	return rec
}

func (h *Hub) snapshotLocked() []LocationRecord {
	out := make([]LocationRecord, 0, len(h.records))
	for _, rec := range h.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

type drop struct {
	connID string
	total  uint64
}

// fanOutLocked offers e to every observer and to the connection named by
// alsoConn. It never blocks; full queues are reported back for logging
// once the lock is released.
func (h *Hub) fanOutLocked(e Event, alsoConn string) []drop {
	var drops []drop
	for _, c := range h.conns {
		if c.closed {
			continue
		}
		if c.Role != RoleObserver && c.ID != alsoConn {
			continue
		}
		if !h.trySendLocked(c, e) {
			drops = append(drops, drop{connID: c.ID, total: c.dropped.Load()})
		}
	}
	return drops
}

func (h *Hub) trySendLocked(c *Conn, e Event) bool {
	select {
	case c.send <- e:
		return true
	default:
		c.dropped.Add(1)
		h.dropped.Add(1)
		return false
	}
}

func (h *Hub) afterFanOut(e Event, drops []drop) {
	for _, d := range drops {
		h.logger.Warn("connection queue full, event dropped",
			slog.String("conn_id", d.connID),
			slog.String("event", string(e.Type)),
			slog.Uint64("dropped_total", d.total),
		)
	}

	if h.sinkQueue == nil {
		return
	}
	select {
	case h.sinkQueue <- e:
	default:
		h.sinkDrops.Add(1)
		h.logger.Warn("sink queue full, event dropped", slog.String("event", string(e.Type)))
	}
}

func (h *Hub) rejected(driverID string, err error) error {
	h.logger.Warn("rejected driver update", slog.String("driver_id", driverID), slog.String("error", err.Error()))
	return err
}

func validateDriver(driverID string) error {
	if driverID == "" {
		return domainerrors.NewValidation("driver id is required")
	}
	return nil
}
