package rmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dispatch-engine/internal/tracking"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	declareErr error
	publishErr error
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if f.declareErr != nil {
		return f.declareErr
	}
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestNewEventExporter_DeclaresTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	if _, err := NewEventExporter(ch, "dispatch.events"); err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "dispatch.events:topic" {
		t.Fatalf("declared %v", ch.declared)
	}

	ch = &fakeChannel{declareErr: errors.New("access refused")}
	if _, err := NewEventExporter(ch, "dispatch.events"); err == nil {
		t.Fatal("expected declare error")
	}
}

func TestEventExporter_Handle(t *testing.T) {
	ch := &fakeChannel{}
	exp, err := NewEventExporter(ch, "dispatch.events")
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}

	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	e := tracking.Event{
		Type:      tracking.EventLocationUpdate,
		DriverID:  "drv-1",
		Payload:   tracking.LocationRecord{DriverID: "drv-1", Latitude: 1, Longitude: 2, Positioned: true},
		Timestamp: at,
	}
	if err := exp.Handle(context.Background(), e); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(ch.published))
	}
	p := ch.published[0]
	if p.exchange != "dispatch.events" || p.key != "dispatch.location-update.drv-1" {
		t.Fatalf("published to %s / %s", p.exchange, p.key)
	}
	if p.msg.ContentType != "application/json" || p.msg.Type != "location-update" || !p.msg.Timestamp.Equal(at) {
		t.Fatalf("unexpected publishing %+v", p.msg)
	}

	var wire map[string]any
	if err := json.Unmarshal(p.msg.Body, &wire); err != nil {
		t.Fatalf("body: %v", err)
	}
	if wire["type"] != "location-update" || wire["driverId"] != "drv-1" || wire["timestamp"] != "2026-04-02T10:00:00.000Z" {
		t.Fatalf("unexpected body %s", p.msg.Body)
	}
}

func TestEventExporter_PublishError(t *testing.T) {
	ch := &fakeChannel{}
	exp, err := NewEventExporter(ch, "x")
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	ch.publishErr = amqp.ErrClosed

	err = exp.Handle(context.Background(), tracking.Event{Type: tracking.EventPong})
	if !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("expected wrapped ErrClosed, got %v", err)
	}
}

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		e    tracking.Event
		want string
	}{
		{tracking.Event{Type: tracking.EventJobStatusUpdate, DriverID: "drv-7"}, "dispatch.job-status-update.drv-7"},
		{tracking.Event{Type: tracking.EventJobStatusUpdate}, "dispatch.job-status-update.none"},
		{tracking.Event{Type: tracking.EventDriverConnected, DriverID: "a.b"}, "dispatch.driver-connected.a_b"},
	}
	for _, tt := range tests {
		if got := RoutingKey(tt.e); got != tt.want {
			t.Errorf("RoutingKey(%+v) = %s, want %s", tt.e, got, tt.want)
		}
	}
}
