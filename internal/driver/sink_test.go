package driver

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"dispatch-engine/internal/tracking"
)

type presenceCall struct {
	id       string
	lat, lng *float64
}

type recordingRepo struct {
	Repository
	presence []presenceCall
	statuses map[string]Status
}

func (r *recordingRepo) UpdatePresence(_ context.Context, _ sqlx.ExtContext, id string, lat, lng *float64, _ time.Time) error {
	r.presence = append(r.presence, presenceCall{id: id, lat: lat, lng: lng})
	return nil
}

func (r *recordingRepo) UpdateReportedStatus(_ context.Context, _ sqlx.ExtContext, id string, status Status) error {
	r.statuses[id] = status
	return nil
}

func TestPresenceSink(t *testing.T) {
	repo := &recordingRepo{statuses: map[string]Status{}}
	sink := NewPresenceSink(repo, nil)
	ctx := context.Background()

	events := []tracking.Event{
		{Type: tracking.EventLocationUpdate, DriverID: "a", Payload: tracking.LocationRecord{DriverID: "a", Latitude: 1, Longitude: 2, Positioned: true, Status: tracking.StatusOnline}},
		{Type: tracking.EventDriverActivity, DriverID: "b", Payload: tracking.LocationRecord{DriverID: "b", Status: tracking.StatusOnJob}},
		{Type: tracking.EventStatusChange, DriverID: "c", Payload: tracking.LocationRecord{DriverID: "c", Status: tracking.StatusBreak}},
		{Type: tracking.EventDriverDisconnected, DriverID: "d"},
		{Type: tracking.EventJobStatusUpdate, DriverID: "e"},
	}
	for _, e := range events {
		if err := sink.Handle(ctx, e); err != nil {
			t.Fatalf("handle %s: %v", e.Type, err)
		}
	}

	if len(repo.presence) != 2 {
		t.Fatalf("expected 2 presence writes, got %d", len(repo.presence))
	}
	if p := repo.presence[0]; p.lat == nil || *p.lat != 1 || *p.lng != 2 {
		t.Fatalf("expected a's position to be stored, got %+v", p)
	}
	if p := repo.presence[1]; p.lat != nil {
		t.Fatal("unpositioned activity must not overwrite the stored position")
	}

	want := map[string]Status{"a": StatusOnline, "c": StatusBreak, "d": StatusOffline}
	if len(repo.statuses) != len(want) {
		t.Fatalf("unexpected status writes %v", repo.statuses)
	}
	for id, st := range want {
		if repo.statuses[id] != st {
			t.Fatalf("expected %s for %s, got %s", st, id, repo.statuses[id])
		}
	}
}
