package assignment

import (
	"math"
	"testing"
	"time"

	"dispatch-engine/internal/common"
	"dispatch-engine/internal/driver"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/order"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pendingAt(pickup common.Location) *order.Order {
	delivery := common.OffsetNorth(pickup, 3000)
	return order.NewOrder("mgr-1", order.CreateOrderInput{
		Pickup:   &pickup,
		Delivery: &delivery,
	}, now)
}

func candidate(id string, at common.Location, rating float64, idle time.Duration) *driver.Driver {
	d := &driver.Driver{ID: id, Status: driver.StatusOnline, Rating: rating}
	d.SetPosition(at)
	seen := now.Add(-idle)
	d.LastActiveAt = &seen
	return d
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestRank_DocumentedExample(t *testing.T) {
	pickup := common.NewLocation(-26.2041, 28.0473)
	o := pendingAt(pickup)

	a := candidate("A", common.OffsetNorth(pickup, 5000), 5.0, 0)
	b := candidate("B", common.OffsetNorth(pickup, 1000), 3.0, 5*time.Hour)

	r, err := Rank(o, []*driver.Driver{a, b}, 3, now)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if r.Eligible != 2 || len(r.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d of %d", len(r.Candidates), r.Eligible)
	}
	if r.Candidates[0].Driver.ID != "B" || r.Candidates[1].Driver.ID != "A" {
		t.Fatalf("expected [B, A], got [%s, %s]", r.Candidates[0].Driver.ID, r.Candidates[1].Driver.ID)
	}

	gotB, gotA := r.Candidates[0], r.Candidates[1]
	if !near(gotA.DistanceScore, 50) || !near(gotA.RatingScore, 100) || !near(gotA.ActivityScore, 0) || !near(gotA.Score, 150) {
		t.Fatalf("A scored %+v", gotA)
	}
	if !near(gotB.DistanceScore, 90) || !near(gotB.RatingScore, 60) || !near(gotB.ActivityScore, 50) || !near(gotB.Score, 200) {
		t.Fatalf("B scored %+v", gotB)
	}
}

func TestRank_EmptyPool(t *testing.T) {
	_, err := Rank(pendingAt(common.NewLocation(0, 0)), nil, 3, now)
	if !domainerrors.Is(err, domainerrors.ErrNoDriversAvailable) {
		t.Fatalf("expected NO_DRIVERS_AVAILABLE, got %v", err)
	}
}

func TestRank_TruncatesAndReportsEligible(t *testing.T) {
	pickup := common.NewLocation(10, 10)
	var pool []*driver.Driver
	for i, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		pool = append(pool, candidate(id, common.OffsetNorth(pickup, float64(i)*1000), 4.0, 0))
	}

	r, err := Rank(pendingAt(pickup), pool, 0, now)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if r.Eligible != 5 {
		t.Fatalf("expected 5 eligible, got %d", r.Eligible)
	}
	if len(r.Candidates) != DefaultNotifyCount {
		t.Fatalf("expected default notify count %d, got %d", DefaultNotifyCount, len(r.Candidates))
	}
	for i, want := range []string{"d1", "d2", "d3"} {
		if r.Candidates[i].Driver.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, r.Candidates[i].Driver.ID)
		}
	}
}

func TestRank_TiesBreakByDriverID(t *testing.T) {
	pickup := common.NewLocation(10, 10)
	pool := []*driver.Driver{
		candidate("zulu", pickup, 4.0, time.Hour),
		candidate("alpha", pickup, 4.0, time.Hour),
	}

	r, err := Rank(pendingAt(pickup), pool, 2, now)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if r.Candidates[0].Driver.ID != "alpha" {
		t.Fatalf("expected alpha first, got %s", r.Candidates[0].Driver.ID)
	}
}

func TestRank_UnpositionedDriverMeasuredFromOrigin(t *testing.T) {
	pickup := common.NewLocation(1, 1)
	d := &driver.Driver{ID: "nowhere", Rating: 5}

	r, err := Rank(pendingAt(pickup), []*driver.Driver{d}, 1, now)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	c := r.Candidates[0]
	if want := common.HaversineDistance(pickup, common.NewLocation(0, 0)); !near(c.DistanceKM, want) {
		t.Fatalf("distance = %v, want %v", c.DistanceKM, want)
	}
	if c.DistanceScore != 0 {
		t.Fatalf("expected distance score clamped to 0, got %v", c.DistanceScore)
	}
	if c.ActivityScore != 100 {
		t.Fatalf("never-active driver should score 100 activity, got %v", c.ActivityScore)
	}
}

func TestActivityScore(t *testing.T) {
	tests := []struct {
		name string
		idle time.Duration
		want float64
	}{
		{"just active", 0, 0},
		{"half an hour", 30 * time.Minute, 5},
		{"capped", 48 * time.Hour, 100},
		{"future clock skew", -time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := now.Add(-tt.idle)
			if got := activityScore(&seen, now); !near(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRank_DoesNotMutateInputs(t *testing.T) {
	pickup := common.NewLocation(10, 10)
	o := pendingAt(pickup)
	d := candidate("d1", pickup, 4.2, time.Hour)
	beforeOrder, beforeDriver := *o, *d

	if _, err := Rank(o, []*driver.Driver{d}, 1, now); err != nil {
		t.Fatalf("rank: %v", err)
	}
	if o.Status != beforeOrder.Status || o.AssignedDriverID != nil {
		t.Fatal("order mutated")
	}
	if d.Status != beforeDriver.Status || d.Rating != beforeDriver.Rating {
		t.Fatal("driver mutated")
	}
}
