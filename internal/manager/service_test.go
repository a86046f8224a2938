package manager_test

import (
	"context"
	"testing"
	"time"

	"dispatch-engine/internal/common"
	"dispatch-engine/internal/delivery"
	"dispatch-engine/internal/driver"
	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/issue"
	"dispatch-engine/internal/manager"
	"dispatch-engine/internal/order"
	"dispatch-engine/internal/repo/memory"
	"dispatch-engine/internal/tracking"
)

var mgr = common.Actor{Role: common.RoleManager, ID: "mgr-1"}

func setup(t *testing.T) (manager.Service, order.Service, *tracking.Hub) {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	store := memory.NewStore()
	store.Drivers().Put(driver.Driver{ID: "drv-1", Name: "drv-1", Status: driver.StatusOnline, Rating: driver.DefaultRating})
	hub := tracking.NewHub(tracking.WithClock(now))
	tracker := issue.NewTracker(store.Issues(), nil).WithClock(now)

	orders := order.NewOrderService(order.Deps{
		Repo:     store.Orders(),
		Tx:       store,
		Ledger:   delivery.NewLedger(store.Drivers(), store.Earnings()).WithClock(now),
		Issues:   tracker,
		Locator:  tracking.NewLocator(hub, nil),
		Notifier: hub,
		Clock:    now,
	}, order.Config{})

	return manager.NewService(hub, orders, tracker), orders, hub
}

func TestOverview_CountsOrdersIssuesAndConnections(t *testing.T) {
	ctx := context.Background()
	svc, orders, hub := setup(t)

	pickup, delivery := common.NewLocation(-26.2041, 28.0473), common.NewLocation(-26.1076, 28.0567)
	in := order.CreateOrderInput{
		Pickup:   &pickup,
		Delivery: &delivery,
	}
	if _, err := orders.Create(ctx, mgr, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	o, err := orders.Create(ctx, mgr, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, step := range []order.TransitionRequest{
		{OrderID: o.ID, Actor: mgr, Target: order.StatusAssigned, DriverID: "drv-1"},
		{OrderID: o.ID, Actor: mgr, Target: order.StatusCancelled},
	} {
		if _, err := orders.Transition(ctx, step); err != nil {
			t.Fatalf("%s: %v", step.Target, err)
		}
	}

	if _, err := hub.RegisterDriver("conn-1", "drv-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := hub.RegisterObserver("conn-2"); err != nil {
		t.Fatalf("register: %v", err)
	}

	ov, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Orders[order.StatusPending] != 1 || ov.Orders[order.StatusCancelled] != 1 || ov.Orders[order.StatusAssigned] != 0 {
		t.Fatalf("unexpected order counts %v", ov.Orders)
	}
	if ov.OpenIssues != 1 {
		t.Fatalf("expected 1 open issue, got %d", ov.OpenIssues)
	}
	if ov.Tracking.Drivers != 1 || ov.Tracking.Observers != 1 {
		t.Fatalf("unexpected tracking stats %+v", ov.Tracking)
	}

	list, err := svc.OpenIssues(ctx)
	if err != nil {
		t.Fatalf("issues: %v", err)
	}
	if len(list) != 1 || list[0].DriverID != "drv-1" || *list[0].OrderID != o.ID {
		t.Fatalf("unexpected issues %+v", list)
	}
}

func TestDriverLocation(t *testing.T) {
	ctx := context.Background()
	svc, _, hub := setup(t)

	if _, err := hub.RegisterDriver("conn-1", "drv-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := hub.UpdateLocation("drv-1", tracking.LocationUpdate{Latitude: -26.2, Longitude: 28.05}); err != nil {
		t.Fatalf("update: %v", err)
	}

	loc, err := svc.DriverLocation(ctx, "drv-1")
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if !loc.Connected || !loc.Positioned || loc.Latitude != -26.2 {
		t.Fatalf("unexpected location %+v", loc)
	}
	if got := svc.Locations(ctx); len(got) != 1 {
		t.Fatalf("expected 1 record in snapshot, got %d", len(got))
	}

	hub.Disconnect("conn-1")
	loc, err = svc.DriverLocation(ctx, "drv-1")
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.Connected || loc.Status != tracking.StatusOffline {
		t.Fatalf("expected disconnected OFFLINE record, got %+v", loc)
	}

	_, err = svc.DriverLocation(ctx, "ghost")
	if !domainerrors.Is(err, domainerrors.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
