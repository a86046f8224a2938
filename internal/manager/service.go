package manager

import (
	"context"

	domainerrors "dispatch-engine/internal/errors"
	"dispatch-engine/internal/issue"
	"dispatch-engine/internal/order"
	"dispatch-engine/internal/tracking"
)

// LocationRegistry is the read side of the live location hub.
type LocationRegistry interface {
	Snapshot() []tracking.LocationRecord
	Location(driverID string) (tracking.LocationRecord, bool)
	Connected(driverID string) bool
	Stats() tracking.Stats
}

type IssueLister interface {
	ListOpen(ctx context.Context) ([]*issue.Issue, error)
}

type Overview struct {
	Tracking   tracking.Stats       `json:"tracking"`
	Orders     map[order.Status]int `json:"orders"`
	OpenIssues int                  `json:"open_issues"`
}

type DriverLocation struct {
	tracking.LocationRecord
	Connected bool `json:"connected"`
}

type Service interface {
	Locations(ctx context.Context) []tracking.LocationRecord
	DriverLocation(ctx context.Context, driverID string) (*DriverLocation, error)
	Overview(ctx context.Context) (*Overview, error)
	OpenIssues(ctx context.Context) ([]*issue.Issue, error)
}

var overviewStatuses = []order.Status{
	order.StatusPending,
	order.StatusAssigned,
	order.StatusAccepted,
	order.StatusPickedUp,
	order.StatusEnRoute,
	order.StatusDelivered,
	order.StatusCancelled,
}

type service struct {
	hub    LocationRegistry
	orders order.Service
	issues IssueLister
}

func NewService(hub LocationRegistry, orders order.Service, issues IssueLister) Service {
	return &service{hub: hub, orders: orders, issues: issues}
}

func (s *service) Locations(ctx context.Context) []tracking.LocationRecord {
	return s.hub.Snapshot()
}

func (s *service) DriverLocation(ctx context.Context, driverID string) (*DriverLocation, error) {
	rec, ok := s.hub.Location(driverID)
	if !ok {
		return nil, domainerrors.NewNotFound("driver location", driverID)
	}
	return &DriverLocation{LocationRecord: rec, Connected: s.hub.Connected(driverID)}, nil
}

func (s *service) Overview(ctx context.Context) (*Overview, error) {
	out := &Overview{
		Tracking: s.hub.Stats(),
		Orders:   make(map[order.Status]int, len(overviewStatuses)),
	}
	for _, st := range overviewStatuses {
		status := st
		_, total, err := s.orders.List(ctx, &status, 1, 1)
		if err != nil {
			return nil, err
		}
		out.Orders[st] = total
	}

	open, err := s.issues.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	out.OpenIssues = len(open)
	return out, nil
}

func (s *service) OpenIssues(ctx context.Context) ([]*issue.Issue, error) {
	return s.issues.ListOpen(ctx)
}
