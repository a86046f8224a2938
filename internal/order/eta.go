package order

import (
	"context"
	"math"

	"dispatch-engine/internal/common"
)

// FallbackSpeedKMH is the average speed assumed when no routing provider answers.
const FallbackSpeedKMH = 30.0

// RouteEstimator is satisfied by common.MapboxClient.
type RouteEstimator interface {
	GetRouteDistanceAndDuration(ctx context.Context, from, to common.Location) (float64, float64, error)
}

// NextStop is where the assigned driver is heading, if the order is in progress.
func (o *Order) NextStop() (common.Location, bool) {
	switch o.Status {
	case StatusAssigned, StatusAccepted:
		return o.Pickup(), true
	case StatusPickedUp, StatusEnRoute:
		return o.Delivery(), true
	}
	return common.Location{}, false
}

// EstimateETA asks the routing provider for the driving time and falls back
// to the straight-line distance at FallbackSpeedKMH.
func EstimateETA(ctx context.Context, routes RouteEstimator, from, to common.Location) float64 {
	if routes != nil {
		if _, minutes, err := routes.GetRouteDistanceAndDuration(ctx, from, to); err == nil {
			return math.Round(minutes*10) / 10
		}
	}
	minutes := common.HaversineDistance(from, to) / FallbackSpeedKMH * 60
	return math.Round(minutes*10) / 10
}
