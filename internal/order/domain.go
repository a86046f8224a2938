package order

import (
	"math"
	"time"

	"github.com/google/uuid"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusEnRoute, StatusDelivered, StatusCancelled},
	StatusEnRoute:   {StatusDelivered, StatusCancelled},
	StatusDelivered: nil,
	StatusCancelled: nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsActive reports whether a driver holding an order in this status is busy.
func (s Status) IsActive() bool {
	switch s {
	case StatusAssigned, StatusAccepted, StatusPickedUp, StatusEnRoute:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (p PaymentType) Valid() bool {
	return p == PaymentEFT || p == PaymentCash
}

// EstimateMinutes derives a delivery estimate from the straight-line trip length.
func EstimateMinutes(pickup, delivery common.Location) int {
	km := common.HaversineDistance(pickup, delivery)
	return max(10, int(math.Round(km*6+8)))
}

// NewOrder builds a PENDING order; in must carry both locations.
func NewOrder(createdBy string, in CreateOrderInput, now time.Time) *Order {
	estimate := EstimateMinutes(*in.Pickup, *in.Delivery)
	if in.EstimatedTimeMinutes != nil {
		estimate = *in.EstimatedTimeMinutes
	}
	payment := in.PaymentType
	if payment == "" {
		payment = PaymentEFT
	}
	return &Order{
		ID:                   uuid.New(),
		CreatedBy:            createdBy,
		PickupLat:            in.Pickup.Lat,
		PickupLng:            in.Pickup.Lng,
		DeliveryLat:          in.Delivery.Lat,
		DeliveryLng:          in.Delivery.Lng,
		OrderValue:           in.OrderValue,
		DeliveryFee:          in.DeliveryFee,
		DriverPay:            in.DriverPay,
		PaymentType:          payment,
		EstimatedTimeMinutes: estimate,
		Status:               StatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func (o *Order) Pickup() common.Location {
	return common.NewLocation(o.PickupLat, o.PickupLng)
}

func (o *Order) Delivery() common.Location {
	return common.NewLocation(o.DeliveryLat, o.DeliveryLng)
}

func (o *Order) DistanceKM() float64 {
	return common.HaversineDistance(o.Pickup(), o.Delivery())
}

func (o *Order) IsAssignedTo(driverID string) bool {
	return o.AssignedDriverID != nil && *o.AssignedDriverID == driverID
}

// GeofenceTarget returns the point the actor must be near for the target status.
func GeofenceTarget(o *Order, target Status) (common.Location, string, bool) {
	switch target {
	case StatusPickedUp:
		return o.Pickup(), "pickup", true
	case StatusDelivered:
		return o.Delivery(), "delivery", true
	}
	return common.Location{}, "", false
}

// Authorize checks that actor may move o to target. driverID is the driver
// named for an assignment.
func (o *Order) Authorize(actor common.Actor, target Status, driverID string) error {
	if actor.IsManager() {
		return nil
	}
	if !actor.IsDriver() {
		return domainerrors.NewForbidden("unknown role")
	}

	if target == StatusAssigned {
		if driverID != "" && driverID != actor.ID {
			return domainerrors.NewForbidden("drivers may not assign orders to another driver")
		}
		return nil
	}

	if o.IsAssignedTo(actor.ID) {
		return nil
	}
	// an offered order without a bound driver may be claimed on acceptance
	if target == StatusAccepted && o.AssignedDriverID == nil {
		return nil
	}
	return domainerrors.OrderNotAssignedToDriver()
}

// Apply moves the order to target, stamping the timestamps the edge requires.
func (o *Order) Apply(target Status, actor common.Actor, driverID string, now time.Time) error {
	if !CanTransition(o.Status, target) {
		return domainerrors.OrderInvalidTransition(string(o.Status), string(target))
	}

	switch target {
	case StatusAssigned:
		if driverID == "" {
			return domainerrors.NewValidation("driver_id is required to assign an order")
		}
		o.AssignedDriverID = &driverID
	case StatusAccepted:
		if o.AssignedDriverID == nil && actor.IsDriver() {
			id := actor.ID
			o.AssignedDriverID = &id
		}
		o.AcceptedAt = &now
	case StatusPickedUp:
		o.PickedUpAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
		minutes := ActualTimeMinutes(o.startedAt(), now)
		o.ActualTimeMinutes = &minutes
	case StatusCancelled:
		by := actor.ID
		o.CancelledBy = &by
	}

	o.Status = target
	o.UpdatedAt = now
	return nil
}

// Rate records the manager rating on a delivered order.
func (o *Order) Rate(rating int, now time.Time) error {
	if o.Status != StatusDelivered {
		return domainerrors.OrderNotRateable(string(o.Status))
	}
	if rating < 1 || rating > 5 {
		return domainerrors.NewValidation("rating must be an integer between 1 and 5")
	}
	o.ManagerRating = &rating
	o.UpdatedAt = now
	return nil
}

func (o *Order) startedAt() time.Time {
	if o.AcceptedAt != nil {
		return *o.AcceptedAt
	}
	if o.PickedUpAt != nil {
		return *o.PickedUpAt
	}
	return o.CreatedAt
}

// ActualTimeMinutes rounds the elapsed time to whole minutes, never below one.
func ActualTimeMinutes(start, end time.Time) int {
	return max(1, int(math.Round(end.Sub(start).Minutes())))
}
