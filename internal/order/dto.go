package order

import (
	"dispatch-engine/internal/common"

	"github.com/google/uuid"
)

type CreateOrderInput struct {
	Pickup               *common.Location `json:"pickup" binding:"required"`
	Delivery             *common.Location `json:"delivery" binding:"required"`
	OrderValue           float64          `json:"order_value" binding:"gte=0"`
	DeliveryFee          float64          `json:"delivery_fee" binding:"gte=0"`
	DriverPay            float64          `json:"driver_pay" binding:"gte=0"`
	PaymentType          PaymentType      `json:"payment_type"`
	EstimatedTimeMinutes *int             `json:"estimated_time_minutes,omitempty"`
}

type TransitionRequest struct {
	OrderID  uuid.UUID
	Actor    common.Actor
	Target   Status
	DriverID string
	Location *common.Location
	// Expected, when set, is the status the caller last saw. The transition
	// fails with INVALID_TRANSITION if the order has moved on since.
	Expected Status
}

type TransitionBody struct {
	Status         Status           `json:"status" binding:"required"`
	ExpectedStatus Status           `json:"expected_status,omitempty"`
	DriverID       string           `json:"driver_id,omitempty"`
	Location       *common.Location `json:"location,omitempty"`
}

type RateBody struct {
	Rating int `json:"rating" binding:"required"`
}

type OrderResponse struct {
	Order *Order `json:"order"`
}

type OrderDetailResponse struct {
	Order          *Order           `json:"order"`
	DriverLocation *common.Location `json:"driver_location,omitempty"`
	ETAMinutes     *float64         `json:"eta_minutes,omitempty"`
}

type ListResponse struct {
	Orders []*Order `json:"orders"`
	Total  int      `json:"total"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
}

// JobStatusPayload is what observers and the assigned driver receive after a transition.
type JobStatusPayload struct {
	OrderID  uuid.UUID `json:"order_id"`
	Status   Status    `json:"status"`
	Previous Status    `json:"previous"`
	Order    *Order    `json:"order"`
}
