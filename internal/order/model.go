package order

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAssigned  Status = "ASSIGNED"
	StatusAccepted  Status = "ACCEPTED"
	StatusPickedUp  Status = "PICKED_UP"
	StatusEnRoute   Status = "EN_ROUTE"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

type PaymentType string

const (
	PaymentEFT  PaymentType = "EFT"
	PaymentCash PaymentType = "CASH"
)

type Order struct {
	ID                   uuid.UUID   `db:"id" json:"id"`
	CreatedBy            string      `db:"created_by" json:"created_by"`
	PickupLat            float64     `db:"pickup_lat" json:"pickup_lat"`
	PickupLng            float64     `db:"pickup_lng" json:"pickup_lng"`
	DeliveryLat          float64     `db:"delivery_lat" json:"delivery_lat"`
	DeliveryLng          float64     `db:"delivery_lng" json:"delivery_lng"`
	OrderValue           float64     `db:"order_value" json:"order_value"`
	DeliveryFee          float64     `db:"delivery_fee" json:"delivery_fee"`
	DriverPay            float64     `db:"driver_pay" json:"driver_pay"`
	PaymentType          PaymentType `db:"payment_type" json:"payment_type"`
	EstimatedTimeMinutes int         `db:"estimated_time_minutes" json:"estimated_time_minutes"`
	Status               Status      `db:"status" json:"status"`
	AssignedDriverID     *string     `db:"assigned_driver_id" json:"assigned_driver_id,omitempty"`
	ManagerRating        *int        `db:"manager_rating" json:"manager_rating,omitempty"`
	AcceptedAt           *time.Time  `db:"accepted_at" json:"accepted_at,omitempty"`
	PickedUpAt           *time.Time  `db:"picked_up_at" json:"picked_up_at,omitempty"`
	DeliveredAt          *time.Time  `db:"delivered_at" json:"delivered_at,omitempty"`
	ActualTimeMinutes    *int        `db:"actual_time_minutes" json:"actual_time_minutes,omitempty"`
	CancelledBy          *string     `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}
