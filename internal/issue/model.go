package issue

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeVehicle  Type = "VEHICLE"
	TypeCustomer Type = "CUSTOMER"
	TypeAddress  Type = "ADDRESS"
	TypeOther    Type = "OTHER"
)

type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

type Issue struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	DriverID    string     `db:"driver_id" json:"driver_id"`
	OrderID     *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	Type        Type       `db:"type" json:"type"`
	Description string     `db:"description" json:"description"`
	Status      Status     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

func New(driverID string, orderID *uuid.UUID, t Type, description string, now time.Time) *Issue {
	return &Issue{
		ID:          uuid.New(),
		DriverID:    driverID,
		OrderID:     orderID,
		Type:        t,
		Description: description,
		Status:      StatusOpen,
		CreatedAt:   now,
	}
}
