package earning

import (
	"time"

	"github.com/google/uuid"
)

type Earning struct {
	ID              uuid.UUID `db:"id" json:"id"`
	DriverID        string    `db:"driver_id" json:"driver_id"`
	OrderID         uuid.UUID `db:"order_id" json:"order_id"`
	Amount          float64   `db:"amount" json:"amount"`
	DistanceKM      float64   `db:"distance_km" json:"distance_km"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	EarnedAt        time.Time `db:"earned_at" json:"earned_at"`
}

func New(driverID string, orderID uuid.UUID, amount, distanceKM float64, durationMinutes int, earnedAt time.Time) *Earning {
	return &Earning{
		ID:              uuid.New(),
		DriverID:        driverID,
		OrderID:         orderID,
		Amount:          amount,
		DistanceKM:      distanceKM,
		DurationMinutes: durationMinutes,
		EarnedAt:        earnedAt,
	}
}

type Summary struct {
	Earnings []*Earning `json:"earnings"`
	Total    float64    `json:"total"`
	Jobs     int        `json:"jobs"`
}
