package driver

import (
	"time"
)

type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
	StatusOnJob   Status = "ON_JOB"
	StatusBreak   Status = "BREAK"
)

const DefaultRating = 5.0

type Driver struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Phone         string     `db:"phone" json:"phone"`
	VehicleType   string     `db:"vehicle_type" json:"vehicle_type"`
	Status        Status     `db:"status" json:"status"`
	Latitude      *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64   `db:"longitude" json:"longitude,omitempty"`
	LastActiveAt  *time.Time `db:"last_active_at" json:"last_active_at,omitempty"`
	TotalJobs     int        `db:"total_jobs" json:"total_jobs"`
	TotalEarnings float64    `db:"total_earnings" json:"total_earnings"`
	Rating        float64    `db:"rating" json:"rating"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

type RegisterInput struct {
	ID          string `json:"id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Phone       string `json:"phone"`
	VehicleType string `json:"vehicle_type"`
}

type ListResponse struct {
	Drivers []*Driver `json:"drivers"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	Limit   int       `json:"limit"`
}
