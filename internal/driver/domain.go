package driver

import (
	"time"

	"dispatch-engine/internal/common"
	domainerrors "dispatch-engine/internal/errors"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusOnJob, StatusBreak:
		return true
	}
	return false
}

func New(in RegisterInput, now time.Time) *Driver {
	return &Driver{
		ID:          in.ID,
		Name:        in.Name,
		Phone:       in.Phone,
		VehicleType: in.VehicleType,
		Status:      StatusOffline,
		Rating:      DefaultRating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Position returns the last known position, if the driver ever reported one.
func (d *Driver) Position() (common.Location, bool) {
	if d.Latitude == nil || d.Longitude == nil {
		return common.Location{}, false
	}
	return common.NewLocation(*d.Latitude, *d.Longitude), true
}

func (d *Driver) SetPosition(loc common.Location) {
	lat, lng := loc.Lat, loc.Lng
	d.Latitude = &lat
	d.Longitude = &lng
}

// Engage puts an ONLINE driver on a job.
func (d *Driver) Engage(now time.Time) error {
	if d.Status != StatusOnline {
		return domainerrors.DriverNotAvailable(d.ID, string(d.Status))
	}
	d.Status = StatusOnJob
	d.UpdatedAt = now
	return nil
}

// Release frees a driver that was on a job. Drivers who went offline or on
// break meanwhile keep that status.
func (d *Driver) Release(now time.Time) {
	if d.Status == StatusOnJob {
		d.Status = StatusOnline
	}
	d.UpdatedAt = now
}

func (d *Driver) CompleteDelivery(pay float64, now time.Time) {
	d.TotalJobs++
	d.TotalEarnings += pay
	d.Release(now)
}

// ApplyRating stores the mean of the driver's manager ratings, DefaultRating when unrated.
func (d *Driver) ApplyRating(mean *float64, now time.Time) {
	d.Rating = DefaultRating
	if mean != nil {
		d.Rating = *mean
	}
	d.UpdatedAt = now
}
