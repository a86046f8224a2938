package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

const (
	earthRadiusKM = 6371.0

	// GeofenceRadiusMeters is the default proximity required for pickup and drop-off.
	GeofenceRadiusMeters = 150.0

	// float noise from the trig functions must not flip an exact-boundary check
	geofenceEpsilonMeters = 1e-6
)

var (
	ErrInvalidLatLng  = errors.New("invalid latitude or longitude")
	ErrMapboxNoRoutes = errors.New("mapbox returned no routes")
	ErrMapboxRequest  = errors.New("mapbox request failed")
)

type Location struct {
	Lat float64 `json:"lat" db:"lat"`
	Lng float64 `json:"lng" db:"lng"`
}

func NewLocation(lat, lng float64) Location {
	return Location{Lat: lat, Lng: lng}
}

func (l Location) Validate() error {
	return ValidateLatLng(l.Lat, l.Lng)
}

type MapboxDirectionsResponse struct {
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
	Code string `json:"code"`
}

// MapboxClient asks the external routing provider for a driving route between two points.
type MapboxClient struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

func NewMapboxClient(baseURL, accessToken string) *MapboxClient {
	return &MapboxClient{
		BaseURL:     baseURL,
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *MapboxClient) GetRouteDistanceAndDuration(ctx context.Context, from, to Location) (distanceKM float64, durationMin float64, err error) {
	url := fmt.Sprintf(
		"%s/directions/v5/mapbox/driving/%f,%f;%f,%f?access_token=%s&overview=false",
		m.BaseURL, from.Lng, from.Lat, to.Lng, to.Lat, m.AccessToken,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMapboxRequest, err)
	}

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMapboxRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("%w: status %d", ErrMapboxRequest, resp.StatusCode)
	}

	var result MapboxDirectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMapboxRequest, err)
	}

	if result.Code != "Ok" || len(result.Routes) == 0 {
		return 0, 0, fmt.Errorf("%w (code: %s)", ErrMapboxNoRoutes, result.Code)
	}

	route := result.Routes[0]
	return route.Distance / 1000.0, route.Duration / 60.0, nil
}

// HaversineDistance returns the great-circle distance between a and b in kilometers.
func HaversineDistance(a, b Location) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	aLat := degreesToRadians(a.Lat)
	bLat := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(aLat)*math.Cos(bLat)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKM * c
}

func DistanceMeters(a, b Location) float64 {
	return HaversineDistance(a, b) * 1000
}

// WithinRadius reports whether loc lies within radiusM meters of target, boundary inclusive,
// together with the measured distance.
func WithinRadius(loc, target Location, radiusM float64) (bool, float64) {
	d := DistanceMeters(loc, target)
	return d <= radiusM+geofenceEpsilonMeters, d
}

// OffsetNorth returns the point distanceM meters due north of l along its meridian.
func OffsetNorth(l Location, distanceM float64) Location {
	dLat := distanceM / (earthRadiusKM * 1000) * 180 / math.Pi
	return Location{Lat: l.Lat + dLat, Lng: l.Lng}
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

func ValidateLatLng(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return fmt.Errorf("%w: coordinates must be numbers", ErrInvalidLatLng)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidLatLng)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidLatLng)
	}
	return nil
}
