package registry

import (
	"context"
	"errors"
	"time"

	"transit-tracker/internal/geo"
)

var (
	ErrRouteNotFound   = errors.New("route not found")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrBookingNotFound = errors.New("booking not found")
)

// Route is read-only route master data: geometry plus schedule speed.
type Route struct {
	ID                string
	Name              string
	Waypoints         []geo.Point
	CumulativeMeters  []float64
	TotalMeters       float64
	ScheduledSpeedKmh float64
	Active            bool
}

// Geometry adapts a route for the progress estimator.
func (r *Route) Geometry() geo.RouteGeometry {
	return geo.RouteGeometry{
		Waypoints:         r.Waypoints,
		CumulativeMeters:  r.CumulativeMeters,
		TotalMeters:       r.TotalMeters,
		ScheduledSpeedKmh: r.ScheduledSpeedKmh,
	}
}

// Device is the provisioning record for a tracking unit. The approved flag
// and the active route assignment are authoritative for ingest admission.
type Device struct {
	ID            string
	VehicleID     string
	VehicleNumber string
	VehicleType   string
	FleetID       string
	RouteID       string
	Approved      bool
}

type Booking struct {
	Ref                string
	RouteID            string
	TripID             string
	ScheduledDeparture time.Time
}

type RouteResolver interface {
	Route(ctx context.Context, id string) (*Route, error)
}

type DeviceResolver interface {
	Device(ctx context.Context, id string) (*Device, error)
	// UpdateLastSeen refreshes the denormalized last-known-location pointer
	// used by device listings. Best-effort: callers log failures and move on.
	UpdateLastSeen(ctx context.Context, id string, lat, lon float64, at time.Time) error
}

type BookingResolver interface {
	Booking(ctx context.Context, ref string) (*Booking, error)
}
