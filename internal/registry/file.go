package registry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"transit-tracker/internal/geo"
)

// File is a YAML-backed registry for dev mode, the simulator and tests.
// It satisfies the same resolver interfaces as Postgres; UpdateLastSeen is
// kept in memory only.
type File struct {
	mu       sync.RWMutex
	routes   map[string]*Route
	devices  map[string]*Device
	bookings map[string]*Booking
	lastSeen map[string]time.Time
}

type fileDoc struct {
	Routes []struct {
		ID                string  `yaml:"id" validate:"required"`
		Name              string  `yaml:"name"`
		ScheduledSpeedKmh float64 `yaml:"scheduledSpeedKmh" validate:"gte=0"`
		Active            *bool   `yaml:"active"`
		Waypoints         []struct {
			Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
			Lon float64 `yaml:"lon" validate:"gte=-180,lte=180"`
		} `yaml:"waypoints" validate:"required,min=2,dive"`
	} `yaml:"routes" validate:"required,min=1,dive"`
	Devices []struct {
		ID            string `yaml:"id" validate:"required"`
		VehicleID     string `yaml:"vehicleId" validate:"required"`
		VehicleNumber string `yaml:"vehicleNumber"`
		VehicleType   string `yaml:"vehicleType"`
		FleetID       string `yaml:"fleetId"`
		RouteID       string `yaml:"routeId" validate:"required"`
		Approved      *bool  `yaml:"approved"`
	} `yaml:"devices" validate:"dive"`
	Bookings []struct {
		Ref                string    `yaml:"ref" validate:"required"`
		RouteID            string    `yaml:"routeId" validate:"required"`
		TripID             string    `yaml:"tripId"`
		ScheduledDeparture time.Time `yaml:"scheduledDeparture"`
	} `yaml:"bookings" validate:"dive"`
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(data)
}

func ParseFile(data []byte) (*File, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("validate registry file: %w", err)
	}

	f := &File{
		routes:   make(map[string]*Route, len(doc.Routes)),
		devices:  make(map[string]*Device, len(doc.Devices)),
		bookings: make(map[string]*Booking, len(doc.Bookings)),
		lastSeen: make(map[string]time.Time),
	}
	for _, rd := range doc.Routes {
		r := &Route{
			ID:                rd.ID,
			Name:              rd.Name,
			ScheduledSpeedKmh: rd.ScheduledSpeedKmh,
			Active:            rd.Active == nil || *rd.Active,
		}
		for _, wp := range rd.Waypoints {
			r.Waypoints = append(r.Waypoints, geo.Point{Lat: wp.Lat, Lon: wp.Lon})
		}
		r.CumulativeMeters = geo.CumulativeDistances(r.Waypoints)
		if n := len(r.CumulativeMeters); n > 0 {
			r.TotalMeters = r.CumulativeMeters[n-1]
		}
		f.routes[r.ID] = r
	}
	for _, dd := range doc.Devices {
		if _, ok := f.routes[dd.RouteID]; !ok {
			return nil, fmt.Errorf("device %s references unknown route %s", dd.ID, dd.RouteID)
		}
		f.devices[dd.ID] = &Device{
			ID:            dd.ID,
			VehicleID:     dd.VehicleID,
			VehicleNumber: dd.VehicleNumber,
			VehicleType:   dd.VehicleType,
			FleetID:       dd.FleetID,
			RouteID:       dd.RouteID,
			Approved:      dd.Approved == nil || *dd.Approved,
		}
	}
	for _, bd := range doc.Bookings {
		f.bookings[bd.Ref] = &Booking{
			Ref:                bd.Ref,
			RouteID:            bd.RouteID,
			TripID:             bd.TripID,
			ScheduledDeparture: bd.ScheduledDeparture,
		}
	}
	return f, nil
}

func (f *File) Route(_ context.Context, id string) (*Route, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.routes[id]
	if !ok {
		return nil, ErrRouteNotFound
	}
	return r, nil
}

func (f *File) Device(_ context.Context, id string) (*Device, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}

func (f *File) UpdateLastSeen(_ context.Context, id string, _, _ float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	f.lastSeen[id] = at
	return nil
}

func (f *File) Booking(_ context.Context, ref string) (*Booking, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.bookings[ref]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// Devices returns all registered devices, used by the simulator to decide
// which vehicles to drive.
func (f *File) Devices() []*Device {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out
}
