package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

const sampleDoc = `
routes:
  - id: R1
    name: Airport Express
    scheduledSpeedKmh: 40
    waypoints:
      - {lat: 0, lon: 0}
      - {lat: 0, lon: 0.045}
      - {lat: 0, lon: 0.09}
  - id: R2
    name: Old Loop
    active: false
    waypoints:
      - {lat: 1, lon: 1}
      - {lat: 1, lon: 1.05}
devices:
  - id: dev-1
    vehicleId: veh-1
    vehicleNumber: KA-01-F-1234
    vehicleType: bus
    fleetId: fleet-a
    routeId: R1
  - id: dev-2
    vehicleId: veh-2
    routeId: R1
    approved: false
bookings:
  - ref: BK1
    routeId: R1
    tripId: T1
    scheduledDeparture: 2025-06-01T10:00:00Z
`

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ctx := context.Background()

	r1, err := f.Route(ctx, "R1")
	if err != nil {
		t.Fatalf("route R1: %v", err)
	}
	if !r1.Active {
		t.Error("R1 active: got false, want true (default)")
	}
	if len(r1.Waypoints) != 3 || len(r1.CumulativeMeters) != 3 {
		t.Fatalf("R1 geometry: got %d waypoints / %d cumulative, want 3/3", len(r1.Waypoints), len(r1.CumulativeMeters))
	}
	if r1.TotalMeters <= 9000 || r1.TotalMeters >= 11000 {
		t.Errorf("R1 total: got %f, want ~10km", r1.TotalMeters)
	}
	if r1.ScheduledSpeedKmh != 40 {
		t.Errorf("R1 speed: got %f, want 40", r1.ScheduledSpeedKmh)
	}

	r2, err := f.Route(ctx, "R2")
	if err != nil {
		t.Fatalf("route R2: %v", err)
	}
	if r2.Active {
		t.Error("R2 active: got true, want false")
	}

	d1, err := f.Device(ctx, "dev-1")
	if err != nil {
		t.Fatalf("device dev-1: %v", err)
	}
	if !d1.Approved {
		t.Error("dev-1 approved: got false, want true (default)")
	}
	if d1.VehicleID != "veh-1" || d1.RouteID != "R1" || d1.VehicleType != "bus" {
		t.Errorf("dev-1 fields: got %+v", d1)
	}

	d2, err := f.Device(ctx, "dev-2")
	if err != nil {
		t.Fatalf("device dev-2: %v", err)
	}
	if d2.Approved {
		t.Error("dev-2 approved: got true, want false")
	}

	b, err := f.Booking(ctx, "BK1")
	if err != nil {
		t.Fatalf("booking BK1: %v", err)
	}
	if b.RouteID != "R1" || b.TripID != "T1" {
		t.Errorf("BK1 fields: got %+v", b)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !b.ScheduledDeparture.Equal(want) {
		t.Errorf("BK1 departure: got %s, want %s", b.ScheduledDeparture, want)
	}
}

func TestParseFileRejectsBadDocs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", `{{{`},
		{"no routes", `devices: []`},
		{"single waypoint", `
routes:
  - id: R1
    waypoints:
      - {lat: 0, lon: 0}
`},
		{"latitude out of range", `
routes:
  - id: R1
    waypoints:
      - {lat: 95, lon: 0}
      - {lat: 0, lon: 1}
`},
		{"device references unknown route", `
routes:
  - id: R1
    waypoints:
      - {lat: 0, lon: 0}
      - {lat: 0, lon: 1}
devices:
  - id: dev-1
    vehicleId: veh-1
    routeId: NOPE
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFile([]byte(tt.doc)); err == nil {
				t.Error("got nil error, want parse/validation failure")
			}
		})
	}
}

func TestFileNotFoundSentinels(t *testing.T) {
	f, err := ParseFile([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ctx := context.Background()

	if _, err := f.Route(ctx, "nope"); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("route: got %v, want ErrRouteNotFound", err)
	}
	if _, err := f.Device(ctx, "nope"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("device: got %v, want ErrDeviceNotFound", err)
	}
	if _, err := f.Booking(ctx, "nope"); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("booking: got %v, want ErrBookingNotFound", err)
	}
	if err := f.UpdateLastSeen(ctx, "nope", 0, 0, time.Now()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("update last seen: got %v, want ErrDeviceNotFound", err)
	}
	if err := f.UpdateLastSeen(ctx, "dev-1", 0, 0, time.Now()); err != nil {
		t.Errorf("update last seen dev-1: got %v, want nil", err)
	}
}

func TestFileDevices(t *testing.T) {
	f, err := ParseFile([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := len(f.Devices()); got != 2 {
		t.Errorf("got %d devices, want 2", got)
	}
}
