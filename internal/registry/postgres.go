package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"transit-tracker/internal/geo"
)

// Postgres resolves routes, devices and bookings from the platform schema.
// All lookups are read-only except the denormalized device pointer.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Route(ctx context.Context, id string) (*Route, error) {
	const q = `SELECT route_id, name, scheduled_speed_kmh, active FROM routes WHERE route_id = $1`
	r := &Route{}
	err := p.db.QueryRowContext(ctx, q, id).Scan(&r.ID, &r.Name, &r.ScheduledSpeedKmh, &r.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query route: %w", err)
	}

	const wq = `SELECT lat, lon, COALESCE(cumulative_m, 0)
	            FROM route_waypoints WHERE route_id = $1 ORDER BY seq`
	rows, err := p.db.QueryContext(ctx, wq, id)
	if err != nil {
		return nil, fmt.Errorf("query route waypoints: %w", err)
	}
	defer rows.Close()
	var haveCum bool
	for rows.Next() {
		var pt geo.Point
		var cum float64
		if err := rows.Scan(&pt.Lat, &pt.Lon, &cum); err != nil {
			return nil, err
		}
		r.Waypoints = append(r.Waypoints, pt)
		r.CumulativeMeters = append(r.CumulativeMeters, cum)
		if cum > 0 {
			haveCum = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Some routes carry no stored cumulative distances; derive them.
	if !haveCum {
		r.CumulativeMeters = geo.CumulativeDistances(r.Waypoints)
	}
	if n := len(r.CumulativeMeters); n > 0 {
		r.TotalMeters = r.CumulativeMeters[n-1]
	}
	return r, nil
}

func (p *Postgres) Device(ctx context.Context, id string) (*Device, error) {
	const q = `SELECT device_id, vehicle_id, vehicle_number, COALESCE(vehicle_type, ''),
	                  COALESCE(fleet_id, ''), COALESCE(route_id, ''), approved
	           FROM devices WHERE device_id = $1`
	d := &Device{}
	err := p.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.VehicleID, &d.VehicleNumber, &d.VehicleType, &d.FleetID, &d.RouteID, &d.Approved,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query device: %w", err)
	}
	return d, nil
}

func (p *Postgres) UpdateLastSeen(ctx context.Context, id string, lat, lon float64, at time.Time) error {
	const q = `UPDATE devices SET last_lat = $2, last_lon = $3, last_seen_at = $4 WHERE device_id = $1`
	res, err := p.db.ExecContext(ctx, q, id, lat, lon, at)
	if err != nil {
		return fmt.Errorf("update device last seen: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (p *Postgres) Booking(ctx context.Context, ref string) (*Booking, error) {
	const q = `SELECT booking_ref, route_id, COALESCE(trip_id, ''), scheduled_departure
	           FROM bookings WHERE booking_ref = $1`
	b := &Booking{}
	err := p.db.QueryRowContext(ctx, q, ref).Scan(&b.Ref, &b.RouteID, &b.TripID, &b.ScheduledDeparture)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query booking: %w", err)
	}
	return b, nil
}
