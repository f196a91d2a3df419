package store

import (
	"context"
	"database/sql"
	"fmt"

	"transit-tracker/internal/track"
)

// Postgres persists position records in a single append-only table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Bootstrap creates the position log if it does not exist. Route, device and
// booking tables belong to the platform schema and are not created here.
func (s *Postgres) Bootstrap(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS position_records (
    tracking_id     TEXT PRIMARY KEY,
    device_id       TEXT NOT NULL,
    vehicle_id      TEXT NOT NULL,
    vehicle_number  TEXT NOT NULL DEFAULT '',
    route_id        TEXT NOT NULL,
    lat             DOUBLE PRECISION NOT NULL,
    lon             DOUBLE PRECISION NOT NULL,
    speed_kmh       DOUBLE PRECISION NOT NULL DEFAULT 0,
    heading         DOUBLE PRECISION NOT NULL DEFAULT 0,
    waypoint_index  INTEGER NOT NULL DEFAULT 0,
    distance_m      DOUBLE PRECISION NOT NULL DEFAULT 0,
    progress_pct    DOUBLE PRECISION NOT NULL DEFAULT 0,
    eta_next_sec    DOUBLE PRECISION NOT NULL DEFAULT 0,
    load_current    INTEGER NOT NULL DEFAULT 0,
    load_max        INTEGER NOT NULL DEFAULT 0,
    load_pct        DOUBLE PRECISION NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    delay_minutes   INTEGER NOT NULL DEFAULT 0,
    trip_id         TEXT NOT NULL DEFAULT '',
    temperature_c   DOUBLE PRECISION NOT NULL DEFAULT 0,
    humidity_pct    DOUBLE PRECISION NOT NULL DEFAULT 0,
    recorded_at     TIMESTAMPTZ NOT NULL,
    active          BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_position_vehicle_time
    ON position_records (vehicle_id, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_position_route_time
    ON position_records (route_id, recorded_at DESC);`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("bootstrap position_records: %w", err)
	}
	return nil
}

func (s *Postgres) Append(ctx context.Context, rec track.PositionRecord) error {
	const q = `
INSERT INTO position_records (
    tracking_id, device_id, vehicle_id, vehicle_number, route_id,
    lat, lon, speed_kmh, heading,
    waypoint_index, distance_m, progress_pct, eta_next_sec,
    load_current, load_max, load_pct,
    status, delay_minutes, trip_id,
    temperature_c, humidity_pct,
    recorded_at, active
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`
	_, err := s.db.ExecContext(ctx, q,
		rec.TrackingID, rec.DeviceID, rec.VehicleID, rec.VehicleNumber, rec.RouteID,
		rec.Location.Latitude, rec.Location.Longitude, rec.Location.SpeedKmh, rec.Location.Heading,
		rec.Progress.CurrentWaypointIndex, rec.Progress.DistanceCoveredMeters,
		rec.Progress.ProgressPercentage, rec.Progress.EtaNextStopSeconds,
		rec.Load.Current, rec.Load.Max, rec.Load.LoadPercentage,
		string(rec.Operational.Status), rec.Operational.CurrentDelayMinutes, rec.Operational.Trip.TripID,
		rec.Environment.TemperatureC, rec.Environment.HumidityPct,
		rec.Timestamp, rec.Active,
	)
	if err != nil {
		return fmt.Errorf("insert position record: %w", err)
	}
	return nil
}

// Latest selects the max-timestamp active record per vehicle. The joins
// against routes and devices drop records whose linkage no longer resolves
// (soft-deleted route, revoked device): showing nothing beats showing a
// vehicle with broken route linkage.
func (s *Postgres) Latest(ctx context.Context, f Filter) ([]track.PositionRecord, error) {
	q := `
SELECT DISTINCT ON (p.vehicle_id)
    p.tracking_id, p.device_id, p.vehicle_id, p.vehicle_number, p.route_id,
    p.lat, p.lon, p.speed_kmh, p.heading,
    p.waypoint_index, p.distance_m, p.progress_pct, p.eta_next_sec,
    p.load_current, p.load_max, p.load_pct,
    p.status, p.delay_minutes, p.trip_id,
    p.temperature_c, p.humidity_pct,
    p.recorded_at
FROM position_records p
JOIN routes r  ON r.route_id = p.route_id AND r.active
JOIN devices d ON d.device_id = p.device_id AND d.approved
WHERE p.active`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		args = append(args, v)
		q += fmt.Sprintf(" AND "+clause, n)
	}
	if !f.Since.IsZero() {
		add("p.recorded_at >= $%d", f.Since)
	}
	if f.RouteID != "" {
		add("p.route_id = $%d", f.RouteID)
	}
	if f.VehicleType != "" {
		add("d.vehicle_type = $%d", f.VehicleType)
	}
	if f.Bounds != nil {
		add("p.lat >= $%d", f.Bounds.MinLat)
		add("p.lat <= $%d", f.Bounds.MaxLat)
		add("p.lon >= $%d", f.Bounds.MinLon)
		add("p.lon <= $%d", f.Bounds.MaxLon)
	}
	q += "\nORDER BY p.vehicle_id, p.recorded_at DESC"
	if f.Limit > 0 {
		n++
		args = append(args, f.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", n)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest positions: %w", err)
	}
	defer rows.Close()

	var recs []track.PositionRecord
	for rows.Next() {
		var rec track.PositionRecord
		var status string
		if err := rows.Scan(
			&rec.TrackingID, &rec.DeviceID, &rec.VehicleID, &rec.VehicleNumber, &rec.RouteID,
			&rec.Location.Latitude, &rec.Location.Longitude, &rec.Location.SpeedKmh, &rec.Location.Heading,
			&rec.Progress.CurrentWaypointIndex, &rec.Progress.DistanceCoveredMeters,
			&rec.Progress.ProgressPercentage, &rec.Progress.EtaNextStopSeconds,
			&rec.Load.Current, &rec.Load.Max, &rec.Load.LoadPercentage,
			&status, &rec.Operational.CurrentDelayMinutes, &rec.Operational.Trip.TripID,
			&rec.Environment.TemperatureC, &rec.Environment.HumidityPct,
			&rec.Timestamp,
		); err != nil {
			return nil, err
		}
		rec.Operational.Status = track.VehicleStatus(status)
		rec.Operational.Trip.RouteID = rec.RouteID
		rec.Active = true
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Postgres) Deactivate(ctx context.Context, vehicleID string) (int64, error) {
	const q = `UPDATE position_records SET active = FALSE WHERE vehicle_id = $1 AND active`
	res, err := s.db.ExecContext(ctx, q, vehicleID)
	if err != nil {
		return 0, fmt.Errorf("deactivate vehicle records: %w", err)
	}
	return res.RowsAffected()
}
