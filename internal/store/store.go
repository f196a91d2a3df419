package store

import (
	"context"
	"database/sql"
	"time"

	"transit-tracker/internal/track"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Bounds is a lat/lon bounding box filter.
type Bounds struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Filter narrows the latest-position view. A zero Since means unfiltered
// (debug) mode.
type Filter struct {
	RouteID     string
	VehicleType string
	Bounds      *Bounds
	Since       time.Time
	Limit       int
}

// Store is the append-only position log. Latest is a read-time aggregation:
// max-timestamp active record per vehicle, with records whose route or
// device no longer resolves excluded rather than returned half-linked.
type Store interface {
	Append(ctx context.Context, rec track.PositionRecord) error
	Latest(ctx context.Context, f Filter) ([]track.PositionRecord, error)
	// Deactivate bulk-flips a vehicle's records out of the live view.
	// Returns the number of records affected.
	Deactivate(ctx context.Context, vehicleID string) (int64, error)
}

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
