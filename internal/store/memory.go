package store

import (
	"context"
	"sync"

	"transit-tracker/internal/registry"
	"transit-tracker/internal/track"
)

// Memory is an in-process position log with the same read-time aggregation
// semantics as Postgres. It backs dev mode (ROUTES_FILE without a database)
// and the package tests. Resolvers emulate the registry joins: when set,
// records whose route or device does not resolve are excluded.
type Memory struct {
	mu      sync.RWMutex
	records []track.PositionRecord
	routes  registry.RouteResolver
	devices registry.DeviceResolver
}

func NewMemory(routes registry.RouteResolver, devices registry.DeviceResolver) *Memory {
	return &Memory{routes: routes, devices: devices}
}

func (m *Memory) Append(_ context.Context, rec track.PositionRecord) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Latest(ctx context.Context, f Filter) ([]track.PositionRecord, error) {
	m.mu.RLock()
	candidates := make([]track.PositionRecord, 0, len(m.records))
	for _, r := range m.records {
		if !r.Active {
			continue
		}
		if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
			continue
		}
		if f.RouteID != "" && r.RouteID != f.RouteID {
			continue
		}
		if f.Bounds != nil && !f.Bounds.Contains(r.Location.Latitude, r.Location.Longitude) {
			continue
		}
		candidates = append(candidates, r)
	}
	m.mu.RUnlock()

	latest := track.LatestByVehicle(candidates)

	out := make([]track.PositionRecord, 0, len(latest))
	for _, r := range latest {
		if m.routes != nil {
			rt, err := m.routes.Route(ctx, r.RouteID)
			if err != nil || !rt.Active {
				continue
			}
		}
		if m.devices != nil {
			d, err := m.devices.Device(ctx, r.DeviceID)
			if err != nil || !d.Approved {
				continue
			}
			if f.VehicleType != "" && d.VehicleType != f.VehicleType {
				continue
			}
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Deactivate(_ context.Context, vehicleID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.records {
		if m.records[i].VehicleID == vehicleID && m.records[i].Active {
			m.records[i].Active = false
			n++
		}
	}
	return n, nil
}
