package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"transit-tracker/internal/geo"
	"transit-tracker/internal/ingest"
	"transit-tracker/internal/registry"
	"transit-tracker/internal/track"
)

// Reporter submits a simulated report. The HTTP implementation goes through
// the public ingest endpoint so synthetic traffic obeys the same
// validation, persistence and broadcast invariants as real devices.
type Reporter interface {
	Report(ctx context.Context, req ingest.Request) error
}

type HTTPReporter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPReporter(baseURL string) *HTTPReporter {
	return &HTTPReporter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPReporter) Report(ctx context.Context, req ingest.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/tracking/update", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ingest returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// Vehicle pairs a provisioned device with its assigned route.
type Vehicle struct {
	Device *registry.Device
	Route  *registry.Route
}

// Manager drives one goroutine per simulated vehicle along its route
// geometry at the route's scheduled speed.
type Manager struct {
	reporter        Reporter
	interval        time.Duration
	speedMultiplier float64

	mu      sync.Mutex
	running map[string]context.CancelFunc // vehicleID -> cancel
	wg      sync.WaitGroup
}

func NewManager(reporter Reporter, interval time.Duration, speedMultiplier float64) *Manager {
	return &Manager{
		reporter:        reporter,
		interval:        interval,
		speedMultiplier: speedMultiplier,
		running:         make(map[string]context.CancelFunc),
	}
}

func (m *Manager) Start(ctx context.Context, vehicles []Vehicle) {
	for _, v := range vehicles {
		m.startVehicle(ctx, v)
	}
}

func (m *Manager) startVehicle(parent context.Context, v Vehicle) {
	m.mu.Lock()
	if _, exists := m.running[v.Device.VehicleID]; exists {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.running[v.Device.VehicleID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	slog.Info("starting vehicle", "vehicle_id", v.Device.VehicleID, "route_id", v.Route.ID)
	go func() {
		defer m.wg.Done()
		if err := m.runVehicle(ctx, v); err != nil && ctx.Err() == nil {
			slog.Error("vehicle stopped", "vehicle_id", v.Device.VehicleID, "error", err)
		}
		m.mu.Lock()
		delete(m.running, v.Device.VehicleID)
		m.mu.Unlock()
	}()
}

func (m *Manager) runVehicle(ctx context.Context, v Vehicle) error {
	rt := v.Route
	if len(rt.Waypoints) < 2 || rt.TotalMeters <= 0 {
		return fmt.Errorf("route %s has no usable geometry", rt.ID)
	}
	speedKmh := rt.ScheduledSpeedKmh
	if speedKmh <= 0 {
		speedKmh = 30
	}
	speedMps := speedKmh / 3.6 * m.speedMultiplier

	tick := time.NewTicker(m.interval)
	defer tick.Stop()

	tripID := fmt.Sprintf("%s-%s", rt.ID, time.Now().UTC().Format("20060102T150405"))
	dist := 0.0
	lastTick := time.Now()
	var lastPos geo.Point
	havePos := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			dist += speedMps * dt
			// Loop the route: a finished run starts over as a new trip.
			if dist >= rt.TotalMeters {
				dist = 0
				tripID = fmt.Sprintf("%s-%s", rt.ID, now.UTC().Format("20060102T150405"))
			}

			pos, bearing := geo.InterpolateAlong(rt.Waypoints, rt.CumulativeMeters, dist)

			reported := 0.0
			if havePos && dt > 0 {
				reported = geo.HaversineMeters(lastPos, pos) / dt * 3.6
			}
			lastPos, havePos = pos, true

			req := ingest.Request{
				DeviceID:  v.Device.ID,
				VehicleID: v.Device.VehicleID,
				Location: ingest.LocationPayload{
					Latitude:  &pos.Lat,
					Longitude: &pos.Lon,
					SpeedKmh:  reported,
					Heading:   bearing,
				},
				Operational: ingest.OperationalPayload{
					Status: track.StatusOnRoute,
					Trip:   ingest.TripPayload{RouteID: rt.ID, TripID: tripID},
				},
			}
			if err := m.reporter.Report(ctx, req); err != nil {
				slog.Warn("report failed", "vehicle_id", v.Device.VehicleID, "error", err)
			}
		}
	}
}

func (m *Manager) Stop() {
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
