package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"transit-tracker/internal/broadcast"
	"transit-tracker/internal/geo"
	"transit-tracker/internal/registry"
	"transit-tracker/internal/store"
	"transit-tracker/internal/track"
)

// ErrValidation wraps request validation failures so the API layer can map
// them to 400 without string matching.
var ErrValidation = errors.New("invalid tracking update")

// ErrNotAssigned rejects reports whose route is not the device's active
// assignment, a provisioning problem upstream rather than a caller bug.
var ErrNotAssigned = errors.New("route not assigned to device")

// Request is the device-facing ingest payload.
type Request struct {
	DeviceID      string               `json:"deviceId" validate:"required"`
	VehicleID     string               `json:"vehicleId" validate:"required"`
	Location      LocationPayload      `json:"location"`
	RouteProgress *track.RouteProgress `json:"routeProgress"`
	PassengerLoad *track.PassengerLoad `json:"passengerLoad"`
	Operational   OperationalPayload   `json:"operationalInfo"`
	Environmental *track.Environmental `json:"environmentalData"`
	Timestamp     *time.Time           `json:"timestamp"`
}

type LocationPayload struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	SpeedKmh  float64  `json:"speed" validate:"gte=0"`
	Heading   float64  `json:"heading"`
}

type OperationalPayload struct {
	Status              track.VehicleStatus `json:"status"`
	CurrentDelayMinutes int                 `json:"currentDelayMinutes" validate:"gte=0"`
	Trip                TripPayload         `json:"tripInfo"`
}

type TripPayload struct {
	RouteID string `json:"routeId" validate:"required"`
	TripID  string `json:"tripId"`
}

// Ack is returned to the device on success.
type Ack struct {
	TrackingID string    `json:"trackingId"`
	Timestamp  time.Time `json:"timestamp"`
}

type Metrics interface {
	AcceptedInc()
	RejectedInc(reason string)
	IngestObserve(d time.Duration)
}

// Service validates, persists and schedules broadcast for position reports.
type Service struct {
	store      store.Store
	routes     registry.RouteResolver
	devices    registry.DeviceResolver
	dispatcher *broadcast.Dispatcher

	offRouteThresholdMeters float64
	validate                *validator.Validate
	metrics                 Metrics
	now                     func() time.Time
}

func NewService(st store.Store, routes registry.RouteResolver, devices registry.DeviceResolver, d *broadcast.Dispatcher, offRouteThresholdMeters float64, m Metrics) *Service {
	return &Service{
		store:                   st,
		routes:                  routes,
		devices:                 devices,
		dispatcher:              d,
		offRouteThresholdMeters: offRouteThresholdMeters,
		validate:                validator.New(),
		metrics:                 m,
		now:                     func() time.Time { return time.Now().UTC() },
	}
}

// Ingest runs the full write path: validate, admit against the registries,
// build the record with explicit defaults, append, then best-effort
// secondary work (device pointer, broadcast enqueue) that never fails the
// request.
func (s *Service) Ingest(ctx context.Context, req Request) (Ack, error) {
	start := s.now()
	ack, err := s.ingest(ctx, req, start)
	if s.metrics != nil {
		s.metrics.IngestObserve(time.Since(start))
		if err == nil {
			s.metrics.AcceptedInc()
		} else {
			s.metrics.RejectedInc(rejectReason(err))
		}
	}
	return ack, err
}

func (s *Service) ingest(ctx context.Context, req Request, now time.Time) (Ack, error) {
	if err := s.validate.Struct(req); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	device, err := s.devices.Device(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, registry.ErrDeviceNotFound) {
			return Ack{}, err
		}
		// Lookup failure is not a rejection: accepting a record with
		// unverified linkage would poison the live view.
		return Ack{}, fmt.Errorf("resolve device: %w", err)
	}
	if !device.Approved {
		return Ack{}, registry.ErrDeviceNotFound
	}

	routeID := req.Operational.Trip.RouteID
	route, err := s.routes.Route(ctx, routeID)
	if err != nil {
		if errors.Is(err, registry.ErrRouteNotFound) {
			return Ack{}, err
		}
		return Ack{}, fmt.Errorf("resolve route: %w", err)
	}
	if !route.Active {
		return Ack{}, registry.ErrRouteNotFound
	}
	// A device with no active assignment cannot report for any route; the
	// requested route id is already validated non-empty, so it never matches
	// an empty assignment.
	if device.RouteID != routeID {
		return Ack{}, ErrNotAssigned
	}

	rec := s.buildRecord(req, device, route, now)

	if err := s.store.Append(ctx, rec); err != nil {
		return Ack{}, fmt.Errorf("append position record: %w", err)
	}

	// Denormalized pointer for device listings; best-effort.
	if err := s.devices.UpdateLastSeen(ctx, device.ID, rec.Location.Latitude, rec.Location.Longitude, rec.Timestamp); err != nil {
		slog.Warn("device last-seen update failed", "device_id", device.ID, "error", err)
	}

	s.dispatcher.Enqueue(broadcast.UpdateFromRecord(rec))

	return Ack{TrackingID: rec.TrackingID, Timestamp: rec.Timestamp}, nil
}

// buildRecord fills every optional sub-object with explicit defaults; a
// persisted record never has absent sections.
func (s *Service) buildRecord(req Request, device *registry.Device, route *registry.Route, now time.Time) track.PositionRecord {
	ts := now
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}

	loc := track.Location{
		Latitude:  *req.Location.Latitude,
		Longitude: *req.Location.Longitude,
		SpeedKmh:  req.Location.SpeedKmh,
		Heading:   req.Location.Heading,
	}

	status := req.Operational.Status
	if status == "" {
		status = track.StatusOnRoute
	}

	var progress track.RouteProgress
	if req.RouteProgress != nil {
		progress = *req.RouteProgress
		if progress.ProgressPercentage < 0 {
			progress.ProgressPercentage = 0
		} else if progress.ProgressPercentage > 100 {
			progress.ProgressPercentage = 100
		}
	} else {
		est := geo.EstimateProgress(route.Geometry(), geo.Point{Lat: loc.Latitude, Lon: loc.Longitude}, loc.SpeedKmh, s.offRouteThresholdMeters)
		progress = track.RouteProgress{
			CurrentWaypointIndex:  est.WaypointIndex,
			DistanceCoveredMeters: est.DistanceCoveredMeters,
			ProgressPercentage:    est.ProgressPercentage,
			EtaNextStopSeconds:    est.EtaNextStopSeconds,
		}
		// Surface implausible fixes instead of snapping them, unless the
		// device already reported something stronger.
		if est.OffRoute && status != track.StatusBreakdown {
			status = track.StatusOffRoute
		}
	}

	var load track.PassengerLoad
	if req.PassengerLoad != nil {
		load = *req.PassengerLoad
		if load.LoadPercentage == 0 && load.Max > 0 {
			load.LoadPercentage = float64(load.Current) / float64(load.Max) * 100
		}
	}

	var env track.Environmental
	if req.Environmental != nil {
		env = *req.Environmental
	}

	return track.PositionRecord{
		TrackingID:    uuid.NewString(),
		DeviceID:      device.ID,
		VehicleID:     req.VehicleID,
		VehicleNumber: device.VehicleNumber,
		RouteID:       route.ID,
		Location:      loc,
		Progress:      progress,
		Load:          load,
		Operational: track.OperationalInfo{
			Status:              status,
			CurrentDelayMinutes: req.Operational.CurrentDelayMinutes,
			Trip: track.TripInfo{
				RouteID: route.ID,
				TripID:  req.Operational.Trip.TripID,
			},
		},
		Environment: env,
		Timestamp:   ts,
		Active:      true,
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, registry.ErrDeviceNotFound):
		return "unknown_device"
	case errors.Is(err, registry.ErrRouteNotFound):
		return "unknown_route"
	case errors.Is(err, ErrNotAssigned):
		return "not_assigned"
	default:
		return "internal"
	}
}
