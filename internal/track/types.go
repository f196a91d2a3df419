package track

import "time"

// VehicleStatus is the operational state reported or derived for a vehicle.
type VehicleStatus string

const (
	StatusOnRoute   VehicleStatus = "on_route"
	StatusAtStop    VehicleStatus = "at_stop"
	StatusDelayed   VehicleStatus = "delayed"
	StatusBreakdown VehicleStatus = "breakdown"
	StatusOffRoute  VehicleStatus = "off_route"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	SpeedKmh  float64 `json:"speed"`
	Heading   float64 `json:"heading"`
}

type RouteProgress struct {
	CurrentWaypointIndex  int     `json:"currentWaypointIndex"`
	DistanceCoveredMeters float64 `json:"distanceCoveredMeters"`
	ProgressPercentage    float64 `json:"progressPercentage"`
	EtaNextStopSeconds    float64 `json:"etaNextStopSeconds"`
}

type PassengerLoad struct {
	Current        int     `json:"current"`
	Max            int     `json:"max"`
	LoadPercentage float64 `json:"loadPercentage"`
}

type TripInfo struct {
	RouteID string `json:"routeId"`
	TripID  string `json:"tripId"`
}

type OperationalInfo struct {
	Status              VehicleStatus `json:"status"`
	CurrentDelayMinutes int           `json:"currentDelayMinutes"`
	Trip                TripInfo      `json:"tripInfo"`
}

type Environmental struct {
	TemperatureC float64 `json:"temperatureC"`
	HumidityPct  float64 `json:"humidityPct"`
}

// PositionRecord is one GPS/telemetry report. Records are append-only:
// the hot path never mutates or deletes them, resets only flip Active.
type PositionRecord struct {
	TrackingID    string          `json:"trackingId"`
	DeviceID      string          `json:"deviceId"`
	VehicleID     string          `json:"vehicleId"`
	VehicleNumber string          `json:"vehicleNumber"`
	RouteID       string          `json:"routeId"`
	Location      Location        `json:"location"`
	Progress      RouteProgress   `json:"routeProgress"`
	Load          PassengerLoad   `json:"passengerLoad"`
	Operational   OperationalInfo `json:"operationalInfo"`
	Environment   Environmental   `json:"environmentalData"`
	Timestamp     time.Time       `json:"timestamp"`
	Active        bool            `json:"-"`
}

// LatestPosition is the per-vehicle view served by the live endpoint.
// It is derived on every read and never persisted.
type LatestPosition struct {
	PositionRecord
	RouteName          string           `json:"routeName,omitempty"`
	FleetID            string           `json:"fleetId,omitempty"`
	ConnectionStatus   ConnectionStatus `json:"connectionStatus"`
	LastSeenMinutesAgo float64          `json:"lastSeenMinutesAgo"`
}
