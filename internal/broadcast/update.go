package broadcast

import (
	"time"

	"transit-tracker/internal/track"
)

// Update is the normalized position message pushed to subscribers. It is a
// subset of the persisted record; subscribers needing full state fetch the
// live view.
type Update struct {
	TrackingID         string              `json:"trackingId"`
	VehicleID          string              `json:"vehicleId"`
	VehicleNumber      string              `json:"vehicleNumber"`
	RouteID            string              `json:"routeId"`
	TripID             string              `json:"tripId,omitempty"`
	Timestamp          time.Time           `json:"timestamp"`
	Latitude           float64             `json:"latitude"`
	Longitude          float64             `json:"longitude"`
	SpeedKmh           float64             `json:"speed"`
	Heading            float64             `json:"heading"`
	ProgressPercentage float64             `json:"progressPercentage"`
	Status             track.VehicleStatus `json:"status"`
	DelayMinutes       int                 `json:"delayMinutes"`
}

func UpdateFromRecord(rec track.PositionRecord) Update {
	return Update{
		TrackingID:         rec.TrackingID,
		VehicleID:          rec.VehicleID,
		VehicleNumber:      rec.VehicleNumber,
		RouteID:            rec.RouteID,
		TripID:             rec.Operational.Trip.TripID,
		Timestamp:          rec.Timestamp,
		Latitude:           rec.Location.Latitude,
		Longitude:          rec.Location.Longitude,
		SpeedKmh:           rec.Location.SpeedKmh,
		Heading:            rec.Location.Heading,
		ProgressPercentage: rec.Progress.ProgressPercentage,
		Status:             rec.Operational.Status,
		DelayMinutes:       rec.Operational.CurrentDelayMinutes,
	}
}

// Metrics is implemented by the Prometheus collector; a nil Metrics is
// accepted everywhere in this package.
type Metrics interface {
	QueuedInc()
	DroppedInc()
	SubscriberDropInc()
	PublishedInc()
	PublishErrInc()
	PublishObserve(d time.Duration)
	SetConnected(connected bool)
	ClientsAdd(delta float64)
}
