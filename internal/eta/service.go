package eta

import (
	"context"
	"fmt"
	"time"

	"transit-tracker/internal/registry"
	"transit-tracker/internal/store"
	"transit-tracker/internal/track"
)

const (
	StatusTracked    = "tracked"
	StatusNoTracking = "no_tracking"
)

// Result is the ETA answer for a booking. StatusNoTracking is a normal
// outcome, not an error: no vehicle on the route has reported recently
// enough to estimate from.
type Result struct {
	Status              string    `json:"status"`
	BookingRef          string    `json:"bookingRef"`
	RouteID             string    `json:"routeId"`
	VehicleID           string    `json:"vehicleId,omitempty"`
	VehicleNumber       string    `json:"vehicleNumber,omitempty"`
	MatchedTrip         bool      `json:"matchedTrip"`
	CurrentDelayMinutes int       `json:"currentDelayMinutes"`
	ScheduledDeparture  time.Time `json:"scheduledDeparture"`
	EstimatedDeparture  time.Time `json:"estimatedDeparture,omitempty"`
}

type Service struct {
	bookings registry.BookingResolver
	store    store.Store
	windows  track.LivenessWindows
	now      func() time.Time
}

func NewService(bookings registry.BookingResolver, st store.Store, windows track.LivenessWindows) *Service {
	return &Service{
		bookings: bookings,
		store:    st,
		windows:  windows,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ForBooking resolves the booking's route and picks the most plausible
// live vehicle. A vehicle on the booking's trip wins outright; otherwise
// the least-delayed vehicle on the route is used. With more than one
// vehicle per route that is a heuristic, and MatchedTrip tells the caller
// which case they got.
func (s *Service) ForBooking(ctx context.Context, ref string) (Result, error) {
	booking, err := s.bookings.Booking(ctx, ref)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	recs, err := s.store.Latest(ctx, store.Filter{
		RouteID: booking.RouteID,
		Since:   now.Add(-s.windows.RecentlyOffline),
	})
	if err != nil {
		return Result{}, fmt.Errorf("query live vehicles: %w", err)
	}

	res := Result{
		Status:             StatusNoTracking,
		BookingRef:         booking.Ref,
		RouteID:            booking.RouteID,
		ScheduledDeparture: booking.ScheduledDeparture,
	}
	if len(recs) == 0 {
		return res, nil
	}

	best := recs[0]
	matched := false
	for _, r := range recs {
		if booking.TripID != "" && r.Operational.Trip.TripID == booking.TripID {
			if !matched || r.Timestamp.After(best.Timestamp) {
				best = r
				matched = true
			}
			continue
		}
		if !matched && r.Operational.CurrentDelayMinutes < best.Operational.CurrentDelayMinutes {
			best = r
		}
	}

	delay := best.Operational.CurrentDelayMinutes
	res.Status = StatusTracked
	res.VehicleID = best.VehicleID
	res.VehicleNumber = best.VehicleNumber
	res.MatchedTrip = matched
	res.CurrentDelayMinutes = delay
	res.EstimatedDeparture = booking.ScheduledDeparture.Add(time.Duration(delay) * time.Minute)
	return res, nil
}
