package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"transit-tracker/internal/ingest"
	"transit-tracker/internal/registry"
	"transit-tracker/internal/store"
	"transit-tracker/internal/track"
)

const (
	sourceLive       = "live"
	sourceNoLiveData = "no_live_data"
)

type liveResponse struct {
	Source   string                 `json:"source"`
	Count    int                    `json:"count"`
	Vehicles []track.LatestPosition `json:"vehicles"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ack, err := s.ingest.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	f := store.Filter{
		RouteID:     r.URL.Query().Get("routeId"),
		VehicleType: r.URL.Query().Get("vehicleType"),
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	if v := r.URL.Query().Get("bounds"); v != "" {
		b, err := parseBounds(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Bounds = b
	}

	now := s.now()
	// Stale single-shot test data must not show up as "live"; debug mode
	// opts into the unfiltered log.
	if r.URL.Query().Get("debug") != "1" {
		f.Since = now.Add(-s.stale)
	}

	start := time.Now()
	recs, err := s.store.Latest(r.Context(), f)
	if s.metrics != nil {
		s.metrics.LiveQueryObserve(time.Since(start))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "live query failed")
		return
	}

	resp := liveResponse{Source: sourceLive, Vehicles: make([]track.LatestPosition, 0, len(recs))}
	routeNames := make(map[string]string)
	for _, rec := range recs {
		v := track.LatestPosition{
			PositionRecord:     rec,
			ConnectionStatus:   s.windows.Classify(now, rec.Timestamp),
			LastSeenMinutesAgo: now.Sub(rec.Timestamp).Minutes(),
		}
		if s.routes != nil {
			name, ok := routeNames[rec.RouteID]
			if !ok {
				if rt, err := s.routes.Route(r.Context(), rec.RouteID); err == nil {
					name = rt.Name
				}
				routeNames[rec.RouteID] = name
			}
			v.RouteName = name
		}
		if s.devices != nil {
			if d, err := s.devices.Device(r.Context(), rec.DeviceID); err == nil {
				v.FleetID = d.FleetID
			}
		}
		resp.Vehicles = append(resp.Vehicles, v)
	}
	resp.Count = len(resp.Vehicles)
	if resp.Count == 0 {
		resp.Source = sourceNoLiveData
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleETA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ref := r.URL.Query().Get("bookingRef")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "bookingRef is required")
		return
	}

	res, err := s.eta.ForBooking(r.Context(), ref)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		writeError(w, http.StatusBadRequest, "vehicleId is required")
		return
	}

	n, err := s.store.Deactivate(r.Context(), vehicleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicleId": vehicleID, "deactivated": n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbState := "disabled"
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			status = "degraded"
			dbState = "unreachable"
		} else {
			dbState = "ok"
		}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"database":   dbState,
		"queueDepth": s.dispatcher.QueueDepth(),
	})
}

func parseBounds(v string) (*store.Bounds, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return nil, errors.New("bounds must be minLat,minLon,maxLat,maxLon")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bounds value %q", p)
		}
		vals[i] = f
	}
	b := &store.Bounds{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return nil, errors.New("bounds min must not exceed max")
	}
	return b, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrDeviceNotFound),
		errors.Is(err, registry.ErrRouteNotFound),
		errors.Is(err, registry.ErrBookingNotFound),
		errors.Is(err, ingest.ErrNotAssigned):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
