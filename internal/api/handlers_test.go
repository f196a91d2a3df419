package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"transit-tracker/internal/broadcast"
	"transit-tracker/internal/eta"
	"transit-tracker/internal/ingest"
	"transit-tracker/internal/registry"
	"transit-tracker/internal/store"
	"transit-tracker/internal/track"
)

const testRegistry = `
routes:
  - id: R1
    name: Airport Express
    scheduledSpeedKmh: 40
    waypoints:
      - {lat: 0, lon: 0}
      - {lat: 0, lon: 0.045}
      - {lat: 0, lon: 0.09}
devices:
  - id: dev-1
    vehicleId: veh-1
    vehicleNumber: KA-01
    vehicleType: bus
    fleetId: fleet-a
    routeId: R1
bookings:
  - ref: BK1
    routeId: R1
    tripId: T1
    scheduledDeparture: 2025-06-01T14:00:00Z
`

type testEnv struct {
	srv *Server
	mux *http.ServeMux
	st  *store.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg, err := registry.ParseFile([]byte(testRegistry))
	if err != nil {
		t.Fatalf("parse registry: %v", err)
	}
	st := store.NewMemory(reg, reg)
	d := broadcast.NewDispatcher(16, nil)
	hub := broadcast.NewHub(4, nil)
	ing := ingest.NewService(st, reg, reg, d, 2000, nil)
	etaSvc := eta.NewService(reg, st, track.DefaultLivenessWindows())
	srv := NewServer(ing, etaSvc, st, reg, reg, hub, d, track.DefaultLivenessWindows(), time.Hour, nil, nil)
	return &testEnv{srv: srv, mux: srv.Routes(), st: st}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func validUpdateBody(tripID string) string {
	return `{
		"deviceId": "dev-1",
		"vehicleId": "veh-1",
		"location": {"latitude": 0.0, "longitude": 0.036, "speed": 40, "heading": 90},
		"operationalInfo": {"status": "on_route", "currentDelayMinutes": 3, "tripInfo": {"routeId": "R1", "tripId": "` + tripID + `"}}
	}`
}

func TestUpdateEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"valid report", http.MethodPost, validUpdateBody("T1"), http.StatusOK},
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{broken", http.StatusBadRequest},
		{"missing location", http.MethodPost, `{"deviceId":"dev-1","vehicleId":"veh-1","operationalInfo":{"tripInfo":{"routeId":"R1"}}}`, http.StatusBadRequest},
		{"unknown device", http.MethodPost, strings.Replace(validUpdateBody("T1"), "dev-1", "ghost", 1), http.StatusNotFound},
		{"unknown route", http.MethodPost, strings.Replace(validUpdateBody("T1"), `"routeId": "R1"`, `"routeId": "R404"`, 1), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, tt.method, "/tracking/update", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var ack ingest.Ack
				if err := json.NewDecoder(rec.Body).Decode(&ack); err != nil {
					t.Fatalf("decode ack: %v", err)
				}
				if ack.TrackingID == "" {
					t.Error("got empty trackingId in ack")
				}
			}
		})
	}
}

func TestLiveEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty log answers no_live_data", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/tracking/live", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rec.Code)
		}
		var resp liveResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Source != sourceNoLiveData || resp.Count != 0 {
			t.Errorf("got source %s count %d, want %s/0", resp.Source, resp.Count, sourceNoLiveData)
		}
	})

	if rec := env.do(t, http.MethodPost, "/tracking/update", validUpdateBody("T1")); rec.Code != http.StatusOK {
		t.Fatalf("seed update failed: %d %s", rec.Code, rec.Body.String())
	}

	t.Run("fresh report is live and online", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/tracking/live", "")
		var resp liveResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Source != sourceLive || resp.Count != 1 {
			t.Fatalf("got source %s count %d, want live/1", resp.Source, resp.Count)
		}
		v := resp.Vehicles[0]
		if v.VehicleID != "veh-1" {
			t.Errorf("vehicle: got %s, want veh-1", v.VehicleID)
		}
		if v.ConnectionStatus != track.ConnOnline {
			t.Errorf("connection status: got %s, want %s", v.ConnectionStatus, track.ConnOnline)
		}
		if v.RouteName != "Airport Express" {
			t.Errorf("route name: got %q, want Airport Express", v.RouteName)
		}
		if v.FleetID != "fleet-a" {
			t.Errorf("fleet id: got %q, want fleet-a", v.FleetID)
		}
		if v.Progress.ProgressPercentage < 39 || v.Progress.ProgressPercentage > 41 {
			t.Errorf("progress: got %f, want ~40", v.Progress.ProgressPercentage)
		}
	})

	t.Run("route filter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/tracking/live?routeId=R404", "")
		var resp liveResponse
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Source != sourceNoLiveData {
			t.Errorf("got source %s, want %s", resp.Source, sourceNoLiveData)
		}
	})

	t.Run("bounds filter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/tracking/live?bounds=-1,-1,1,1", "")
		var resp liveResponse
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Count != 1 {
			t.Errorf("inside bounds: got count %d, want 1", resp.Count)
		}

		rec = env.do(t, http.MethodGet, "/tracking/live?bounds=40,40,50,50", "")
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Count != 0 {
			t.Errorf("outside bounds: got count %d, want 0", resp.Count)
		}
	})

	t.Run("bad query parameters", func(t *testing.T) {
		if rec := env.do(t, http.MethodGet, "/tracking/live?limit=abc", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("bad limit: got %d, want 400", rec.Code)
		}
		if rec := env.do(t, http.MethodGet, "/tracking/live?limit=-1", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("negative limit: got %d, want 400", rec.Code)
		}
		if rec := env.do(t, http.MethodGet, "/tracking/live?bounds=1,2,3", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("short bounds: got %d, want 400", rec.Code)
		}
		if rec := env.do(t, http.MethodGet, "/tracking/live?bounds=2,2,1,1", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("inverted bounds: got %d, want 400", rec.Code)
		}
	})
}

func TestLiveEndpointStaleCutoff(t *testing.T) {
	env := newTestEnv(t)

	old := track.PositionRecord{
		TrackingID: "stale-1",
		DeviceID:   "dev-1",
		VehicleID:  "veh-1",
		RouteID:    "R1",
		Location:   track.Location{Latitude: 0, Longitude: 0.01},
		Timestamp:  time.Now().UTC().Add(-2 * time.Hour),
		Active:     true,
	}
	if err := env.st.Append(context.Background(), old); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/tracking/live", "")
	var resp liveResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Source != sourceNoLiveData {
		t.Errorf("stale record: got source %s, want %s", resp.Source, sourceNoLiveData)
	}

	// debug mode skips the staleness cutoff
	rec = env.do(t, http.MethodGet, "/tracking/live?debug=1", "")
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Count != 1 {
		t.Fatalf("debug mode: got count %d, want 1", resp.Count)
	}
	if got := resp.Vehicles[0].ConnectionStatus; got != track.ConnOffline {
		t.Errorf("connection status: got %s, want %s", got, track.ConnOffline)
	}
	if resp.Vehicles[0].LastSeenMinutesAgo < 110 {
		t.Errorf("last seen: got %f minutes, want >= 110", resp.Vehicles[0].LastSeenMinutesAgo)
	}
}

func TestETAEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing bookingRef", func(t *testing.T) {
		if rec := env.do(t, http.MethodGet, "/tracking/eta", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("got %d, want 400", rec.Code)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		if rec := env.do(t, http.MethodGet, "/tracking/eta?bookingRef=NOPE", ""); rec.Code != http.StatusNotFound {
			t.Errorf("got %d, want 404", rec.Code)
		}
	})

	t.Run("no tracking yet", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/tracking/eta?bookingRef=BK1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", rec.Code)
		}
		var res eta.Result
		_ = json.NewDecoder(rec.Body).Decode(&res)
		if res.Status != eta.StatusNoTracking {
			t.Errorf("status: got %s, want %s", res.Status, eta.StatusNoTracking)
		}
	})

	if rec := env.do(t, http.MethodPost, "/tracking/update", validUpdateBody("T1")); rec.Code != http.StatusOK {
		t.Fatalf("seed update failed: %d", rec.Code)
	}

	t.Run("tracked with trip match", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/tracking/eta?bookingRef=BK1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", rec.Code)
		}
		var res eta.Result
		_ = json.NewDecoder(rec.Body).Decode(&res)
		if res.Status != eta.StatusTracked {
			t.Fatalf("status: got %s, want %s", res.Status, eta.StatusTracked)
		}
		if !res.MatchedTrip || res.VehicleID != "veh-1" {
			t.Errorf("got matchedTrip=%v vehicle=%s, want true/veh-1", res.MatchedTrip, res.VehicleID)
		}
		if res.CurrentDelayMinutes != 3 {
			t.Errorf("delay: got %d, want 3", res.CurrentDelayMinutes)
		}
		wantEst := time.Date(2025, 6, 1, 14, 3, 0, 0, time.UTC)
		if !res.EstimatedDeparture.Equal(wantEst) {
			t.Errorf("estimated departure: got %s, want %s", res.EstimatedDeparture, wantEst)
		}
	})
}

func TestResetEndpoint(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/tracking/reset?vehicleId=veh-1", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: got %d, want 405", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/tracking/reset", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing vehicleId: got %d, want 400", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/tracking/update", validUpdateBody("T1")); rec.Code != http.StatusOK {
		t.Fatalf("seed update failed: %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/tracking/reset?vehicleId=veh-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var res struct {
		VehicleID   string `json:"vehicleId"`
		Deactivated int64  `json:"deactivated"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&res)
	if res.Deactivated != 1 {
		t.Errorf("deactivated: got %d, want 1", res.Deactivated)
	}

	live := env.do(t, http.MethodGet, "/tracking/live", "")
	var resp liveResponse
	_ = json.NewDecoder(live.Body).Decode(&resp)
	if resp.Count != 0 {
		t.Errorf("live after reset: got count %d, want 0", resp.Count)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var res struct {
		Status     string `json:"status"`
		Database   string `json:"database"`
		QueueDepth int    `json:"queueDepth"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&res)
	if res.Status != "ok" {
		t.Errorf("status: got %s, want ok", res.Status)
	}
	if res.Database != "disabled" {
		t.Errorf("database: got %s, want disabled (no pinger configured)", res.Database)
	}
}
