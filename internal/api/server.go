package api

import (
	"context"
	"net/http"
	"time"

	"transit-tracker/internal/broadcast"
	"transit-tracker/internal/eta"
	"transit-tracker/internal/ingest"
	"transit-tracker/internal/registry"
	"transit-tracker/internal/store"
	"transit-tracker/internal/track"
)

// Pinger reports backing-store health; nil when running without Postgres.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Metrics interface {
	LiveQueryObserve(d time.Duration)
}

// Server wires the tracking HTTP surface.
type Server struct {
	ingest     *ingest.Service
	eta        *eta.Service
	store      store.Store
	routes     registry.RouteResolver
	devices    registry.DeviceResolver
	hub        *broadcast.Hub
	dispatcher *broadcast.Dispatcher
	windows    track.LivenessWindows
	stale      time.Duration
	pinger     Pinger
	metrics    Metrics
	now        func() time.Time
}

func NewServer(ing *ingest.Service, etaSvc *eta.Service, st store.Store, routes registry.RouteResolver, devices registry.DeviceResolver, hub *broadcast.Hub, d *broadcast.Dispatcher, windows track.LivenessWindows, staleCutoff time.Duration, pinger Pinger, m Metrics) *Server {
	return &Server{
		ingest:     ing,
		eta:        etaSvc,
		store:      st,
		routes:     routes,
		devices:    devices,
		hub:        hub,
		dispatcher: d,
		windows:    windows,
		stale:      staleCutoff,
		pinger:     pinger,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/tracking/update", s.handleUpdate)
	mux.HandleFunc("/tracking/live", s.handleLive)
	mux.HandleFunc("/tracking/eta", s.handleETA)
	mux.HandleFunc("/tracking/reset", s.handleReset)
	mux.HandleFunc("/tracking/ws", s.hub.ServeWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}
