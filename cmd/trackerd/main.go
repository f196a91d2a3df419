package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"transit-tracker/internal/api"
	"transit-tracker/internal/broadcast"
	"transit-tracker/internal/config"
	"transit-tracker/internal/eta"
	"transit-tracker/internal/ingest"
	"transit-tracker/internal/metrics"
	"transit-tracker/internal/registry"
	"transit-tracker/internal/store"
	"transit-tracker/internal/track"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.OnlineWindow, cfg.RecentlyOfflineWindow, cfg.OffRouteThresholdMeters)
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	windows := track.LivenessWindows{
		Online:          cfg.OnlineWindow,
		RecentlyOffline: cfg.RecentlyOfflineWindow,
	}

	var (
		st       store.Store
		routes   registry.RouteResolver
		devices  registry.DeviceResolver
		bookings registry.BookingResolver
		pinger   api.Pinger
	)
	if cfg.DatabaseURL != "" {
		sqlDB, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer sqlDB.Close()
		if err := store.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		pg := store.NewPostgres(sqlDB)
		if err := pg.Bootstrap(ctx); err != nil {
			log.Fatalf("db bootstrap error: %v", err)
		}
		reg := registry.NewPostgres(sqlDB)
		st, routes, devices, bookings = pg, reg, reg, reg
		pinger = dbPinger{db: sqlDB}
	} else {
		// Dev mode: YAML registry and in-memory position log.
		reg, err := registry.LoadFile(cfg.RoutesFile)
		if err != nil {
			log.Fatalf("routes file error: %v", err)
		}
		st = store.NewMemory(reg, reg)
		routes, devices, bookings = reg, reg, reg
		log.Printf("running without postgres, registry loaded from %s", cfg.RoutesFile)
	}

	hub := broadcast.NewHub(cfg.ClientBufferSize, wrapBroadcastMetrics(mcol))
	sinks := []broadcast.Sink{hub}
	if cfg.NATSURL != "" {
		pub, err := broadcast.NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, cfg.LogNATSSubjects, wrapBroadcastMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	dispatcher := broadcast.NewDispatcher(cfg.BroadcastQueueSize, wrapBroadcastMetrics(mcol), sinks...)
	go dispatcher.Run(ctx)

	ing := ingest.NewService(st, routes, devices, dispatcher, cfg.OffRouteThresholdMeters, wrapIngestMetrics(mcol))
	etaSvc := eta.NewService(bookings, st, windows)

	srv := api.NewServer(ing, etaSvc, st, routes, devices, hub, dispatcher, windows, cfg.StaleCutoff, pinger, wrapAPIMetrics(mcol))
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("tracking api listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	hub.CloseAll()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Println("shutdown complete")
}

type dbPinger struct{ db *sql.DB }

func (p dbPinger) Ping(ctx context.Context) error { return store.Ping(ctx, p.db) }

// wrap* adapt the Collector to the per-package metrics interfaces; a nil
// Collector yields a nil interface so callers skip instrumentation.
func wrapBroadcastMetrics(c *metrics.Collector) broadcast.Metrics {
	if c == nil {
		return nil
	}
	return &trackerMetrics{c: c}
}

func wrapIngestMetrics(c *metrics.Collector) ingest.Metrics {
	if c == nil {
		return nil
	}
	return &trackerMetrics{c: c}
}

func wrapAPIMetrics(c *metrics.Collector) api.Metrics {
	if c == nil {
		return nil
	}
	return &trackerMetrics{c: c}
}

type trackerMetrics struct{ c *metrics.Collector }

func (m *trackerMetrics) QueuedInc()                        { m.c.BroadcastQueued.Inc() }
func (m *trackerMetrics) DroppedInc()                       { m.c.BroadcastDropped.Inc() }
func (m *trackerMetrics) SubscriberDropInc()                { m.c.SubscriberDrops.Inc() }
func (m *trackerMetrics) PublishedInc()                     { m.c.NATSPublished.Inc() }
func (m *trackerMetrics) PublishErrInc()                    { m.c.NATSPublishErrs.Inc() }
func (m *trackerMetrics) PublishObserve(d time.Duration)    { m.c.PublishDuration.Observe(d.Seconds()) }
func (m *trackerMetrics) ClientsAdd(delta float64)          { m.c.ConnectedClients.Add(delta) }
func (m *trackerMetrics) AcceptedInc()                      { m.c.IngestAccepted.Inc() }
func (m *trackerMetrics) RejectedInc(reason string)         { m.c.IngestRejected.WithLabelValues(reason).Inc() }
func (m *trackerMetrics) IngestObserve(d time.Duration)     { m.c.IngestDuration.Observe(d.Seconds()) }
func (m *trackerMetrics) LiveQueryObserve(d time.Duration)  { m.c.LiveQueryDuration.Observe(d.Seconds()) }

func (m *trackerMetrics) SetConnected(connected bool) {
	if connected {
		m.c.NATSConnected.Set(1)
	} else {
		m.c.NATSConnected.Set(0)
	}
}
