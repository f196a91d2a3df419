package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	IngestAccepted prometheus.Counter
	IngestRejected *prometheus.CounterVec // reason label
	IngestDuration prometheus.Histogram

	BroadcastQueued  prometheus.Counter
	BroadcastDropped prometheus.Counter
	SubscriberDrops  prometheus.Counter
	ConnectedClients prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	LiveQueryDuration prometheus.Histogram

	OnlineWindowSeconds prometheus.Gauge
	RecentWindowSeconds prometheus.Gauge
	OffRouteThresholdM  prometheus.Gauge
}

func NewCollector(onlineWindow, recentWindow time.Duration, offRouteThresholdMeters float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		IngestAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_ingest_accepted_total",
			Help: "Total position reports accepted and persisted.",
		}),
		IngestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_ingest_rejected_total",
			Help: "Total position reports rejected.",
		}, []string{"reason"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_ingest_duration_seconds",
			Help:    "Duration of the ingest write path.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		BroadcastQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_broadcast_queued_total",
			Help: "Total updates accepted into the broadcast queue.",
		}),
		BroadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_broadcast_dropped_total",
			Help: "Total updates dropped because the broadcast queue was full.",
		}),
		SubscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_subscriber_drops_total",
			Help: "Total updates dropped for individual saturated subscribers.",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_connected_clients",
			Help: "Number of connected WebSocket subscribers.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		LiveQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_live_query_duration_seconds",
			Help:    "Duration of latest-position queries.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		OnlineWindowSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_online_window_seconds",
			Help: "Configured online liveness window in seconds.",
		}),
		RecentWindowSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_recently_offline_window_seconds",
			Help: "Configured recently-offline window in seconds.",
		}),
		OffRouteThresholdM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_off_route_threshold_meters",
			Help: "Configured off-route distance threshold in meters.",
		}),
	}

	reg.MustRegister(
		c.IngestAccepted, c.IngestRejected, c.IngestDuration,
		c.BroadcastQueued, c.BroadcastDropped, c.SubscriberDrops, c.ConnectedClients,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.LiveQueryDuration,
		c.OnlineWindowSeconds, c.RecentWindowSeconds, c.OffRouteThresholdM,
	)

	c.OnlineWindowSeconds.Set(onlineWindow.Seconds())
	c.RecentWindowSeconds.Set(recentWindow.Seconds())
	c.OffRouteThresholdM.Set(offRouteThresholdMeters)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
