package broadcast

import (
	"context"
	"log/slog"
)

// Sink receives updates from the dispatcher. Deliver must not block: sinks
// that write to the network either buffer internally (NATS) or drop per
// subscriber (hub).
type Sink interface {
	Deliver(u Update)
}

// Dispatcher decouples ingest from delivery. Ingest enqueues and returns;
// a single goroutine drains the bounded queue and fans each update out to
// all sinks. A full queue drops the update: a missed position is superseded
// by the next report, so blocking the ingest path is never worth it.
type Dispatcher struct {
	queue   chan Update
	sinks   []Sink
	metrics Metrics
}

func NewDispatcher(queueSize int, m Metrics, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		queue:   make(chan Update, queueSize),
		sinks:   sinks,
		metrics: m,
	}
}

// Enqueue schedules an update for delivery. It never blocks; the return
// value reports whether the update was accepted.
func (d *Dispatcher) Enqueue(u Update) bool {
	select {
	case d.queue <- u:
		if d.metrics != nil {
			d.metrics.QueuedInc()
		}
		return true
	default:
		if d.metrics != nil {
			d.metrics.DroppedInc()
		}
		slog.Warn("broadcast queue full, update dropped",
			"vehicle_id", u.VehicleID, "route_id", u.RouteID)
		return false
	}
}

// Run drains the queue until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-d.queue:
			for _, s := range d.sinks {
				s.Deliver(u)
			}
		}
	}
}

// QueueDepth reports the number of pending updates, exposed by health.
func (d *Dispatcher) QueueDepth() int { return len(d.queue) }
