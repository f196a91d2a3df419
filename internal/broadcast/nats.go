package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher pushes updates into the external pub/sub fabric. Subjects
// are <prefix>.<route>.<vehicle>, so consumers subscribe to one route
// (prefix.R1.>) or to everything (prefix.>).
type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     Metrics
}

func NewNATSPublisher(url, subjectPrefix string, logSubjects bool, m Metrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-tracker"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			slog.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			slog.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			slog.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SetConnected(true)
	}
	if subjectPrefix == "" {
		subjectPrefix = "tracking"
	}
	return &NATSPublisher{nc: nc, prefix: subjectPrefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Deliver implements Sink. Publish errors are counted and logged, never
// propagated: the persisted record is the durable source of truth.
func (p *NATSPublisher) Deliver(u Update) {
	subject := fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken(u.RouteID), subjectToken(u.VehicleID))
	b, err := json.Marshal(u)
	if err != nil {
		slog.Error("marshal update failed", "error", err, "vehicle_id", u.VehicleID)
		return
	}
	if p.logSubjects {
		slog.Debug("nats publish", "subject", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.PublishErrInc()
		} else {
			p.metrics.PublishedInc()
		}
	}
	if err != nil {
		slog.Warn("nats publish failed", "error", err, "subject", subject)
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
