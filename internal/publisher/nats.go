package publisher

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"transit-speeds/internal/gtfs"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	logger      *logrus.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger *logrus.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	nc, err := nats.Connect(url,
		nats.Name("transit-speeds"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m, logger: logger}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

func (p *NATSPublisher) PublishRecord(rec gtfs.SpeedRecord) error {
	subject := Subject(p.prefix, rec.RouteID, rec.ShapeID)
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.WithField("subject", subject).Debug("nats publish")
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// PublishRecords publishes every record and flushes. It stops at the first
// failed publish and returns how many went out before it.
func (p *NATSPublisher) PublishRecords(recs []gtfs.SpeedRecord) (int, error) {
	for i, rec := range recs {
		if err := p.PublishRecord(rec); err != nil {
			return i, err
		}
	}
	return len(recs), p.nc.Flush()
}

// Subject builds <prefix>.<route>.<shape>.
func Subject(prefix, routeID, shapeID string) string {
	parts := make([]string, 0, 3)
	if prefix = strings.Trim(strings.TrimSpace(prefix), "."); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, subjectToken(routeID), subjectToken(shapeID))
	return strings.Join(parts, ".")
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
