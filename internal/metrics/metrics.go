package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"transit-speeds/internal/speed"
)

type Collector struct {
	reg *prometheus.Registry

	TripsProcessed   *prometheus.CounterVec // outcome label: emitted or a drop reason
	SegmentsRejected *prometheus.CounterVec // reason label
	RecordsEmitted   prometheus.Counter
	BoundaryFailures *prometheus.CounterVec // reason label
	ShapesBuilt      prometheus.Gauge
	ShapesFailed     prometheus.Gauge
	DatesProcessed   *prometheus.CounterVec // result label: written|skipped|failed

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	DBRowsWritten prometheus.Counter

	TripDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	MinSamples prometheus.Gauge
	MaxSpeed   prometheus.Gauge
	Workers    prometheus.Gauge
}

func NewCollector(minSamples int, maxSpeed float64, workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TripsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speeds_trips_processed_total",
			Help: "Trips processed by outcome.",
		}, []string{"outcome"}),
		SegmentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speeds_segments_rejected_total",
			Help: "Samples and segments rejected by reason.",
		}, []string{"reason"}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speeds_records_emitted_total",
			Help: "Segment speed records emitted.",
		}),
		BoundaryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speeds_boundary_failures_total",
			Help: "Stop boundaries that produced no segment.",
		}, []string{"reason"}),
		ShapesBuilt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speeds_shapes_built",
			Help: "Shapes with usable geometry.",
		}),
		ShapesFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speeds_shapes_failed",
			Help: "Shapes whose path could not be built.",
		}),
		DatesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speeds_service_dates_total",
			Help: "Service dates handled by result.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speeds_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speeds_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speeds_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		DBRowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speeds_db_rows_written_total",
			Help: "Rows inserted into segment_speeds.",
		}),
		TripDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "speeds_trip_duration_seconds",
			Help:    "Time to estimate one trip.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "speeds_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		MinSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speeds_min_samples",
			Help: "Retained samples required per trip.",
		}),
		MaxSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speeds_max_speed",
			Help: "Speed at or above which a record is rejected.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speeds_workers",
			Help: "Size of the trip worker pool.",
		}),
	}

	// Register
	reg.MustRegister(
		c.TripsProcessed, c.SegmentsRejected, c.RecordsEmitted, c.BoundaryFailures,
		c.ShapesBuilt, c.ShapesFailed, c.DatesProcessed,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.DBRowsWritten,
		c.TripDuration, c.PublishDuration,
		c.MinSamples, c.MaxSpeed, c.Workers,
	)

	// Start every known label at zero so absent outcomes still show up
	c.TripsProcessed.WithLabelValues("emitted")
	for _, r := range speed.TripReasons {
		c.TripsProcessed.WithLabelValues(string(r))
	}
	for _, r := range speed.SegmentReasons {
		c.SegmentsRejected.WithLabelValues(string(r))
	}

	// Set static gauges
	c.MinSamples.Set(float64(minSamples))
	c.MaxSpeed.Set(maxSpeed)
	c.Workers.Set(float64(workers))

	return c
}

func (c *Collector) TripObserve(outcome string, d time.Duration) {
	c.TripsProcessed.WithLabelValues(outcome).Inc()
	c.TripDuration.Observe(d.Seconds())
}

func (c *Collector) SegmentsRejectedAdd(reason string, n int) {
	c.SegmentsRejected.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *logrus.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server error")
		}
	}()
	logger.WithField("addr", addr).Info("metrics listening")
	return srv
}
