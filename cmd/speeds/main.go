package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"transit-speeds/internal/batch"
	"transit-speeds/internal/config"
	"transit-speeds/internal/db"
	"transit-speeds/internal/export"
	"transit-speeds/internal/feed"
	"transit-speeds/internal/gtfs"
	"transit-speeds/internal/metrics"
	"transit-speeds/internal/publisher"
	"transit-speeds/internal/segment"
	"transit-speeds/internal/speed"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup happens before exit.
func run() int {
	startDate := flag.StringP("start-date", "s", "", "first service date to process (YYYYMMDD)")
	endDate := flag.StringP("end-date", "e", "", "last service date to process (YYYYMMDD), defaults to --start-date")
	routes := flag.StringSliceP("routes", "r", nil, "only process these route ids (comma separated)")
	dryRun := flag.BoolP("dry-run", "n", false, "estimate but do not write or publish records")
	configPath := flag.StringP("config", "c", "", "YAML file with estimator settings (overrides SPEEDS_CONFIG)")
	help := flag.BoolP("help", "h", false, "this message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s --start-date YYYYMMDD [--end-date YYYYMMDD] [--routes R1,R2]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *help {
		flag.Usage()
		return 0
	}
	if *startDate == "" {
		fmt.Fprintln(os.Stderr, "missing --start-date")
		flag.Usage()
		return 2
	}
	if *configPath != "" {
		os.Setenv("SPEEDS_CONFIG", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Errorf("config error: %v", err)
		return 1
	}
	logger, err := newLogger(cfg)
	if err != nil {
		logrus.Errorf("logger: %v", err)
		return 1
	}

	dates, err := batch.ServiceDates(*startDate, *endDate)
	if err != nil {
		logger.Errorf("service dates: %v", err)
		return 1
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		conn, name, err := db.Connect(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			logger.Errorf("database: %v", err)
			return 1
		}
		defer conn.Close()
		if name != "" {
			logger.WithFields(logrus.Fields{"db": name, "city": cfg.City}).Info("using latest city database")
		}
		sqlDB = conn
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.Estimator.MinSamples, cfg.Estimator.MaxSpeed, cfg.Workers)
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	store, err := buildStore(ctx, cfg, sqlDB, *routes, logger, mcol)
	if err != nil {
		logger.Errorf("route geometry: %v", err)
		return 1
	}

	if cfg.SegmentsGeoJSON != "" {
		n, err := export.WriteSegmentsFile(cfg.SegmentsGeoJSON, store.Shapes())
		if err != nil {
			logger.Errorf("segments export: %v", err)
			return 1
		}
		logger.WithFields(logrus.Fields{"path": cfg.SegmentsGeoJSON, "segments": n}).Info("segments written")
	}

	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" && !*dryRun {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			logger.Errorf("nats error: %v", err)
			return 1
		}
		defer pub.Close()
	}

	persist := sqlDB != nil && !*dryRun
	if persist {
		if err := db.EnsureSpeedsTable(ctx, sqlDB); err != nil {
			logger.Errorf("ensure segment_speeds: %v", err)
			return 1
		}
	}

	est := speed.NewEstimator(speed.Options{
		MinSamples:  cfg.Estimator.MinSamples,
		SpeedFactor: cfg.Estimator.SpeedFactor,
		MaxSpeed:    cfg.Estimator.MaxSpeed,
		MaxDistance: cfg.Estimator.MaxDistanceToPath,
	})
	runner := batch.NewRunner(store, est, batch.Options{
		Workers:     cfg.Workers,
		TripTimeout: cfg.TripTimeout,
		Location:    cfg.Location,
	}, wrapBatchMetrics(mcol), logger)

	failures := 0
	for _, date := range dates {
		if ctx.Err() != nil {
			break
		}
		log := logger.WithField("date", date)

		if persist {
			done, err := db.SpeedsExist(ctx, sqlDB, date)
			if err != nil {
				log.WithError(err).Error("check existing speeds")
				dateResult(mcol, "failed")
				failures++
				continue
			}
			if done {
				log.Info("speeds already written, skipping")
				dateResult(mcol, "skipped")
				continue
			}
		}

		reports, err := loadReports(ctx, cfg, sqlDB, date, *routes)
		if err != nil {
			log.WithError(err).Error("load vehicle positions")
			dateResult(mcol, "failed")
			failures++
			continue
		}
		reports, missing := batch.FilterRoutes(reports, *routes)
		if len(missing) > 0 {
			log.WithField("routes", missing).Warn("requested routes have no positions")
		}
		if len(reports) == 0 {
			log.Info("no vehicle positions")
			dateResult(mcol, "skipped")
			continue
		}

		run, err := runner.Run(ctx, date, reports)
		if err != nil {
			log.WithError(err).Error("run aborted")
			dateResult(mcol, "failed")
			failures++
			break
		}

		if persist {
			n, err := db.InsertSpeedRecords(ctx, sqlDB, run.Records)
			if err != nil {
				log.WithError(err).Error("write speeds")
				dateResult(mcol, "failed")
				failures++
				continue
			}
			if mcol != nil {
				mcol.DBRowsWritten.Add(float64(n))
			}
		}
		if pub != nil {
			if n, err := pub.PublishRecords(run.Records); err != nil {
				log.WithError(err).WithField("published", n).Error("publish speeds")
			}
		}
		dateResult(mcol, "written")
	}

	if failures > 0 {
		logger.WithField("failed_dates", failures).Error("finished with failures")
		return 1
	}
	logger.Info("done")
	return 0
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", cfg.LogLevel)
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

// buildStore loads the static topology from a GTFS file when STATIC_GTFS_PATH
// is set and from the imported schedule database otherwise.
func buildStore(ctx context.Context, cfg *config.Config, sqlDB *sql.DB, routes []string, logger *logrus.Logger, mcol *metrics.Collector) (*segment.Store, error) {
	var (
		trips  []gtfs.Trip
		inputs []segment.RouteInput
	)
	if cfg.StaticGTFSPath != "" {
		sf, err := feed.LoadStatic(cfg.StaticGTFSPath)
		if err != nil {
			return nil, err
		}
		trips, inputs = sf.RouteInputs(routes)
	} else {
		if sqlDB == nil {
			return nil, fmt.Errorf("no static schedule source configured")
		}
		var err error
		trips, err = db.FetchTrips(ctx, sqlDB, routes)
		if err != nil {
			return nil, err
		}
		inputs, err = db.LoadRouteInputs(ctx, sqlDB, trips)
		if err != nil {
			return nil, err
		}
	}

	gap, err := segment.ParseGapPolicy(cfg.Estimator.GapPolicy)
	if err != nil {
		return nil, err
	}
	store := segment.NewStore(inputs, trips, segment.StoreOptions{
		Segment: segment.Options{
			Gap:             gap,
			MaxStopDistance: cfg.Estimator.MaxStopDistance,
		},
		MergeTolerance: cfg.Estimator.MergeTolerance,
	})

	failed := store.Failed()
	for shapeID, err := range failed {
		logger.WithField("shape_id", shapeID).WithError(err).Warn("shape geometry unusable")
	}
	shapes := store.Shapes()
	boundary := 0
	for _, g := range shapes {
		for _, f := range g.Failures {
			logger.WithFields(logrus.Fields{
				"shape_id":     g.ShapeID,
				"stop_id":      f.StopID,
				"prev_stop_id": f.PrevStopID,
				"reason":       f.Reason,
			}).Debug("stop boundary skipped")
			if mcol != nil {
				mcol.BoundaryFailures.WithLabelValues(string(f.Reason)).Inc()
			}
			boundary++
		}
	}
	if mcol != nil {
		mcol.ShapesBuilt.Set(float64(len(shapes)))
		mcol.ShapesFailed.Set(float64(len(failed)))
	}
	logger.WithFields(logrus.Fields{
		"trips":             len(trips),
		"shapes":            len(shapes),
		"shapes_failed":     len(failed),
		"boundary_failures": boundary,
	}).Info("route geometry built")
	return store, nil
}

func loadReports(ctx context.Context, cfg *config.Config, sqlDB *sql.DB, date string, routes []string) ([]gtfs.PositionReport, error) {
	if cfg.RTFeedDir != "" {
		return feed.LoadFeedDir(cfg.RTFeedDir, date)
	}
	if sqlDB == nil {
		return nil, fmt.Errorf("no vehicle position source configured")
	}
	return db.FetchVehiclePositions(ctx, sqlDB, date, routes)
}

func dateResult(c *metrics.Collector, result string) {
	if c != nil {
		c.DatesProcessed.WithLabelValues(result).Inc()
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

func wrapBatchMetrics(c *metrics.Collector) batch.Metrics {
	if c == nil {
		return nil
	}
	return &runMetrics{c: c}
}

type runMetrics struct{ c *metrics.Collector }

func (r *runMetrics) TripObserve(outcome string, d time.Duration) { r.c.TripObserve(outcome, d) }
func (r *runMetrics) SegmentsRejected(reason string, n int)       { r.c.SegmentsRejectedAdd(reason, n) }
func (r *runMetrics) RecordsEmitted(n int)                        { r.c.RecordsEmitted.Add(float64(n)) }
