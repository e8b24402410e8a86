package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"transit-speeds/internal/gtfs"
	"transit-speeds/internal/segment"
	"transit-speeds/internal/speed"
)

// Metrics receives per-trip outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	TripObserve(outcome string, d time.Duration)
	SegmentsRejected(reason string, n int)
	RecordsEmitted(n int)
}

type Options struct {
	Workers     int
	TripTimeout time.Duration // 0 disables
	Location    *time.Location
}

// Runner estimates speeds for every trip of a service date on a bounded pool of
// workers. Geometry is shared read-only; each trip is processed independently.
type Runner struct {
	store    *segment.Store
	estimate func(*segment.RouteGeometry, []gtfs.PositionReport) speed.TripResult
	opts     Options
	metrics  Metrics
	logger   *logrus.Logger
}

func NewRunner(store *segment.Store, est *speed.Estimator, opts Options, m Metrics, logger *logrus.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{store: store, estimate: est.EstimateTrip, opts: opts, metrics: m, logger: logger}
}

// Stats summarises one run.
type Stats struct {
	Trips          int
	Emitted        int
	Dropped        int
	Records        int
	DropReasons    map[speed.Reason]int
	SegmentRejects map[speed.Reason]int
}

type Run struct {
	ID          string
	ServiceDate string
	Records     []gtfs.SpeedRecord
	Stats       Stats
}

// Run processes all reports of one service date. Trips that fail are counted by
// reason and never abort the run; only context cancellation does.
func (r *Runner) Run(ctx context.Context, serviceDate string, reports []gtfs.PositionReport) (*Run, error) {
	run := &Run{
		ID:          uuid.NewString(),
		ServiceDate: serviceDate,
		Stats: Stats{
			DropReasons:    make(map[speed.Reason]int),
			SegmentRejects: make(map[speed.Reason]int),
		},
	}
	log := r.logger.WithFields(logrus.Fields{"run_id": run.ID, "service_date": serviceDate})

	keys, trips := GroupByTrip(reports)
	log.WithField("trips", len(keys)).Info("processing trips")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		tripReports := trips[key]
		g.Go(func() error {
			start := time.Now()
			res := r.processTrip(gctx, tripReports)
			elapsed := time.Since(start)

			for i := range res.Records {
				r.stamp(&res.Records[i], run.ID)
			}

			mu.Lock()
			run.Stats.Trips++
			for reason, n := range res.Rejects {
				run.Stats.SegmentRejects[reason] += n
			}
			if res.Dropped {
				run.Stats.Dropped++
				run.Stats.DropReasons[res.Reason]++
			} else {
				run.Stats.Emitted++
				run.Records = append(run.Records, res.Records...)
			}
			mu.Unlock()

			if r.metrics != nil {
				outcome := "emitted"
				if res.Dropped {
					outcome = string(res.Reason)
				}
				r.metrics.TripObserve(outcome, elapsed)
				for reason, n := range res.Rejects {
					r.metrics.SegmentsRejected(string(reason), n)
				}
				r.metrics.RecordsEmitted(len(res.Records))
			}
			if res.Dropped {
				log.WithFields(logrus.Fields{
					"trip_key": res.Key,
					"reason":   res.Reason,
					"retained": res.Retained,
				}).Debug("trip dropped")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortRecords(run.Records)
	run.Stats.Records = len(run.Records)
	log.WithFields(logrus.Fields{
		"trips":   run.Stats.Trips,
		"emitted": run.Stats.Emitted,
		"dropped": run.Stats.Dropped,
		"records": run.Stats.Records,
	}).Info("run finished")
	return run, nil
}

// processTrip runs the estimator for one trip, abandoning it once the per-trip
// deadline passes. An abandoned trip yields no partial records.
func (r *Runner) processTrip(ctx context.Context, reports []gtfs.PositionReport) speed.TripResult {
	g, err := r.store.ForTrip(reports[0].TripID)
	if err != nil {
		r.logger.WithError(err).WithField("trip_id", reports[0].TripID).Debug("no geometry for trip")
		g = nil
	}
	if r.opts.TripTimeout <= 0 {
		return r.estimate(g, reports)
	}

	done := make(chan speed.TripResult, 1)
	go func() { done <- r.estimate(g, reports) }()

	timer := time.NewTimer(r.opts.TripTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res
	case <-timer.C:
	case <-ctx.Done():
	}
	first := reports[0]
	return speed.TripResult{
		Key:       first.Key(),
		TripID:    first.TripID,
		VehicleID: first.VehicleID,
		RouteID:   first.RouteID,
		StartDate: first.StartDate,
		Dropped:   true,
		Reason:    speed.ReasonTimeout,
	}
}

// stamp fills the run id and the local calendar columns of a record. The
// calendar columns follow the time the vehicle reached the segment's end stop;
// weekdays count from Monday=0 to Sunday=6.
func (r *Runner) stamp(rec *gtfs.SpeedRecord, runID string) {
	rec.RunID = runID
	local := rec.ToTime.In(r.opts.Location)
	rec.LocalDate = local.Format("2006-01-02")
	rec.Weekday = (int(local.Weekday()) + 6) % 7
	rec.Hour = local.Hour()
}

// GroupByTrip buckets reports by trip instance. Keys are returned sorted.
func GroupByTrip(reports []gtfs.PositionReport) ([]gtfs.TripKey, map[gtfs.TripKey][]gtfs.PositionReport) {
	trips := make(map[gtfs.TripKey][]gtfs.PositionReport)
	for _, rep := range reports {
		if rep.TripID == "" {
			continue
		}
		k := rep.Key()
		trips[k] = append(trips[k], rep)
	}
	keys := make([]gtfs.TripKey, 0, len(trips))
	for k := range trips {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, trips
}

// FilterRoutes keeps reports on the given routes. An empty list keeps all.
// Requested routes with no reports are returned as missing.
func FilterRoutes(reports []gtfs.PositionReport, routes []string) ([]gtfs.PositionReport, []string) {
	if len(routes) == 0 {
		return reports, nil
	}
	want := make(map[string]bool, len(routes))
	for _, r := range routes {
		want[r] = false
	}
	out := make([]gtfs.PositionReport, 0, len(reports))
	for _, rep := range reports {
		if _, ok := want[rep.RouteID]; ok {
			want[rep.RouteID] = true
			out = append(out, rep)
		}
	}
	var missing []string
	for r, seen := range want {
		if !seen {
			missing = append(missing, r)
		}
	}
	sort.Strings(missing)
	return out, missing
}

// SortRecords orders records by trip instance then position along the shape.
func SortRecords(recs []gtfs.SpeedRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].TripKey != recs[j].TripKey {
			return recs[i].TripKey < recs[j].TripKey
		}
		return recs[i].FromPosition < recs[j].FromPosition
	})
}
