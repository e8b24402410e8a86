package speed

import (
	"transit-speeds/internal/gtfs"
	"transit-speeds/internal/segment"
)

type Options struct {
	MinSamples  int     // retained samples needed to keep a trip
	SpeedFactor float64 // metres per second to output units
	MaxSpeed    float64 // in output units, exclusive
	MaxDistance float64 // metres from the path before a sample is off-path; 0 disables
}

// MetresPerSecondToMPH converts m/s into miles per hour.
const MetresPerSecondToMPH = 2.236936

func DefaultOptions() Options {
	return Options{
		MinSamples:  10,
		SpeedFactor: MetresPerSecondToMPH,
		MaxSpeed:    70,
	}
}

// TripResult is the outcome of one trip. A dropped trip carries a Reason and no
// records.
type TripResult struct {
	Key       gtfs.TripKey
	TripID    string
	VehicleID string
	RouteID   string
	ShapeID   string
	StartDate string
	Records   []gtfs.SpeedRecord
	Dropped   bool
	Reason    Reason
	Retained  int
	Rejects   map[Reason]int
}

// Estimator turns one trip's reports into segment speed records. It holds no
// per-trip state and is safe for concurrent use.
type Estimator struct {
	opts      Options
	validator Validator
}

func NewEstimator(opts Options) *Estimator {
	def := DefaultOptions()
	if opts.MinSamples <= 0 {
		opts.MinSamples = def.MinSamples
	}
	if opts.SpeedFactor <= 0 {
		opts.SpeedFactor = def.SpeedFactor
	}
	if opts.MaxSpeed <= 0 {
		opts.MaxSpeed = def.MaxSpeed
	}
	return &Estimator{
		opts:      opts,
		validator: Validator{MaxSpeed: opts.MaxSpeed, RejectOffPath: opts.MaxDistance > 0},
	}
}

func (e *Estimator) Options() Options { return e.opts }

// EstimateTrip runs one trip through projection, monotonic filtering,
// interpolation and validation. reports must all belong to the same trip
// instance.
func (e *Estimator) EstimateTrip(g *segment.RouteGeometry, reports []gtfs.PositionReport) TripResult {
	res := TripResult{Rejects: make(map[Reason]int)}
	if len(reports) > 0 {
		first := reports[0]
		res.Key = first.Key()
		res.TripID = first.TripID
		res.VehicleID = first.VehicleID
		res.RouteID = first.RouteID
		res.StartDate = first.StartDate
	}
	if g == nil || g.Path == nil {
		return res.drop(ReasonNoGeometry)
	}
	res.ShapeID = g.ShapeID
	if res.RouteID == "" {
		res.RouteID = g.RouteID
	}
	if len(reports) == 0 {
		return res.drop(ReasonNoSamples)
	}

	proj := Projector{Path: g.Path, Projection: g.Projection, MaxDistance: e.opts.MaxDistance}
	samples, malformed := proj.Project(reports)
	if malformed > 0 {
		res.Rejects[ReasonMalformedSample] += malformed
	}
	if len(samples) == 0 {
		return res.drop(ReasonNoSamples)
	}

	SortByTime(samples)
	kept := LongestIncreasing(samples)
	res.Retained = len(kept)
	if len(kept) < e.opts.MinSamples {
		return res.drop(ReasonInsufficientSamples)
	}

	records, rejects := Interpolate(kept, g.Segments, e.opts.SpeedFactor)
	for r, n := range rejects {
		res.Rejects[r] += n
	}
	for _, rec := range records {
		if reason, ok := e.validator.Check(rec); !ok {
			res.Rejects[reason]++
			continue
		}
		rec.TripKey = res.Key
		rec.TripID = res.TripID
		rec.VehicleID = res.VehicleID
		rec.ServiceDate = res.StartDate
		if rec.RouteID == "" {
			rec.RouteID = res.RouteID
		}
		res.Records = append(res.Records, rec)
	}
	if len(res.Records) == 0 {
		return res.drop(ReasonNoSegmentsResolved)
	}
	return res
}

func (r TripResult) drop(reason Reason) TripResult {
	r.Dropped = true
	r.Reason = reason
	r.Records = nil
	return r
}
