package segment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"transit-speeds/internal/geom"
	"transit-speeds/internal/gtfs"
)

var ErrUnknownShape = errors.New("unknown shape")

// RouteInput is the static topology for one shape as delivered by a loader.
type RouteInput struct {
	ShapeID   string
	RouteID   string
	Fragments [][]gtfs.ShapePoint // usually one; merged when more
	Stops     []gtfs.Stop         // in travel order
}

// RouteGeometry is the immutable, shareable geometry of one shape.
type RouteGeometry struct {
	ShapeID    string
	RouteID    string
	Projection geom.LocalProjection
	Path       *geom.Path
	Stops      []ResolvedStop
	Segments   []gtfs.Segment
	Failures   []BoundaryFailure
}

type StoreOptions struct {
	Segment        Options
	MergeTolerance float64 // metres
}

// Store holds every RouteGeometry for one static schedule version. It is never
// mutated after NewStore returns.
type Store struct {
	shapes    map[string]*RouteGeometry
	tripShape map[string]string
	failed    map[string]error
}

func NewStore(routes []RouteInput, trips []gtfs.Trip, opts StoreOptions) *Store {
	s := &Store{
		shapes:    make(map[string]*RouteGeometry, len(routes)),
		tripShape: make(map[string]string, len(trips)),
		failed:    make(map[string]error),
	}
	for _, r := range routes {
		g, err := BuildGeometry(r, opts)
		if err != nil {
			s.failed[r.ShapeID] = err
			continue
		}
		s.shapes[r.ShapeID] = g
	}
	for _, t := range trips {
		if t.ShapeID != "" {
			s.tripShape[t.TripID] = t.ShapeID
		}
	}
	return s
}

// BuildGeometry projects a route's shape into a local metric plane, merges its
// fragments into one path and segments it by stops.
func BuildGeometry(r RouteInput, opts StoreOptions) (*RouteGeometry, error) {
	var origin *gtfs.ShapePoint
	for i := range r.Fragments {
		if len(r.Fragments[i]) > 0 {
			origin = &r.Fragments[i][0]
			break
		}
	}
	if origin == nil {
		return nil, fmt.Errorf("shape %s: %w", r.ShapeID, geom.ErrDegeneratePath)
	}
	proj := geom.NewLocalProjection(origin.Lat, origin.Lon)

	frags := make([]orb.LineString, 0, len(r.Fragments))
	for _, f := range r.Fragments {
		ls := make(orb.LineString, 0, len(f))
		for _, p := range f {
			ls = append(ls, proj.Project(p.Lat, p.Lon))
		}
		frags = append(frags, ls)
	}

	line := frags[0]
	if len(frags) > 1 {
		tol := opts.MergeTolerance
		if tol <= 0 {
			tol = 1
		}
		merged, err := geom.MergeFragments(frags, tol)
		if err != nil {
			return nil, fmt.Errorf("shape %s: %w", r.ShapeID, err)
		}
		line = merged
	}
	path, err := geom.NewPath(line)
	if err != nil {
		return nil, fmt.Errorf("shape %s: %w", r.ShapeID, err)
	}

	stops := make([]StopInput, len(r.Stops))
	for i, st := range r.Stops {
		stops[i] = StopInput{Stop: st, Point: proj.Project(st.Lat, st.Lon)}
	}
	res := Build(path, stops, opts.Segment)
	for i := range res.Segments {
		res.Segments[i].ShapeID = r.ShapeID
		res.Segments[i].RouteID = r.RouteID
	}

	return &RouteGeometry{
		ShapeID:    r.ShapeID,
		RouteID:    r.RouteID,
		Projection: proj,
		Path:       path,
		Stops:      res.Stops,
		Segments:   res.Segments,
		Failures:   res.Failures,
	}, nil
}

// ForTrip resolves the geometry of the shape a static trip runs on.
func (s *Store) ForTrip(tripID string) (*RouteGeometry, error) {
	shapeID, ok := s.tripShape[tripID]
	if !ok {
		return nil, fmt.Errorf("trip %s: %w", tripID, ErrUnknownShape)
	}
	g, ok := s.shapes[shapeID]
	if !ok {
		if err, failed := s.failed[shapeID]; failed {
			return nil, err
		}
		return nil, fmt.Errorf("shape %s: %w", shapeID, ErrUnknownShape)
	}
	return g, nil
}

// Shapes returns all built geometries ordered by shape id.
func (s *Store) Shapes() []*RouteGeometry {
	out := make([]*RouteGeometry, 0, len(s.shapes))
	for _, g := range s.shapes {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShapeID < out[j].ShapeID })
	return out
}

// Failed lists shapes whose path could not be built.
func (s *Store) Failed() map[string]error {
	out := make(map[string]error, len(s.failed))
	for k, v := range s.failed {
		out[k] = v
	}
	return out
}
