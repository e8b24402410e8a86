package feed

import (
	"fmt"

	"github.com/patrickbr/gtfsparser"

	"transit-speeds/internal/gtfs"
	"transit-speeds/internal/segment"
)

// StaticFeed is the part of a static GTFS feed needed to build route geometry.
type StaticFeed struct {
	Trips     []gtfs.Trip
	Shapes    map[string][]gtfs.ShapePoint
	TripStops map[string][]gtfs.Stop // trip id -> stops in sequence order
}

// LoadStatic parses a GTFS zip file or directory. Only trips running on a
// shape are kept.
func LoadStatic(path string) (*StaticFeed, error) {
	f := gtfsparser.NewFeed()
	f.SetParseOpts(gtfsparser.ParseOptions{UseDefValueOnError: true, DropErroneous: true, DryRun: false})
	if err := f.Parse(path); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	sf := &StaticFeed{
		Shapes:    make(map[string][]gtfs.ShapePoint, len(f.Shapes)),
		TripStops: make(map[string][]gtfs.Stop),
	}
	for id, shp := range f.Shapes {
		pts := make([]gtfs.ShapePoint, len(shp.Points))
		for i, p := range shp.Points {
			pts[i] = gtfs.ShapePoint{Lat: float64(p.Lat), Lon: float64(p.Lon), Sequence: i}
		}
		sf.Shapes[id] = pts
	}
	for _, t := range f.Trips {
		if t.Shape == nil {
			continue
		}
		trip := gtfs.Trip{TripID: t.Id, ShapeID: t.Shape.Id}
		if t.Route != nil {
			trip.RouteID = t.Route.Id
		}
		sf.Trips = append(sf.Trips, trip)

		stops := make([]gtfs.Stop, 0, len(t.StopTimes))
		for _, st := range t.StopTimes {
			s := st.Stop()
			if s == nil {
				continue
			}
			stops = append(stops, gtfs.Stop{StopID: s.Id, Name: s.Name, Lat: float64(s.Lat), Lon: float64(s.Lon)})
		}
		sf.TripStops[t.Id] = stops
	}
	return sf, nil
}

// RouteInputs builds one segmentation input per shape from its representative
// trip.
func (sf *StaticFeed) RouteInputs(routes []string) ([]gtfs.Trip, []segment.RouteInput) {
	trips := sf.Trips
	if len(routes) > 0 {
		want := make(map[string]bool, len(routes))
		for _, r := range routes {
			want[r] = true
		}
		trips = make([]gtfs.Trip, 0, len(sf.Trips))
		for _, t := range sf.Trips {
			if want[t.RouteID] {
				trips = append(trips, t)
			}
		}
	}

	reps := gtfs.RepresentativeTrips(trips)
	inputs := make([]segment.RouteInput, 0, len(reps))
	for _, t := range reps {
		inputs = append(inputs, segment.RouteInput{
			ShapeID:   t.ShapeID,
			RouteID:   t.RouteID,
			Fragments: [][]gtfs.ShapePoint{sf.Shapes[t.ShapeID]},
			Stops:     sf.TripStops[t.TripID],
		})
	}
	return trips, inputs
}
