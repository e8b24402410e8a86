package gtfs

import "sort"

// RepresentativeTrips picks one trip per shape, the one with the smallest trip
// id, whose stop sequence stands in for every trip on that shape. Trips
// without a shape are ignored. The result is ordered by shape id.
func RepresentativeTrips(trips []Trip) []Trip {
	best := make(map[string]Trip)
	for _, t := range trips {
		if t.ShapeID == "" {
			continue
		}
		if cur, ok := best[t.ShapeID]; !ok || t.TripID < cur.TripID {
			best[t.ShapeID] = t
		}
	}
	out := make([]Trip, 0, len(best))
	for _, t := range best {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShapeID < out[j].ShapeID })
	return out
}
