package speed

import (
	"time"

	"transit-speeds/internal/geom"
	"transit-speeds/internal/gtfs"
)

// Sample is one position report placed on a route path.
type Sample struct {
	Time     time.Time
	Position float64 // arc length along the path, metres
	Distance float64 // offset from the path, metres
	OffPath  bool
}

// Projector snaps raw reports onto a route path. MaxDistance > 0 flags samples
// further than that from the path; they are kept and flagged, not dropped.
type Projector struct {
	Path        *geom.Path
	Projection  geom.LocalProjection
	MaxDistance float64
}

// Project returns one sample per usable report, in input order, and the number
// of reports dropped for non-finite coordinates or a zero timestamp.
func (p Projector) Project(reports []gtfs.PositionReport) ([]Sample, int) {
	out := make([]Sample, 0, len(reports))
	malformed := 0
	for _, r := range reports {
		if r.Timestamp.IsZero() {
			malformed++
			continue
		}
		pr, ok := p.Path.Project(p.Projection.Project(r.Lat, r.Lon))
		if !ok {
			malformed++
			continue
		}
		out = append(out, Sample{
			Time:     r.Timestamp,
			Position: pr.Position,
			Distance: pr.Distance,
			OffPath:  p.MaxDistance > 0 && pr.Distance > p.MaxDistance,
		})
	}
	return out, malformed
}
