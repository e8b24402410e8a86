package geom

import (
	"errors"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrDegeneratePath = errors.New("degenerate path")

// tieEps is the distance below which two candidate projections count as equally
// close; the lower arc length then wins.
const tieEps = 1e-9

// Paths with at least this many vertices get a grid index for projection.
const indexThreshold = 64

// Path is an immutable polyline in a planar, metre-based coordinate system with
// cached cumulative arc lengths.
type Path struct {
	pts orb.LineString
	cum []float64
	idx *GridIndex
}

// Projection is the result of snapping a point onto a Path.
type Projection struct {
	Position float64   // arc length from the path start
	Distance float64   // perpendicular distance from the point to the path
	Point    orb.Point // nearest point on the path
}

func NewPath(ls orb.LineString) (*Path, error) {
	pts := make(orb.LineString, 0, len(ls))
	for _, p := range ls {
		if !Finite(p) {
			return nil, ErrDegeneratePath
		}
		if len(pts) > 0 && pts[len(pts)-1].Equal(p) {
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) < 2 {
		return nil, ErrDegeneratePath
	}
	cum := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		cum[i] = cum[i-1] + planar.Distance(pts[i-1], pts[i])
	}
	if cum[len(cum)-1] <= 0 {
		return nil, ErrDegeneratePath
	}
	p := &Path{pts: pts, cum: cum}
	if len(pts) >= indexThreshold {
		p.idx = NewGridIndex(pts, gridCellSize(pts, cum[len(cum)-1]))
	}
	return p, nil
}

func (p *Path) Length() float64 { return p.cum[len(p.cum)-1] }

// Project snaps pt onto the path. It returns false when pt is not finite.
func (p *Path) Project(pt orb.Point) (Projection, bool) {
	if !Finite(pt) {
		return Projection{}, false
	}
	if p.idx != nil && p.idx.Covers(pt) {
		return p.projectIndexed(pt), true
	}
	best := Projection{Distance: math.Inf(1)}
	for i := 0; i+1 < len(p.pts); i++ {
		best = p.closer(best, p.projectOnto(i, pt))
	}
	return best, true
}

func (p *Path) projectIndexed(pt orb.Point) Projection {
	best := Projection{Distance: math.Inf(1)}
	seen := make(map[int]struct{})
	cx, cy := p.idx.cellOf(pt[0], pt[1])
	for r := 0; r <= p.idx.maxRing(); r++ {
		p.idx.ring(cx, cy, r, func(seg int) {
			if _, ok := seen[seg]; ok {
				return
			}
			seen[seg] = struct{}{}
			best = p.closer(best, p.projectOnto(seg, pt))
		})
		// anything not yet visited lies at least r cells away
		if best.Distance+tieEps < float64(r)*p.idx.cellSize {
			break
		}
	}
	return best
}

func (p *Path) closer(best, cand Projection) Projection {
	if cand.Distance < best.Distance-tieEps {
		return cand
	}
	if cand.Distance <= best.Distance+tieEps && cand.Position < best.Position {
		return cand
	}
	return best
}

func (p *Path) projectOnto(seg int, pt orb.Point) Projection {
	a, b := p.pts[seg], p.pts[seg+1]
	q, t := snapToWithProgress(pt, a, b)
	return Projection{
		Position: p.cum[seg] + t*(p.cum[seg+1]-p.cum[seg]),
		Distance: planar.Distance(pt, q),
		Point:    q,
	}
}

// snapToWithProgress snaps pt onto segment [a, b] and returns the snapped point
// with its progress t in [0, 1].
func snapToWithProgress(pt, a, b orb.Point) (orb.Point, float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	d := dx*dx + dy*dy
	if d == 0 {
		return a, 0
	}
	t := ((pt[0]-a[0])*dx + (pt[1]-a[1])*dy) / d
	if t < 0 {
		return a, 0
	} else if t > 1 {
		return b, 1
	}
	return orb.Point{a[0] + t*dx, a[1] + t*dy}, t
}

// Locate returns the point at arc length pos, clamped to the path ends.
func (p *Path) Locate(pos float64) orb.Point {
	if pos <= 0 {
		return p.pts[0]
	}
	n := len(p.pts)
	if pos >= p.cum[n-1] {
		return p.pts[n-1]
	}
	i := sort.SearchFloat64s(p.cum, pos)
	if p.cum[i] == pos {
		return p.pts[i]
	}
	a, b := p.pts[i-1], p.pts[i]
	t := (pos - p.cum[i-1]) / (p.cum[i] - p.cum[i-1])
	return orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
}

// Substring extracts the sub-path between two arc-length offsets. Offsets are
// sorted and clamped to the path, so the result always runs forward.
func (p *Path) Substring(from, to float64) orb.LineString {
	if from > to {
		from, to = to, from
	}
	from = p.clamp(from)
	to = p.clamp(to)
	out := orb.LineString{p.Locate(from)}
	for i, c := range p.cum {
		if c > from && c < to {
			out = append(out, p.pts[i])
		}
	}
	return append(out, p.Locate(to))
}

func (p *Path) clamp(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	if l := p.Length(); pos > l {
		return l
	}
	return pos
}

// Length of an arbitrary line string in the same planar units.
func Length(ls orb.LineString) float64 { return planar.Length(ls) }
