package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// GridIndex buckets the segments of a polyline into uniform square cells for
// fast nearest-segment lookup.
type GridIndex struct {
	llx, lly float64
	urx, ury float64
	cellSize float64
	nx, ny   int
	cells    [][]int
}

func gridCellSize(pts orb.LineString, length float64) float64 {
	nseg := float64(len(pts) - 1)
	size := length / nseg * 4
	if size < 1 {
		size = 1
	}
	w, h := extent(pts.Bound())
	for (w/size+1)*(h/size+1) > 4*nseg {
		size *= 2
	}
	return size
}

func extent(b orb.Bound) (w, h float64) {
	return b.Right() - b.Left(), b.Top() - b.Bottom()
}

func NewGridIndex(pts orb.LineString, cellSize float64) *GridIndex {
	b := pts.Bound()
	g := &GridIndex{
		llx:      b.Min[0],
		lly:      b.Min[1],
		urx:      b.Max[0],
		ury:      b.Max[1],
		cellSize: cellSize,
	}
	w, h := extent(b)
	g.nx = int(math.Floor(w/cellSize)) + 1
	g.ny = int(math.Floor(h/cellSize)) + 1
	g.cells = make([][]int, g.nx*g.ny)

	for i := 1; i < len(pts); i++ {
		g.add(i-1, pts[i-1], pts[i])
	}
	return g
}

func (g *GridIndex) add(seg int, a, b orb.Point) {
	swX, swY := g.cellOf(math.Min(a[0], b[0]), math.Min(a[1], b[1]))
	neX, neY := g.cellOf(math.Max(a[0], b[0]), math.Max(a[1], b[1]))
	for x := swX; x <= neX; x++ {
		for y := swY; y <= neY; y++ {
			if g.isects(a[0], a[1], b[0], b[1], x, y) {
				g.cells[x*g.ny+y] = append(g.cells[x*g.ny+y], seg)
			}
		}
	}
}

// Covers reports whether pt lies inside the indexed bounding box.
func (g *GridIndex) Covers(pt orb.Point) bool {
	return pt[0] >= g.llx && pt[0] <= g.urx && pt[1] >= g.lly && pt[1] <= g.ury
}

func (g *GridIndex) cellOf(x, y float64) (int, int) {
	cx := int((x - g.llx) / g.cellSize)
	cy := int((y - g.lly) / g.cellSize)
	return clampInt(cx, 0, g.nx-1), clampInt(cy, 0, g.ny-1)
}

func (g *GridIndex) maxRing() int {
	if g.nx > g.ny {
		return g.nx
	}
	return g.ny
}

// ring visits every segment stored in cells at Chebyshev distance r from (cx, cy).
func (g *GridIndex) ring(cx, cy, r int, fn func(seg int)) {
	visit := func(x, y int) {
		if x < 0 || y < 0 || x >= g.nx || y >= g.ny {
			return
		}
		for _, seg := range g.cells[x*g.ny+y] {
			fn(seg)
		}
	}
	if r == 0 {
		visit(cx, cy)
		return
	}
	for x := cx - r; x <= cx+r; x++ {
		visit(x, cy-r)
		visit(x, cy+r)
	}
	for y := cy - r + 1; y <= cy+r-1; y++ {
		visit(cx-r, y)
		visit(cx+r, y)
	}
}

func (g *GridIndex) ocode(x, y, xmin, ymin, xmax, ymax float64) int {
	code := 0

	if x < xmin {
		code |= 1
	} else if x > xmax {
		code |= 2
	}

	if y < ymin {
		code |= 4
	} else if y > ymax {
		code |= 8
	}

	return code
}

// isects clips segment (x0,y0)-(x1,y1) against cell (x, y) with Cohen-Sutherland.
// The cell is padded slightly so segments running along a cell edge land in both
// neighbours.
func (g *GridIndex) isects(x0, y0, x1, y1 float64, x, y int) bool {
	pad := g.cellSize * 1e-6
	xmin := g.llx + float64(x)*g.cellSize - pad
	ymin := g.lly + float64(y)*g.cellSize - pad
	xmax := xmin + g.cellSize + 2*pad
	ymax := ymin + g.cellSize + 2*pad

	ocode0 := g.ocode(x0, y0, xmin, ymin, xmax, ymax)
	ocode1 := g.ocode(x1, y1, xmin, ymin, xmax, ymax)

	for {
		if (ocode0 | ocode1) == 0 {
			return true
		}
		if (ocode0 & ocode1) != 0 {
			return false
		}

		var cx, cy float64
		out := ocode0
		if out == 0 {
			out = ocode1
		}

		switch {
		case out&8 != 0:
			cx = x0 + (x1-x0)*(ymax-y0)/(y1-y0)
			cy = ymax
		case out&4 != 0:
			cx = x0 + (x1-x0)*(ymin-y0)/(y1-y0)
			cy = ymin
		case out&2 != 0:
			cy = y0 + (y1-y0)*(xmax-x0)/(x1-x0)
			cx = xmax
		default:
			cy = y0 + (y1-y0)*(xmin-x0)/(x1-x0)
			cx = xmin
		}

		if out == ocode0 {
			x0, y0 = cx, cy
			ocode0 = g.ocode(x0, y0, xmin, ymin, xmax, ymax)
		} else {
			x1, y1 = cx, cy
			ocode1 = g.ocode(x1, y1, xmin, ymin, xmax, ymax)
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
