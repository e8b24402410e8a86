package geom

import (
	"math"

	"github.com/paulmach/orb"
)

const earthRadius = 6371000.0

// LocalProjection maps lat/lon onto a plane in metres using an equirectangular
// approximation around an origin. Distances are preserved to well under a metre
// across the extent of a single route.
type LocalProjection struct {
	lat0    float64
	lon0    float64
	cosLat0 float64
}

func NewLocalProjection(lat, lon float64) LocalProjection {
	return LocalProjection{lat0: lat, lon0: lon, cosLat0: math.Cos(lat * math.Pi / 180)}
}

func (p LocalProjection) Project(lat, lon float64) orb.Point {
	y := (lat - p.lat0) * math.Pi / 180 * earthRadius
	x := (lon - p.lon0) * math.Pi / 180 * earthRadius * p.cosLat0
	return orb.Point{x, y}
}

func (p LocalProjection) Unproject(pt orb.Point) (lat, lon float64) {
	lat = p.lat0 + pt[1]/earthRadius*180/math.Pi
	if p.cosLat0 == 0 {
		return lat, p.lon0
	}
	lon = p.lon0 + pt[0]/(earthRadius*p.cosLat0)*180/math.Pi
	return lat, lon
}

// Finite reports whether both coordinates are usable numbers.
func Finite(pt orb.Point) bool {
	return !math.IsNaN(pt[0]) && !math.IsNaN(pt[1]) && !math.IsInf(pt[0], 0) && !math.IsInf(pt[1], 0)
}
