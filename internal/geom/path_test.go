package geom

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lShape(t *testing.T) *Path {
	t.Helper()
	p, err := NewPath(orb.LineString{{0, 0}, {100, 0}, {100, 50}})
	require.NoError(t, err)
	return p
}

func TestNewPathRejectsDegenerate(t *testing.T) {
	tests := []struct {
		name string
		ls   orb.LineString
	}{
		{"empty", nil},
		{"single point", orb.LineString{{1, 1}}},
		{"repeated point", orb.LineString{{1, 1}, {1, 1}, {1, 1}}},
		{"nan", orb.LineString{{0, 0}, {math.NaN(), 1}}},
		{"inf", orb.LineString{{0, 0}, {math.Inf(1), 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPath(tt.ls)
			assert.ErrorIs(t, err, ErrDegeneratePath)
		})
	}
}

func TestPathLengthCollapsesDuplicates(t *testing.T) {
	p, err := NewPath(orb.LineString{{0, 0}, {0, 0}, {3, 4}, {3, 4}, {3, 10}})
	require.NoError(t, err)
	assert.InDelta(t, 11.0, p.Length(), 1e-9)
	assert.Len(t, p.pts, 3)
}

func TestProject(t *testing.T) {
	p := lShape(t)

	tests := []struct {
		name     string
		pt       orb.Point
		position float64
		distance float64
	}{
		{"on first leg", orb.Point{40, 0}, 40, 0},
		{"beside first leg", orb.Point{40, -7}, 40, 7},
		{"beyond start", orb.Point{-10, 0}, 0, 10},
		{"on second leg", orb.Point{103, 20}, 120, 3},
		{"beyond end", orb.Point{100, 60}, 150, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, ok := p.Project(tt.pt)
			require.True(t, ok)
			assert.InDelta(t, tt.position, pr.Position, 1e-9)
			assert.InDelta(t, tt.distance, pr.Distance, 1e-9)
		})
	}
}

func TestProjectTieTakesLowestArcLength(t *testing.T) {
	// out and back along the same line: every point is equidistant to both legs
	p, err := NewPath(orb.LineString{{0, 0}, {100, 0}, {100, 10}, {0, 10}})
	require.NoError(t, err)

	pr, ok := p.Project(orb.Point{30, 5})
	require.True(t, ok)
	assert.InDelta(t, 30.0, pr.Position, 1e-9)
	assert.InDelta(t, 5.0, pr.Distance, 1e-9)
}

func TestProjectNonFinite(t *testing.T) {
	p := lShape(t)
	_, ok := p.Project(orb.Point{math.NaN(), 0})
	assert.False(t, ok)
}

func TestLocate(t *testing.T) {
	p := lShape(t)
	assert.Equal(t, orb.Point{0, 0}, p.Locate(-5))
	assert.Equal(t, orb.Point{100, 0}, p.Locate(100))
	assert.Equal(t, orb.Point{100, 25}, p.Locate(125))
	assert.Equal(t, orb.Point{100, 50}, p.Locate(1000))
}

func TestSubstringLengthMatchesOffsets(t *testing.T) {
	p := lShape(t)

	tests := []struct {
		name     string
		from, to float64
		want     float64
	}{
		{"within one leg", 10, 60, 50},
		{"across vertex", 80, 130, 50},
		{"reversed offsets", 130, 80, 50},
		{"clamped", -20, 500, 150},
		{"whole path", 0, 150, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := p.Substring(tt.from, tt.to)
			assert.InDelta(t, tt.want, Length(sub), 1e-9)
		})
	}

	sub := p.Substring(80, 130)
	assert.Equal(t, orb.LineString{{80, 0}, {100, 0}, {100, 30}}, sub)
}

func TestIndexedProjectionMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ls := orb.LineString{{0, 0}}
	for i := 1; i < 400; i++ {
		last := ls[len(ls)-1]
		ls = append(ls, orb.Point{last[0] + rng.Float64()*40, last[1] + (rng.Float64()-0.5)*60})
	}

	indexed, err := NewPath(ls)
	require.NoError(t, err)
	require.NotNil(t, indexed.idx)

	brute := *indexed
	brute.idx = nil

	b := ls.Bound()
	w, h := extent(b)
	for i := 0; i < 500; i++ {
		pt := orb.Point{
			b.Min[0] + rng.Float64()*w,
			b.Min[1] + rng.Float64()*h,
		}
		want, _ := brute.Project(pt)
		got, _ := indexed.Project(pt)
		assert.InDelta(t, want.Distance, got.Distance, 1e-9)
		assert.InDelta(t, want.Position, got.Position, 1e-6)
	}
}

func TestGridIndexDimensions(t *testing.T) {
	ls := orb.LineString{{0, 0}, {100, 0}, {100, 50}}
	g := NewGridIndex(ls, 10)
	assert.Equal(t, 11, g.nx)
	assert.Equal(t, 6, g.ny)
	assert.Len(t, g.cells, 66)

	w, h := extent(ls.Bound())
	assert.Equal(t, 100.0, w)
	assert.Equal(t, 50.0, h)
}

func TestLocalProjectionRoundTrip(t *testing.T) {
	proj := NewLocalProjection(40.75, -73.99)
	pt := proj.Project(40.76, -73.98)
	lat, lon := proj.Unproject(pt)
	assert.InDelta(t, 40.76, lat, 1e-9)
	assert.InDelta(t, -73.98, lon, 1e-9)

	// one degree of latitude is ~111.2km
	north := proj.Project(41.75, -73.99)
	assert.InDelta(t, 111195.0, north[1], 1.0)
	assert.InDelta(t, 0.0, north[0], 1e-9)
}
