package speed

import (
	"math"
	"sort"
	"time"

	"transit-speeds/internal/gtfs"
)

// crossing is the interpolated time a trip passed one boundary position, with
// the indices of the samples bracketing it.
type crossing struct {
	unix   int64
	lo, hi int
}

// timeline evaluates time as a piecewise-linear function of position over a
// strictly position-increasing sample run.
type timeline struct {
	pos []float64
	sec []float64
}

func newTimeline(samples []Sample) timeline {
	tl := timeline{pos: make([]float64, len(samples)), sec: make([]float64, len(samples))}
	for i, s := range samples {
		tl.pos[i] = s.Position
		tl.sec[i] = float64(s.Time.Unix())
	}
	return tl
}

// at returns the crossing for pos, or false when pos lies outside the sampled
// range. Times are rounded half to even to whole seconds.
func (tl timeline) at(pos float64) (crossing, bool) {
	n := len(tl.pos)
	if n == 0 || math.IsNaN(pos) || pos < tl.pos[0] || pos > tl.pos[n-1] {
		return crossing{}, false
	}
	i := sort.SearchFloat64s(tl.pos, pos)
	if tl.pos[i] == pos {
		return crossing{unix: int64(math.RoundToEven(tl.sec[i])), lo: i, hi: i}, true
	}
	p0, p1 := tl.pos[i-1], tl.pos[i]
	t0, t1 := tl.sec[i-1], tl.sec[i]
	t := t0 + (pos-p0)/(p1-p0)*(t1-t0)
	return crossing{unix: int64(math.RoundToEven(t)), lo: i - 1, hi: i}, true
}

// Interpolate derives one speed record per segment whose boundaries both fall
// inside the sampled range and whose crossing times increase. samples must be
// strictly increasing in position. Only segment fields are filled; the caller
// stamps trip identity.
func Interpolate(samples []Sample, segments []gtfs.Segment, factor float64) ([]gtfs.SpeedRecord, map[Reason]int) {
	rejects := make(map[Reason]int)
	if len(samples) == 0 {
		if len(segments) > 0 {
			rejects[ReasonOutOfRange] += len(segments)
		}
		return nil, rejects
	}
	tl := newTimeline(samples)

	records := make([]gtfs.SpeedRecord, 0, len(segments))
	for _, seg := range segments {
		from, okFrom := tl.at(seg.FromPosition)
		to, okTo := tl.at(seg.ToPosition)
		if !okFrom || !okTo {
			rejects[ReasonOutOfRange]++
			continue
		}
		elapsed := float64(to.unix - from.unix)
		if elapsed <= 0 {
			rejects[ReasonNonPositiveElapsed]++
			continue
		}

		rec := gtfs.SpeedRecord{
			ShapeID:      seg.ShapeID,
			RouteID:      seg.RouteID,
			FromStopID:   seg.FromStopID,
			ToStopID:     seg.ToStopID,
			FromPosition: seg.FromPosition,
			ToPosition:   seg.ToPosition,
			Length:       seg.Length,
			FromTime:     time.Unix(from.unix, 0).UTC(),
			ToTime:       time.Unix(to.unix, 0).UTC(),
			ElapsedSec:   elapsed,
			Speed:        seg.Length / elapsed * factor,
		}
		for k := from.lo; k <= to.hi; k++ {
			rec.MaxOffset = math.Max(rec.MaxOffset, samples[k].Distance)
			rec.OffPath = rec.OffPath || samples[k].OffPath
		}
		records = append(records, rec)
	}
	return records, rejects
}
