package segment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"transit-speeds/internal/geom"
	"transit-speeds/internal/gtfs"
)

// GapPolicy decides what happens around a stop that cannot be placed on the path.
type GapPolicy int

const (
	// GapSkip drops both segments touching the unresolved stop.
	GapSkip GapPolicy = iota
	// GapBridge joins the two resolved stops on either side into one segment.
	GapBridge
)

func ParseGapPolicy(s string) (GapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return GapSkip, nil
	case "bridge":
		return GapBridge, nil
	}
	return GapSkip, fmt.Errorf("unknown gap policy %q", s)
}

func (g GapPolicy) String() string {
	if g == GapBridge {
		return "bridge"
	}
	return "skip"
}

type FailureReason string

const (
	FailureNoPath        FailureReason = "no_path"
	FailureUnprojectable FailureReason = "unprojectable"
	FailureTooFar        FailureReason = "too_far"
	FailureZeroLength    FailureReason = "zero_length"
)

// BoundaryFailure reports a stop boundary that produced no segment.
type BoundaryFailure struct {
	StopID     string
	PrevStopID string // set for zero_length pairs
	Reason     FailureReason
}

type Options struct {
	Gap GapPolicy
	// MaxStopDistance (metres) above which a stop counts as off the path. 0 disables.
	MaxStopDistance float64
}

// StopInput is a stop with its location already in the path's plane.
type StopInput struct {
	gtfs.Stop
	Point orb.Point
}

// ResolvedStop caches a stop's position along the path.
type ResolvedStop struct {
	gtfs.Stop
	Position float64
	Distance float64
	OK       bool
}

type Result struct {
	Stops    []ResolvedStop
	Segments []gtfs.Segment
	Failures []BoundaryFailure
}

// Build places every stop on the path and emits one segment per consecutive
// pair of resolved stops, ordered by start position.
func Build(path *geom.Path, stops []StopInput, opts Options) Result {
	var res Result
	res.Stops = make([]ResolvedStop, len(stops))

	for i, s := range stops {
		rs := ResolvedStop{Stop: s.Stop}
		switch {
		case path == nil:
			res.Failures = append(res.Failures, BoundaryFailure{StopID: s.StopID, Reason: FailureNoPath})
		default:
			pr, ok := path.Project(s.Point)
			if !ok {
				res.Failures = append(res.Failures, BoundaryFailure{StopID: s.StopID, Reason: FailureUnprojectable})
				break
			}
			rs.Position, rs.Distance = pr.Position, pr.Distance
			if opts.MaxStopDistance > 0 && pr.Distance > opts.MaxStopDistance {
				res.Failures = append(res.Failures, BoundaryFailure{StopID: s.StopID, Reason: FailureTooFar})
				break
			}
			rs.OK = true
		}
		res.Stops[i] = rs
	}
	if path == nil {
		return res
	}

	prev := -1
	for i, rs := range res.Stops {
		if !rs.OK {
			if opts.Gap == GapSkip {
				prev = -1
			}
			continue
		}
		if prev >= 0 {
			seg, ok := newSegment(path, res.Stops[prev], rs, i)
			if ok {
				res.Segments = append(res.Segments, seg)
			} else {
				res.Failures = append(res.Failures, BoundaryFailure{
					StopID:     rs.StopID,
					PrevStopID: res.Stops[prev].StopID,
					Reason:     FailureZeroLength,
				})
			}
		}
		prev = i
	}

	sort.SliceStable(res.Segments, func(i, j int) bool {
		return res.Segments[i].FromPosition < res.Segments[j].FromPosition
	})
	return res
}

func newSegment(path *geom.Path, from, to ResolvedStop, seq int) (gtfs.Segment, bool) {
	start, end := from.Position, to.Position
	if start > end {
		start, end = end, start
	}
	if !(end-start > 0) {
		return gtfs.Segment{}, false
	}
	return gtfs.Segment{
		Sequence:     seq,
		FromStopID:   from.StopID,
		FromStopName: from.Name,
		ToStopID:     to.StopID,
		ToStopName:   to.Name,
		FromPosition: start,
		ToPosition:   end,
		Length:       end - start,
		Geometry:     path.Substring(start, end),
	}, true
}
