package geom

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrDisconnected = errors.New("path fragments do not form a single chain")

// MergeFragments joins unordered path fragments into one continuous line string.
// Fragments are attached at either end of the growing chain and reversed when
// needed; endpoints closer than tol are considered shared.
func MergeFragments(frags []orb.LineString, tol float64) (orb.LineString, error) {
	pending := make([]orb.LineString, 0, len(frags))
	for _, f := range frags {
		if len(f) >= 2 {
			pending = append(pending, f)
		}
	}
	if len(pending) == 0 {
		return nil, ErrDegeneratePath
	}

	chain := pending[0].Clone()
	pending = pending[1:]
	near := func(a, b orb.Point) bool { return planar.Distance(a, b) <= tol }

	for len(pending) > 0 {
		attached := false
		for i, f := range pending {
			head, tail := chain[0], chain[len(chain)-1]
			switch {
			case near(tail, f[0]):
				chain = append(chain, f[1:]...)
			case near(tail, f[len(f)-1]):
				chain = append(chain, reversed(f)[1:]...)
			case near(head, f[len(f)-1]):
				chain = append(f[:len(f)-1].Clone(), chain...)
			case near(head, f[0]):
				chain = append(reversed(f)[:len(f)-1], chain...)
			default:
				continue
			}
			pending = append(pending[:i], pending[i+1:]...)
			attached = true
			break
		}
		if !attached {
			return nil, fmt.Errorf("%w: %d fragment(s) left over", ErrDisconnected, len(pending))
		}
	}
	return chain, nil
}

func reversed(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[len(ls)-1-i] = p
	}
	return out
}
