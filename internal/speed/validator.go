package speed

import (
	"math"

	"transit-speeds/internal/gtfs"
)

// Validator is the last sanity filter before a record is emitted. Records at or
// above MaxSpeed are rejected.
type Validator struct {
	MaxSpeed      float64
	RejectOffPath bool
}

func (v Validator) Check(rec gtfs.SpeedRecord) (Reason, bool) {
	switch {
	case !finite(rec.ElapsedSec) || !finite(rec.Length) || !finite(rec.Speed):
		return ReasonNonFinite, false
	case rec.ElapsedSec <= 0:
		return ReasonNonPositiveElapsed, false
	case rec.Length <= 0:
		return ReasonNonPositiveLength, false
	case rec.Speed <= 0 || rec.Speed >= v.MaxSpeed:
		return ReasonImplausibleSpeed, false
	case v.RejectOffPath && rec.OffPath:
		return ReasonOffPath, false
	}
	return "", true
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
