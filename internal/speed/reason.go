package speed

// Reason explains why a trip or one of its segments produced no speed record.
// Reasons are counted by callers; the core never logs.
type Reason string

// Trip-level outcomes.
const (
	ReasonNoGeometry          Reason = "no_geometry"
	ReasonNoSamples           Reason = "no_samples"
	ReasonInsufficientSamples Reason = "insufficient_samples"
	ReasonNoSegmentsResolved  Reason = "no_segments_resolved"
	ReasonTimeout             Reason = "timeout"
)

// Sample and segment level outcomes.
const (
	ReasonMalformedSample    Reason = "malformed_sample"
	ReasonOutOfRange         Reason = "out_of_range"
	ReasonNonPositiveElapsed Reason = "non_positive_elapsed"
	ReasonNonPositiveLength  Reason = "non_positive_length"
	ReasonImplausibleSpeed   Reason = "implausible_speed"
	ReasonNonFinite          Reason = "non_finite"
	ReasonOffPath            Reason = "off_path"
)

// TripReasons lists every trip-level outcome in a stable order.
var TripReasons = []Reason{
	ReasonNoGeometry,
	ReasonNoSamples,
	ReasonInsufficientSamples,
	ReasonNoSegmentsResolved,
	ReasonTimeout,
}

// SegmentReasons lists every sample and segment level outcome in a stable order.
var SegmentReasons = []Reason{
	ReasonMalformedSample,
	ReasonOutOfRange,
	ReasonNonPositiveElapsed,
	ReasonNonPositiveLength,
	ReasonImplausibleSpeed,
	ReasonNonFinite,
	ReasonOffPath,
}
