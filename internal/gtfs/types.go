package gtfs

import (
	"time"

	"github.com/paulmach/orb"
)

type Trip struct {
	TripID    string
	RouteID   string
	ShapeID   string
	ServiceID string
}

type Stop struct {
	StopID string
	Name   string
	Lat    float64
	Lon    float64
}

type ShapePoint struct {
	Lat      float64
	Lon      float64
	Sequence int
}

// TripKey identifies one operated instance of a scheduled trip. The same trip_id
// runs on many service days, so the vehicle and start date are part of the key.
type TripKey string

func NewTripKey(tripID, vehicleID, startDate string) TripKey {
	return TripKey(tripID + "|" + vehicleID + "|" + startDate)
}

// PositionReport is one raw vehicle position observation.
type PositionReport struct {
	TripID    string
	VehicleID string
	RouteID   string
	StartDate string // YYYYMMDD
	Timestamp time.Time
	Lat       float64
	Lon       float64
}

func (r PositionReport) Key() TripKey { return NewTripKey(r.TripID, r.VehicleID, r.StartDate) }

// Segment is the stretch of a shape between two consecutive stops. Positions are
// arc lengths in metres along the shape's path and Geometry is in the same plane.
type Segment struct {
	ShapeID      string
	RouteID      string
	Sequence     int
	FromStopID   string
	FromStopName string
	ToStopID     string
	ToStopName   string
	FromPosition float64
	ToPosition   float64
	Length       float64
	Geometry     orb.LineString
}

type SpeedRecord struct {
	RunID        string    `json:"runId"`
	ServiceDate  string    `json:"serviceDate"`
	TripKey      TripKey   `json:"tripKey"`
	TripID       string    `json:"tripId"`
	VehicleID    string    `json:"vehicleId"`
	RouteID      string    `json:"routeId"`
	ShapeID      string    `json:"shapeId"`
	FromStopID   string    `json:"fromStopId"`
	ToStopID     string    `json:"toStopId"`
	FromPosition float64   `json:"fromPosition"`
	ToPosition   float64   `json:"toPosition"`
	Length       float64   `json:"lengthM"`
	FromTime     time.Time `json:"fromTime"`
	ToTime       time.Time `json:"toTime"`
	ElapsedSec   float64   `json:"elapsedSec"`
	Speed        float64   `json:"speed"`
	LocalDate    string    `json:"localDate"`
	Weekday      int       `json:"weekday"`
	Hour         int       `json:"hour"`
	MaxOffset    float64   `json:"maxOffsetM"`
	OffPath      bool      `json:"-"`
}
