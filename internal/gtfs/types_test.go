package gtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTripKeyDistinguishesInstances(t *testing.T) {
	a := PositionReport{TripID: "T1", VehicleID: "V1", StartDate: "20240304"}
	b := a
	b.StartDate = "20240305"
	c := a
	c.VehicleID = "V2"

	assert.Equal(t, TripKey("T1|V1|20240304"), a.Key())
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestRepresentativeTrips(t *testing.T) {
	trips := []Trip{
		{TripID: "t9", ShapeID: "B"},
		{TripID: "t3", ShapeID: "A"},
		{TripID: "t1", ShapeID: "A"},
		{TripID: "t0"},
		{TripID: "t2", ShapeID: "B"},
	}
	got := RepresentativeTrips(trips)
	assert.Equal(t, []Trip{{TripID: "t1", ShapeID: "A"}, {TripID: "t2", ShapeID: "B"}}, got)
}
