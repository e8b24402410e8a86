package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectToken(t *testing.T) {
	cases := map[string]string{
		"R1":       "R1",
		" 12 A ":   "12_A",
		"a.b":      "a_b",
		"x>y*z":    "x_y_z",
		"north/sb": "north_sb",
		"":         "_",
	}
	for in, want := range cases {
		assert.Equal(t, want, subjectToken(in), "input %q", in)
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "speeds.R1.shp_1", Subject("speeds", "R1", "shp.1"))
	assert.Equal(t, "city.speeds.R1.S", Subject("city.speeds.", "R1", "S"))
	assert.Equal(t, "_.S", Subject("", "", "S"))
}
