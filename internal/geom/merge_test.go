package geom

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFragments(t *testing.T) {
	want := orb.LineString{{0, 0}, {10, 0}, {20, 0}, {20, 10}, {30, 10}}

	tests := []struct {
		name  string
		frags []orb.LineString
	}{
		{"single", []orb.LineString{want}},
		{"in order", []orb.LineString{{{0, 0}, {10, 0}}, {{10, 0}, {20, 0}, {20, 10}}, {{20, 10}, {30, 10}}}},
		{"shuffled", []orb.LineString{{{10, 0}, {20, 0}, {20, 10}}, {{20, 10}, {30, 10}}, {{0, 0}, {10, 0}}}},
		{"reversed piece", []orb.LineString{{{0, 0}, {10, 0}}, {{20, 10}, {20, 0}, {10, 0}}, {{20, 10}, {30, 10}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeFragments(tt.frags, 0.01)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestMergeFragmentsWithinTolerance(t *testing.T) {
	got, err := MergeFragments([]orb.LineString{{{0, 0}, {10, 0}}, {{10.2, 0}, {20, 0}}}, 0.5)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.InDelta(t, 20.0, Length(got), 0.3)
}

func TestMergeFragmentsDisconnected(t *testing.T) {
	_, err := MergeFragments([]orb.LineString{{{0, 0}, {10, 0}}, {{50, 50}, {60, 50}}}, 0.01)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestMergeFragmentsEmpty(t *testing.T) {
	_, err := MergeFragments([]orb.LineString{{{1, 1}}}, 0.01)
	assert.ErrorIs(t, err, ErrDegeneratePath)
}
