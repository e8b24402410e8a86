package speed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-speeds/internal/gtfs"
)

func seg(from, to float64) gtfs.Segment {
	return gtfs.Segment{FromStopID: "a", ToStopID: "b", FromPosition: from, ToPosition: to, Length: to - from}
}

func TestInterpolateRoundTrip(t *testing.T) {
	// noise-free samples exactly on the boundaries
	samples := samplesAt(0, 0, 120, 1200)
	records, rejects := Interpolate(samples, []gtfs.Segment{seg(0, 1200)}, 1)

	require.Empty(t, rejects)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, t0, rec.FromTime)
	assert.Equal(t, t0.Add(120*time.Second), rec.ToTime)
	assert.Equal(t, 120.0, rec.ElapsedSec)
	assert.Equal(t, 10.0, rec.Speed)
}

func TestInterpolateLinearBetweenSamples(t *testing.T) {
	samples := samplesAt(0, 0, 100, 1000, 300, 2000)
	records, rejects := Interpolate(samples, []gtfs.Segment{seg(500, 1500)}, 1)

	require.Empty(t, rejects)
	require.Len(t, records, 1)
	assert.Equal(t, t0.Add(50*time.Second), records[0].FromTime)
	assert.Equal(t, t0.Add(200*time.Second), records[0].ToTime)
	assert.InDelta(t, 1000.0/150.0, records[0].Speed, 1e-12)
}

func TestInterpolateAppliesFactor(t *testing.T) {
	records, _ := Interpolate(samplesAt(0, 0, 100, 1000), []gtfs.Segment{seg(0, 1000)}, MetresPerSecondToMPH)
	require.Len(t, records, 1)
	assert.InDelta(t, 22.36936, records[0].Speed, 1e-9)
}

func TestInterpolateSkipsOutOfRange(t *testing.T) {
	samples := samplesAt(0, 100, 100, 900)
	records, rejects := Interpolate(samples, []gtfs.Segment{seg(0, 500), seg(200, 800), seg(500, 1000)}, 1)

	require.Len(t, records, 1)
	assert.Equal(t, 200.0, records[0].FromPosition)
	assert.Equal(t, map[Reason]int{ReasonOutOfRange: 2}, rejects)
}

func TestInterpolateRejectsNonPositiveElapsed(t *testing.T) {
	// boundaries 400 and 500 both round to second 0
	samples := samplesAt(0, 0, 1, 1000)
	records, rejects := Interpolate(samples, []gtfs.Segment{seg(0, 400), seg(400, 500), seg(500, 1000)}, 1)

	require.Len(t, records, 1)
	assert.Equal(t, 500.0, records[0].FromPosition)
	assert.Equal(t, 1.0, records[0].ElapsedSec)
	assert.Equal(t, 2, rejects[ReasonNonPositiveElapsed])
}

func TestInterpolateCarriesOffset(t *testing.T) {
	samples := []Sample{
		{Time: t0, Position: 0, Distance: 2},
		{Time: t0.Add(10 * time.Second), Position: 100, Distance: 9, OffPath: true},
		{Time: t0.Add(20 * time.Second), Position: 200, Distance: 1},
		{Time: t0.Add(30 * time.Second), Position: 300, Distance: 3},
	}
	records, _ := Interpolate(samples, []gtfs.Segment{seg(0, 50), seg(150, 300)}, 1)

	require.Len(t, records, 2)
	assert.Equal(t, 9.0, records[0].MaxOffset)
	assert.True(t, records[0].OffPath)
	assert.Equal(t, 9.0, records[1].MaxOffset)
	assert.True(t, records[1].OffPath)

	records, _ = Interpolate(samples, []gtfs.Segment{seg(200, 300)}, 1)
	require.Len(t, records, 1)
	assert.Equal(t, 3.0, records[0].MaxOffset)
	assert.False(t, records[0].OffPath)
}

func TestInterpolateNoSamples(t *testing.T) {
	records, rejects := Interpolate(nil, []gtfs.Segment{seg(0, 1)}, 1)
	assert.Empty(t, records)
	assert.Equal(t, 1, rejects[ReasonOutOfRange])
}
