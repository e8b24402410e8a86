package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-speeds/internal/speed"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector(10, 70, 4)

	c.TripObserve("emitted", 3*time.Millisecond)
	c.TripObserve("emitted", time.Millisecond)
	c.TripObserve("insufficient_samples", time.Millisecond)
	c.SegmentsRejectedAdd("out_of_range", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.TripsProcessed.WithLabelValues("emitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TripsProcessed.WithLabelValues("insufficient_samples")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.SegmentsRejected.WithLabelValues("out_of_range")))
	assert.Equal(t, 70.0, testutil.ToFloat64(c.MaxSpeed))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.Workers))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector(10, 70, 1)
	c.RecordsEmitted.Add(5)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "speeds_records_emitted_total 5")
	assert.Contains(t, rec.Body.String(), "speeds_min_samples 10")
}

func TestCollectorPreparesReasonSeries(t *testing.T) {
	c := NewCollector(10, 70, 1)

	assert.Equal(t, len(speed.TripReasons)+1, testutil.CollectAndCount(c.TripsProcessed))
	assert.Equal(t, len(speed.SegmentReasons), testutil.CollectAndCount(c.SegmentsRejected))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.TripsProcessed.WithLabelValues(string(speed.ReasonTimeout))))
}
