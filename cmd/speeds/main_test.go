package main

import (
	"net"
	"os"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	saved := os.Args
	os.Args = append([]string{"speeds"}, args...)
	flag.CommandLine = flag.NewFlagSet("speeds", flag.ExitOnError)
	t.Cleanup(func() { os.Args = saved })
}

func fileModeEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "PG_DSN", "PGDATABASE", "CITY", "CITY_NAME", "NATS_URL",
		"SPEEDS_CONFIG", "SEGMENTS_GEOJSON", "TZ", "WORKERS", "TRIP_TIMEOUT_MS", "LOG_FORMAT",
		"MIN_SAMPLES", "MAX_SPEED", "SPEED_FACTOR", "MAX_DISTANCE_TO_PATH", "MAX_STOP_DISTANCE",
		"MERGE_TOLERANCE", "GAP_POLICY",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "panic")
	t.Setenv("STATIC_GTFS_PATH", t.TempDir())
	t.Setenv("RT_FEED_DIR", t.TempDir())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRunRequiresStartDate(t *testing.T) {
	withArgs(t)
	assert.Equal(t, 2, run())
}

func TestRunFailureStopsMetricsServer(t *testing.T) {
	fileModeEnv(t)
	addr := freeAddr(t)
	t.Setenv("METRICS_ADDR", addr)
	withArgs(t, "--start-date", "20240304")

	// an empty directory is not a parseable GTFS feed
	assert.Equal(t, 1, run())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}
