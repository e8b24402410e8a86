package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL       string
	City              string
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	MetricsAddr       string
	Location          *time.Location

	Estimator   EstimatorConfig
	Workers     int
	TripTimeout time.Duration

	StaticGTFSPath  string
	RTFeedDir       string
	SegmentsGeoJSON string

	LogLevel  string
	LogFormat string
}

// EstimatorConfig holds the tunables of segmentation and speed estimation. It
// can be supplied as a YAML file through SPEEDS_CONFIG; environment variables
// take precedence over the file.
type EstimatorConfig struct {
	MinSamples        int     `yaml:"minSamples" validate:"gte=0"`
	MaxSpeed          float64 `yaml:"maxSpeed" validate:"gte=0"`
	SpeedFactor       float64 `yaml:"speedFactor" validate:"gte=0"`
	MaxDistanceToPath float64 `yaml:"maxDistanceToPath" validate:"gte=0"`
	MaxStopDistance   float64 `yaml:"maxStopDistance" validate:"gte=0"`
	MergeTolerance    float64 `yaml:"mergeTolerance" validate:"gte=0"`
	GapPolicy         string  `yaml:"gapPolicy" validate:"omitempty,oneof=skip bridge"`
}

func defaultEstimator() EstimatorConfig {
	return EstimatorConfig{
		MinSamples:     10,
		MaxSpeed:       70,
		SpeedFactor:    2.236936,
		MergeTolerance: 1,
		GapPolicy:      "skip",
	}
}

// FileMode reports whether inputs come from files instead of the database.
func (c *Config) FileMode() bool { return c.StaticGTFSPath != "" && c.RTFeedDir != "" }

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		StaticGTFSPath:  os.Getenv("STATIC_GTFS_PATH"),
		RTFeedDir:       os.Getenv("RT_FEED_DIR"),
		SegmentsGeoJSON: os.Getenv("SEGMENTS_GEOJSON"),
	}

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
		if db == "" && os.Getenv("CITY") != "" {
			db = "postgres"
		}
		switch {
		case db == "" && cfg.FileMode():
			// everything is read from files and records are not persisted
		case db == "":
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (or both STATIC_GTFS_PATH and RT_FEED_DIR)")
		default:
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	// Empty NATS_URL disables publishing.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "speeds")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Time zone for local date/weekday/hour columns
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	cfg.Estimator = defaultEstimator()
	if path := os.Getenv("SPEEDS_CONFIG"); path != "" {
		if err := loadEstimatorFile(path, &cfg.Estimator); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := applyEstimatorEnv(&cfg.Estimator); err != nil {
		return nil, err
	}

	cfg.Workers = runtime.GOMAXPROCS(0)
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WORKERS: %q", v)
		}
		cfg.Workers = n
	}

	if v := os.Getenv("TRIP_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid TRIP_TIMEOUT_MS: %q", v)
		}
		cfg.TripTimeout = time.Duration(ms) * time.Millisecond
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	return cfg, nil
}

// loadEstimatorFile overlays the non-zero fields of a YAML file onto est.
func loadEstimatorFile(path string, est *EstimatorConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file EstimatorConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if err := validator.New().Struct(file); err != nil {
		return err
	}
	if file.MinSamples != 0 {
		est.MinSamples = file.MinSamples
	}
	if file.MaxSpeed != 0 {
		est.MaxSpeed = file.MaxSpeed
	}
	if file.SpeedFactor != 0 {
		est.SpeedFactor = file.SpeedFactor
	}
	if file.MaxDistanceToPath != 0 {
		est.MaxDistanceToPath = file.MaxDistanceToPath
	}
	if file.MaxStopDistance != 0 {
		est.MaxStopDistance = file.MaxStopDistance
	}
	if file.MergeTolerance != 0 {
		est.MergeTolerance = file.MergeTolerance
	}
	if file.GapPolicy != "" {
		est.GapPolicy = file.GapPolicy
	}
	return nil
}

func applyEstimatorEnv(est *EstimatorConfig) error {
	if v := os.Getenv("MIN_SAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MIN_SAMPLES: %q", v)
		}
		est.MinSamples = n
	}
	floats := []struct {
		key      string
		dst      *float64
		positive bool
	}{
		{"MAX_SPEED", &est.MaxSpeed, true},
		{"SPEED_FACTOR", &est.SpeedFactor, true},
		{"MAX_DISTANCE_TO_PATH", &est.MaxDistanceToPath, false},
		{"MAX_STOP_DISTANCE", &est.MaxStopDistance, false},
		{"MERGE_TOLERANCE", &est.MergeTolerance, true},
	}
	for _, f := range floats {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil || x < 0 || (f.positive && x == 0) {
			return fmt.Errorf("invalid %s: %q", f.key, v)
		}
		*f.dst = x
	}
	if v := os.Getenv("GAP_POLICY"); v != "" {
		p := strings.ToLower(strings.TrimSpace(v))
		if p != "skip" && p != "bridge" {
			return fmt.Errorf("invalid GAP_POLICY: %q", v)
		}
		est.GapPolicy = p
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
