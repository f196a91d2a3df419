package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	ListenAddr  string
	MetricsAddr string

	NATSURL         string
	SubjectPrefix   string
	LogNATSSubjects bool

	// Liveness and plausibility policy. The defaults mirror the platform's
	// operating practice, not anything fundamental; keep them tunable.
	OnlineWindow            time.Duration
	RecentlyOfflineWindow   time.Duration
	StaleCutoff             time.Duration
	OffRouteThresholdMeters float64

	BroadcastQueueSize int
	ClientBufferSize   int

	// RoutesFile points at a YAML route/device registry for running without
	// Postgres (dev mode and the simulator).
	RoutesFile string

	// Simulator settings.
	TrackerURL      string
	PublishInterval time.Duration
	SpeedMultiplier float64
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

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
		if db != "" {
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

	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty NATS_URL disables the NATS sink; the WebSocket hub still runs.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.SubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "tracking")
	cfg.LogNATSSubjects = boolEnv("LOG_NATS_SUBJECTS")

	var err error
	if cfg.OnlineWindow, err = secondsEnv("ONLINE_WINDOW_SEC", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.RecentlyOfflineWindow, err = secondsEnv("RECENTLY_OFFLINE_WINDOW_SEC", 600*time.Second); err != nil {
		return nil, err
	}
	if cfg.StaleCutoff, err = secondsEnv("STALE_CUTOFF_SEC", time.Hour); err != nil {
		return nil, err
	}
	if cfg.OnlineWindow > cfg.RecentlyOfflineWindow {
		return nil, errors.New("ONLINE_WINDOW_SEC must not exceed RECENTLY_OFFLINE_WINDOW_SEC")
	}

	if v := os.Getenv("OFF_ROUTE_THRESHOLD_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid OFF_ROUTE_THRESHOLD_M: %q", v)
		}
		cfg.OffRouteThresholdMeters = f
	} else {
		cfg.OffRouteThresholdMeters = 2000
	}

	if cfg.BroadcastQueueSize, err = intEnv("BROADCAST_QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.ClientBufferSize, err = intEnv("CLIENT_BUFFER_SIZE", 256); err != nil {
		return nil, err
	}

	cfg.RoutesFile = os.Getenv("ROUTES_FILE")

	cfg.TrackerURL = getenvDefault("TRACKER_URL", "http://127.0.0.1:8080")

	// Report interval for simulated devices
	if v := os.Getenv("PUBLISH_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid PUBLISH_INTERVAL_MS: %q", v)
		}
		cfg.PublishInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.PublishInterval = 5 * time.Second
	}

	if v := os.Getenv("SPEED_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid SPEED_MULTIPLIER: %q", v)
		}
		cfg.SpeedMultiplier = f
	} else {
		cfg.SpeedMultiplier = 1.0
	}

	if cfg.DatabaseURL == "" && cfg.RoutesFile == "" {
		return nil, errors.New("DATABASE_URL (or PG* vars) or ROUTES_FILE must be set")
	}

	return cfg, nil
}

func secondsEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * time.Second, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
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
