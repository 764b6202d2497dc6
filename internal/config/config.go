package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	ListenChannel     string
	DebounceInterval  time.Duration
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration

	CronEnabled bool
	CronSpec    string

	IdempotentFacts bool

	RunLock RunLockConfig

	Push PushMetricsConfig

	SeedDemoData bool
}

// RunLockConfig gates the optional cross-process run lock.
type RunLockConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Key           string
	TTL           time.Duration
}

// PushMetricsConfig configures metrics push. Batch invocations push once at
// the end of the run; the long-running daemon pushes on Interval.
type PushMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	JobName   string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "planmart"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "planmart"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME_SEC", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME_SEC", 300),

		ListenChannel:     getenv("PLAN_CHANGE_CHANNEL", "plan_changes"),
		DebounceInterval:  getenvDuration("ETL_DEBOUNCE_INTERVAL", 2*time.Second),
		ReconnectMinDelay: getenvDuration("LISTEN_RECONNECT_MIN_DELAY", 5*time.Second),
		ReconnectMaxDelay: getenvDuration("LISTEN_RECONNECT_MAX_DELAY", time.Minute),

		CronEnabled: getenvBool("ETL_CRON_ENABLED", true),
		CronSpec:    getenv("ETL_CRON_SPEC", "0 2 * * *"),

		IdempotentFacts: getenvBool("ETL_IDEMPOTENT_FACTS", false),

		RunLock: RunLockConfig{
			Enabled:       getenvBool("RUN_LOCK_ENABLED", false),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
			Key:           getenv("RUN_LOCK_KEY", "planmart:etl:run"),
			TTL:           getenvDuration("RUN_LOCK_TTL", 15*time.Minute),
		},

		Push: PushMetricsConfig{
			Enabled:   getenvBool("PUSH_METRICS_ENABLED", false),
			Exporter:  strings.ToLower(getenv("PUSH_METRICS_EXPORTER", "prometheus_pushgateway")),
			Endpoint:  strings.TrimSpace(getenv("PUSH_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("PUSH_METRICS_AUTH_TOKEN", "")),
			JobName:   getenv("PUSH_METRICS_JOB", "planmart_etl"),
			Interval:  getenvDuration("PUSH_METRICS_INTERVAL", 30*time.Minute),
		},

		SeedDemoData: getenvBool("SEED_DEMO_DATA", false),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
