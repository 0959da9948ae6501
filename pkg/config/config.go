package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service's environment-derived configuration.
type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string

	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	RedisAddr string

	PDPBackend string // "native" or "cel"

	SandboxMemoryLimitBytes int64
	SandboxCPUTimeLimit     time.Duration

	TracingEnabled bool
	TracingSample  float64

	SigningKeyID string
}

// Load loads configuration from environment variables, falling back to
// development-friendly defaults for anything unset.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://policyguard@localhost:5432/policyguard?sslmode=disable"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	pdpBackend := os.Getenv("PDP_BACKEND")
	if pdpBackend == "" {
		pdpBackend = "native"
	}

	signingKeyID := os.Getenv("SIGNING_KEY_ID")
	if signingKeyID == "" {
		signingKeyID = "default"
	}

	return &Config{
		Port:     port,
		LogLevel: logLevel,

		DatabaseURL: dbURL,

		S3Bucket:   os.Getenv("S3_BUCKET"),
		S3Region:   envOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint: os.Getenv("S3_ENDPOINT"),
		S3Prefix:   envOrDefault("S3_PREFIX", "packs/"),

		RedisAddr: redisAddr,

		PDPBackend: pdpBackend,

		SandboxMemoryLimitBytes: envInt64OrDefault("SANDBOX_MEMORY_LIMIT_BYTES", 64*1024*1024),
		SandboxCPUTimeLimit:     envDurationOrDefault("SANDBOX_CPU_TIME_LIMIT", 500*time.Millisecond),

		TracingEnabled: envBoolOrDefault("TRACING_ENABLED", true),
		TracingSample:  envFloatOrDefault("TRACING_SAMPLE_RATE", 1.0),

		SigningKeyID: signingKeyID,
	}
}

func envOrDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envBoolOrDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64OrDefault(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloatOrDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
