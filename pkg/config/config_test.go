package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meshward/policyguard/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PDP_BACKEND", "")
	t.Setenv("SANDBOX_MEMORY_LIMIT_BYTES", "")
	t.Setenv("SANDBOX_CPU_TIME_LIMIT", "")
	t.Setenv("TRACING_ENABLED", "")
	t.Setenv("TRACING_SAMPLE_RATE", "")
	t.Setenv("SIGNING_KEY_ID", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "native", cfg.PDPBackend)
	assert.Equal(t, int64(64*1024*1024), cfg.SandboxMemoryLimitBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.SandboxCPUTimeLimit)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, 1.0, cfg.TracingSample)
	assert.Equal(t, "default", cfg.SigningKeyID)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PDP_BACKEND", "cel")
	t.Setenv("SANDBOX_MEMORY_LIMIT_BYTES", "134217728")
	t.Setenv("SANDBOX_CPU_TIME_LIMIT", "2s")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("TRACING_SAMPLE_RATE", "0.1")
	t.Setenv("SIGNING_KEY_ID", "tenant-key-7")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, "cel", cfg.PDPBackend)
	assert.Equal(t, int64(134217728), cfg.SandboxMemoryLimitBytes)
	assert.Equal(t, 2*time.Second, cfg.SandboxCPUTimeLimit)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, 0.1, cfg.TracingSample)
	assert.Equal(t, "tenant-key-7", cfg.SigningKeyID)
}

func TestLoad_InvalidNumericEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("SANDBOX_MEMORY_LIMIT_BYTES", "not-a-number")
	t.Setenv("TRACING_SAMPLE_RATE", "not-a-float")
	t.Setenv("TRACING_ENABLED", "not-a-bool")

	cfg := config.Load()

	assert.Equal(t, int64(64*1024*1024), cfg.SandboxMemoryLimitBytes)
	assert.Equal(t, 1.0, cfg.TracingSample)
	assert.True(t, cfg.TracingEnabled)
}
