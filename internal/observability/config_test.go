package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/pasarku/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFallsBackToAppConfig(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("LOG_FORMAT", " Console ")
	t.Setenv("LOG_SQL_PARAMS", "true")

	cfg, err := LoadConfig(config.Config{
		AppName:      "pasarku-api",
		AppVersion:   "1.2.0",
		Environment:  "production",
		OTLPEndpoint: "collector:4317",
	})
	require.NoError(t, err)

	assert.Equal(t, "pasarku-api", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 200*time.Millisecond, cfg.SQLSlowThreshold)
	assert.False(t, cfg.SQLLogParams)
	assert.True(t, cfg.OtelEnabled())
	assert.False(t, cfg.Debug())
}

func TestLoadConfigExportsNothingWithoutCollector(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg, err := LoadConfig(config.Config{Environment: "local"})
	require.NoError(t, err)

	assert.Equal(t, "pasarku", cfg.ServiceName)
	assert.False(t, cfg.OtelEnabled())
	assert.True(t, cfg.Debug())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Run("format", func(t *testing.T) {
		t.Setenv("LOG_FORMAT", "xml")
		_, err := LoadConfig(config.Config{})
		assert.ErrorIs(t, err, ErrInvalidLogFormat)
	})
	t.Run("sampling", func(t *testing.T) {
		t.Setenv("OTEL_SAMPLING_RATIO", "1.5")
		_, err := LoadConfig(config.Config{})
		assert.ErrorIs(t, err, ErrInvalidSamplingRatio)
	})
}
