package observability

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/smallbiznis/pasarku/internal/config"
)

var (
	ErrInvalidLogFormat     = errors.New("invalid_log_format")
	ErrInvalidSamplingRatio = errors.New("invalid_otel_sampling_ratio")
)

// Config holds the telemetry settings shared by logs, traces and meters.
// Service identity falls back to the application config.
type Config struct {
	ServiceName string `env:"OTEL_SERVICE_NAME"`
	Environment string `env:"DEPLOYMENT_ENV"`
	Version     string `env:"SERVICE_VERSION"`

	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat           string `env:"LOG_FORMAT" envDefault:"json"`
	LogSampleInitial    int    `env:"LOG_SAMPLE_INITIAL" envDefault:"100"`
	LogSampleThereafter int    `env:"LOG_SAMPLE_THEREAFTER" envDefault:"100"`

	// SQL bound values carry buyer addresses and payment proof references;
	// they are never logged in production.
	SQLLogParams     bool          `env:"LOG_SQL_PARAMS"`
	SQLSlowThreshold time.Duration `env:"LOG_SQL_SLOW_THRESHOLD" envDefault:"200ms"`

	OtelDisabled      bool    `env:"OTEL_SDK_DISABLED"`
	OtelEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelProtocol      string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	OtelSamplingRatio float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`
}

// LoadConfig parses the telemetry environment on top of the application config.
func LoadConfig(cfg config.Config) (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}

	c.ServiceName = firstNonEmpty(c.ServiceName, cfg.AppName, "pasarku")
	c.Environment = firstNonEmpty(c.Environment, cfg.Environment)
	c.Version = firstNonEmpty(c.Version, cfg.AppVersion)
	c.OtelEndpoint = firstNonEmpty(c.OtelEndpoint, cfg.OTLPEndpoint)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.OtelProtocol = strings.ToLower(strings.TrimSpace(c.OtelProtocol))
	if cfg.IsProduction() {
		c.SQLLogParams = false
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.LogFormat {
	case "json", "console":
	default:
		return ErrInvalidLogFormat
	}
	if c.OtelSamplingRatio < 0 || c.OtelSamplingRatio > 1 {
		return ErrInvalidSamplingRatio
	}
	return nil
}

// OtelEnabled reports whether spans and meters are exported. Without a
// collector endpoint nothing is shipped.
func (c Config) OtelEnabled() bool {
	return !c.OtelDisabled && c.OtelEndpoint != ""
}

// Debug turns on stack traces and verbose request logs outside production.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
