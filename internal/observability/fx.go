package observability

import (
	"github.com/smallbiznis/pasarku/internal/observability/logger"
	"github.com/smallbiznis/pasarku/internal/observability/metrics"
	"github.com/smallbiznis/pasarku/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"
)

// Module wires zap, the SQL logger, the tracer provider and the meters
// from one Config.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(c Config) logger.Config {
			return logger.Config{
				ServiceName:        c.ServiceName,
				Environment:        c.Environment,
				Version:            c.Version,
				Level:              c.LogLevel,
				Format:             c.LogFormat,
				StackOnError:       c.Debug(),
				SamplingInitial:    c.LogSampleInitial,
				SamplingThereafter: c.LogSampleThereafter,
			}
		},
		logger.New,
		func(c Config) gormlogger.Interface {
			return logger.NewGormLogger(logger.GormConfig{
				SlowThreshold: c.SQLSlowThreshold,
				LogParams:     c.SQLLogParams,
			})
		},
		func(c Config) tracing.Config {
			return tracing.Config{
				Enabled:          c.OtelEnabled(),
				ServiceName:      c.ServiceName,
				ServiceVersion:   c.Version,
				Environment:      c.Environment,
				ExporterEndpoint: c.OtelEndpoint,
				ExporterProtocol: c.OtelProtocol,
				SamplingRatio:    c.OtelSamplingRatio,
			}
		},
		tracing.NewProvider,
		func(c Config) metrics.Config {
			return metrics.Config{
				Enabled:          c.OtelEnabled(),
				ExporterEndpoint: c.OtelEndpoint,
				ExporterProtocol: c.OtelProtocol,
				ServiceName:      c.ServiceName,
				Environment:      c.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// The tracer provider is global; nothing injects it.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(metrics.SchedulerWithConfig),
)
