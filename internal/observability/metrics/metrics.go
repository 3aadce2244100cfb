package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes fulfillment instruments.
type Metrics struct {
	orderTransitions metric.Int64Counter
	ordersCreated    metric.Int64Counter
	quotaDebits      metric.Int64Counter
	quotaCredits     metric.Int64Counter
	quotaRejections  metric.Int64Counter
	fanoutFailures   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pasarku"
	}
	meter := provider.Meter(name)

	orderTransitions, err := meter.Int64Counter("pasarku_order_transitions_total")
	if err != nil {
		return nil, err
	}
	ordersCreated, err := meter.Int64Counter("pasarku_orders_created_total")
	if err != nil {
		return nil, err
	}
	quotaDebits, err := meter.Int64Counter("pasarku_quota_debits_total")
	if err != nil {
		return nil, err
	}
	quotaCredits, err := meter.Int64Counter("pasarku_quota_credits_used_total")
	if err != nil {
		return nil, err
	}
	quotaRejections, err := meter.Int64Counter("pasarku_quota_rejections_total")
	if err != nil {
		return nil, err
	}
	fanoutFailures, err := meter.Int64Counter("pasarku_fanout_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		orderTransitions: orderTransitions,
		ordersCreated:    ordersCreated,
		quotaDebits:      quotaDebits,
		quotaCredits:     quotaCredits,
		quotaRejections:  quotaRejections,
		fanoutFailures:   fanoutFailures,
	}, nil
}

// RecordOrderCreated increments checkout counts by payment method.
func (m *Metrics) RecordOrderCreated(ctx context.Context, paymentMethod, deliveryType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("payment_method", strings.TrimSpace(paymentMethod)),
		attribute.String("delivery_type", strings.TrimSpace(deliveryType)),
	)
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrderTransition increments committed transition counts.
func (m *Metrics) RecordOrderTransition(ctx context.Context, from, to, actorType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
		attribute.String("actor_type", strings.TrimSpace(actorType)),
	)
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQuotaDebit counts a committed ledger entry and the credits it consumed.
func (m *Metrics) RecordQuotaDebit(ctx context.Context, reason string, credits int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.quotaDebits.Add(ctx, 1, metric.WithAttributes(attrs...))
	if credits > 0 {
		m.quotaCredits.Add(ctx, credits, metric.WithAttributes(attrs...))
	}
}

// RecordQuotaRejected counts dispatches refused for lack of quota.
func (m *Metrics) RecordQuotaRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.quotaRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFanoutFailure counts post-commit delivery failures per sink.
func (m *Metrics) RecordFanoutFailure(ctx context.Context, sink, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("sink", strings.TrimSpace(sink)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.fanoutFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"from":           {},
	"to":             {},
	"actor_type":     {},
	"payment_method": {},
	"delivery_type":  {},
	"reason":         {},
	"sink":           {},
	"event_type":     {},
	"status_code":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
