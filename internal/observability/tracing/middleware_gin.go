package tracing

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/pasarku/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrRequestID  = attribute.Key("pasarku.request_id")
	AttrActorType  = attribute.Key("pasarku.actor.type")
	AttrActorID    = attribute.Key("pasarku.actor.id")
	AttrMerchantID = attribute.Key("pasarku.merchant.id")
	AttrOrderID    = attribute.Key("pasarku.order.id")
	AttrErrorType  = attribute.Key("pasarku.error.type")
)

// CorrelationAttributes turns the known correlation fields into span attributes.
func CorrelationAttributes(ctx context.Context) []attribute.KeyValue {
	c := obscontext.FromContext(ctx)
	var attrs []attribute.KeyValue
	add := func(key attribute.Key, value string) {
		if value != "" {
			attrs = append(attrs, key.String(value))
		}
	}
	add(AttrRequestID, c.RequestID)
	add(AttrActorType, c.ActorType)
	add(AttrActorID, c.ActorID)
	add(AttrMerchantID, c.MerchantID)
	add(AttrOrderID, c.OrderID)
	return attrs
}

// GinMiddleware opens the server span for a request. Domain rejections (4xx)
// are tagged with their error type; only server faults mark the span failed.
func GinMiddleware(classify func(error) (string, string)) gin.HandlerFunc {
	tracer := otel.Tracer("pasarku/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.FromContext(ctx).SetMember(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
		}

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+c.Request.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		span.SetName(c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)
		// Actor and subject are attached by guards that ran inside c.Next.
		span.SetAttributes(CorrelationAttributes(c.Request.Context())...)

		lastErr := c.Errors.Last()
		if lastErr != nil && classify != nil {
			errType, _ := classify(lastErr.Err)
			span.SetAttributes(AttrErrorType.String(errType))
		}
		if status >= http.StatusInternalServerError {
			if lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
