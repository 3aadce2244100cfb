// Package context carries request-scoped correlation fields for logs and traces.
package context

import "context"

type correlationKey struct{}

// Correlation identifies who is acting and which merchant and order a unit of
// work concerns. Empty fields are unknown.
type Correlation struct {
	RequestID  string
	ActorType  string
	ActorID    string
	MerchantID string
	OrderID    string
}

// FromContext returns the correlation fields attached so far.
func FromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c
}

func with(ctx context.Context, update func(*Correlation)) context.Context {
	c := FromContext(ctx)
	update(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return with(ctx, func(c *Correlation) { c.RequestID = requestID })
}

func RequestIDFromContext(ctx context.Context) string {
	return FromContext(ctx).RequestID
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return with(ctx, func(c *Correlation) {
		c.ActorType = actorType
		c.ActorID = actorID
	})
}

// WithMerchantID scopes the work to a merchant's shop.
func WithMerchantID(ctx context.Context, merchantID string) context.Context {
	if merchantID == "" {
		return ctx
	}
	return with(ctx, func(c *Correlation) { c.MerchantID = merchantID })
}

// WithOrder scopes the work to one order. An empty merchant keeps the one
// already present.
func WithOrder(ctx context.Context, orderID, merchantID string) context.Context {
	if orderID == "" && merchantID == "" {
		return ctx
	}
	return with(ctx, func(c *Correlation) {
		if orderID != "" {
			c.OrderID = orderID
		}
		if merchantID != "" {
			c.MerchantID = merchantID
		}
	})
}
