package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationAccumulates(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithActor(ctx, "MERCHANT", "42")
	ctx = WithMerchantID(ctx, "42")
	scoped := WithOrder(ctx, "9001", "")

	assert.Equal(t, Correlation{
		RequestID:  "req-1",
		ActorType:  "MERCHANT",
		ActorID:    "42",
		MerchantID: "42",
		OrderID:    "9001",
	}, FromContext(scoped))

	// parent is untouched
	assert.Empty(t, FromContext(ctx).OrderID)
}

func TestWithOrderReplacesMerchant(t *testing.T) {
	ctx := WithMerchantID(context.Background(), "1")
	ctx = WithOrder(ctx, "7", "2")

	assert.Equal(t, "2", FromContext(ctx).MerchantID)
	assert.Equal(t, "7", FromContext(ctx).OrderID)
}

func TestEmptyValuesLeaveContextAlone(t *testing.T) {
	base := context.Background()

	assert.Equal(t, base, WithRequestID(base, ""))
	assert.Equal(t, base, WithMerchantID(base, ""))
	assert.Equal(t, base, WithOrder(base, "", ""))
}
