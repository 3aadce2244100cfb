package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	typ, err := ParseType(" courier ")
	require.NoError(t, err)
	require.Equal(t, TypeCourier, typ)

	_, err = ParseType("driver")
	require.ErrorIs(t, err, ErrInvalidActor)
}

func TestValidateRequiresIdentity(t *testing.T) {
	require.NoError(t, System().Validate())
	require.ErrorIs(t, Actor{Type: TypeBuyer}.Validate(), ErrInvalidActor)
	require.NoError(t, Actor{Type: TypeBuyer, ID: 7}.Validate())
	require.Equal(t, "role:merchant", Actor{Type: TypeMerchant, ID: 1}.Role())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{Type: TypeAdmin, ID: 3})
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.True(t, got.IsPrivileged())
}
