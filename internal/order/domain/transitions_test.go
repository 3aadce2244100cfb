package domain

import (
	"testing"

	"github.com/smallbiznis/pasarku/internal/actor"
	"github.com/stretchr/testify/assert"
)

func TestCheckTransition(t *testing.T) {
	cases := []struct {
		from  Status
		to    Status
		actor actor.Type
		want  error
	}{
		{StatusNew, StatusProcessed, actor.TypeMerchant, nil},
		{StatusPendingConfirmation, StatusProcessed, actor.TypeMerchant, nil},
		{StatusNew, StatusProcessed, actor.TypeBuyer, ErrOrderAccessDenied},
		{StatusNew, StatusSent, actor.TypeMerchant, ErrInvalidTransition},
		{StatusProcessed, StatusSent, actor.TypeMerchant, nil},
		{StatusProcessed, StatusSent, actor.TypeCourier, ErrOrderAccessDenied},
		{StatusSent, StatusDelivered, actor.TypeCourier, nil},
		{StatusDelivered, StatusDone, actor.TypeBuyer, nil},
		{StatusDelivered, StatusDone, actor.TypeSystem, nil},
		{StatusDelivered, StatusDone, actor.TypeMerchant, ErrOrderAccessDenied},
		{StatusSent, StatusCanceled, actor.TypeMerchant, nil},
		{StatusDone, StatusCanceled, actor.TypeMerchant, ErrInvalidTransition},
		{StatusCanceled, StatusRejectedByBuyer, actor.TypeBuyer, ErrInvalidTransition},
		{StatusPendingPayment, StatusRejectedByBuyer, actor.TypeBuyer, nil},
		{StatusDone, StatusProcessed, actor.TypeAdmin, ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			err := CheckTransition(tc.from, tc.to, tc.actor)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range allStatuses {
		if !from.Terminal() {
			continue
		}
		for _, to := range allStatuses {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestEveryNonTerminalStateCanBeCanceled(t *testing.T) {
	for _, from := range nonTerminal() {
		assert.True(t, CanTransition(from, StatusCanceled), from)
		assert.True(t, CanTransition(from, StatusRejectedByBuyer), from)
	}
}

func TestMayTarget(t *testing.T) {
	assert.True(t, MayTarget(StatusDone, actor.TypeBuyer))
	assert.True(t, MayTarget(StatusDelivered, actor.TypeCourier))
	assert.False(t, MayTarget(StatusSent, actor.TypeBuyer))
	assert.False(t, MayTarget(StatusNew, actor.TypeMerchant))
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusPendingPayment, InitialStatus(true, true))
	assert.Equal(t, StatusPendingConfirmation, InitialStatus(false, true))
	assert.Equal(t, StatusNew, InitialStatus(false, false))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusSent.Valid())
	assert.False(t, Status("SHIPPED").Valid())
	assert.True(t, DeliveryPickup.Valid())
	assert.False(t, DeliveryType("DRONE").Valid())
}
