package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCourierEligible(t *testing.T) {
	village := "desa-a"
	other := "desa-b"
	base := Courier{
		Status:             CourierStatusActive,
		RegistrationStatus: RegistrationApproved,
		IsAvailable:        true,
		VillageID:          &village,
	}

	assert.True(t, base.Eligible("desa-a", 0, 1))
	assert.True(t, base.Eligible("", 0, 1), "merchant without village sees the whole pool")
	assert.False(t, base.Eligible("desa-a", 1, 1), "courier at the active order bound")
	assert.True(t, base.Eligible("desa-a", 1, 2))

	offline := base
	offline.IsAvailable = false
	assert.False(t, offline.Eligible("desa-a", 0, 1))

	pending := base
	pending.RegistrationStatus = RegistrationPending
	assert.False(t, pending.Eligible("desa-a", 0, 1))

	moved := base
	moved.VillageID = &other
	assert.False(t, moved.Eligible("desa-a", 0, 1))

	noVillage := base
	noVillage.VillageID = nil
	assert.False(t, noVillage.Eligible("desa-a", 0, 1))
}
