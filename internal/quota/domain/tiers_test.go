package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierTableCredits(t *testing.T) {
	table, err := NewTierTable([]Tier{
		{MinAmount: 500_000, Credits: 3},
		{MinAmount: 0, Credits: 1},
		{MinAmount: 100_000, Credits: 2},
	})
	require.NoError(t, err)

	cases := []struct {
		total int64
		want  int64
	}{
		{total: 0, want: 1},
		{total: 55_000, want: 1},
		{total: 99_999, want: 1},
		{total: 100_000, want: 2},
		{total: 499_999, want: 2},
		{total: 500_000, want: 3},
		{total: 9_000_000, want: 3},
	}
	for _, tc := range cases {
		got, err := table.Credits(tc.total)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "total %d", tc.total)
	}

	_, err = table.Credits(-1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNewTierTableValidation(t *testing.T) {
	_, err := NewTierTable(nil)
	assert.ErrorIs(t, err, ErrInvalidTierTable)

	_, err = NewTierTable([]Tier{{MinAmount: 10, Credits: 1}})
	assert.ErrorIs(t, err, ErrInvalidTierTable)

	_, err = NewTierTable([]Tier{{MinAmount: 0, Credits: -1}})
	assert.ErrorIs(t, err, ErrInvalidTierTable)

	_, err = NewTierTable([]Tier{{MinAmount: 0, Credits: 1}, {MinAmount: 0, Credits: 2}})
	assert.ErrorIs(t, err, ErrInvalidTierTable)

	max := int64(5)
	_, err = NewTierTable([]Tier{{MinAmount: 0, Credits: 1}, {MinAmount: 10, MaxAmount: &max, Credits: 2}})
	assert.ErrorIs(t, err, ErrInvalidTierTable)
}
