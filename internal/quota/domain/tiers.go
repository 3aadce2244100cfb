package domain

import (
	"fmt"
	"sort"
)

// Tier maps order totals at or above MinAmount to a credit cost. MaxAmount is
// informational; a band extends until the next tier starts.
type Tier struct {
	MinAmount int64  `json:"min_amount"`
	MaxAmount *int64 `json:"max_amount,omitempty"`
	Credits   int64  `json:"credits"`
}

// TierTable is a validated step function over order totals.
type TierTable struct {
	tiers []Tier
}

// NewTierTable sorts and validates tiers. The first tier must start at zero so
// every non-negative total resolves to a cost.
func NewTierTable(tiers []Tier) (TierTable, error) {
	if len(tiers) == 0 {
		return TierTable{}, fmt.Errorf("%w: no tiers", ErrInvalidTierTable)
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinAmount < sorted[j].MinAmount })

	if sorted[0].MinAmount != 0 {
		return TierTable{}, fmt.Errorf("%w: first tier must start at 0", ErrInvalidTierTable)
	}
	for i, tier := range sorted {
		if tier.Credits < 0 {
			return TierTable{}, fmt.Errorf("%w: negative credits at %d", ErrInvalidTierTable, tier.MinAmount)
		}
		if tier.MaxAmount != nil && *tier.MaxAmount < tier.MinAmount {
			return TierTable{}, fmt.Errorf("%w: max below min at %d", ErrInvalidTierTable, tier.MinAmount)
		}
		if i > 0 && tier.MinAmount == sorted[i-1].MinAmount {
			return TierTable{}, fmt.Errorf("%w: duplicate tier at %d", ErrInvalidTierTable, tier.MinAmount)
		}
	}
	return TierTable{tiers: sorted}, nil
}

// Credits returns the cost for an order total.
func (t TierTable) Credits(total int64) (int64, error) {
	if total < 0 {
		return 0, ErrInvalidAmount
	}
	if len(t.tiers) == 0 {
		return 0, ErrInvalidTierTable
	}
	idx := sort.Search(len(t.tiers), func(i int) bool { return t.tiers[i].MinAmount > total }) - 1
	return t.tiers[idx].Credits, nil
}

func (t TierTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}
