package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFulfillmentDefaults(t *testing.T) {
	cfg, err := LoadFulfillment()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.AutoCompleteAfter)
	assert.Equal(t, 1, cfg.CourierMaxActiveOrders)
	assert.Equal(t, 50, cfg.LiveBacklogSize)
	assert.Equal(t, DefaultFulfillment().SchedulerInterval, cfg.SchedulerInterval)
}

func TestLoadFulfillmentFromEnv(t *testing.T) {
	t.Setenv("ORDER_AUTO_COMPLETE_AFTER", "36h")
	t.Setenv("COURIER_MAX_ACTIVE_ORDERS", "3")
	t.Setenv("SCHEDULER_JOBS", "auto_cancel_unconfirmed, auto_complete_delivered")

	cfg, err := LoadFulfillment()
	require.NoError(t, err)

	assert.Equal(t, 36*time.Hour, cfg.AutoCompleteAfter)
	assert.Equal(t, 3, cfg.CourierMaxActiveOrders)
	assert.Len(t, cfg.SchedulerJobs, 2)
}

func TestLoadFulfillmentRejectsZeroCourierBound(t *testing.T) {
	t.Setenv("COURIER_MAX_ACTIVE_ORDERS", "0")

	_, err := LoadFulfillment()
	assert.ErrorIs(t, err, ErrInvalidCourierBound)
}

func TestLoadQuotaConfigFallsBackToDefaults(t *testing.T) {
	holder, err := LoadQuotaConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultQuotaConfig(), holder.Get())
}

func TestLoadQuotaConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`quota:
  defaultTiers:
    - minAmount: 0
      credits: 0
    - minAmount: 50000
      credits: 1
    - minAmount: 250000
      credits: 4
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quota.yml"), content, 0o600))

	holder, err := LoadQuotaConfig(dir)
	require.NoError(t, err)

	tiers := holder.Get().DefaultTiers
	require.Len(t, tiers, 3)
	assert.Equal(t, int64(50000), tiers[1].MinAmount)
	assert.Equal(t, int64(4), tiers[2].Credits)
}

func TestValidateQuotaConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  QuotaConfig
		want error
	}{
		{name: "empty", cfg: QuotaConfig{}, want: ErrEmptyQuotaTiers},
		{name: "start", cfg: QuotaConfig{DefaultTiers: []QuotaTier{{MinAmount: 10, Credits: 1}}}, want: ErrQuotaTierStart},
		{name: "order", cfg: QuotaConfig{DefaultTiers: []QuotaTier{{MinAmount: 0, Credits: 1}, {MinAmount: 0, Credits: 2}}}, want: ErrQuotaTiersNotOrdered},
		{name: "credits", cfg: QuotaConfig{DefaultTiers: []QuotaTier{{MinAmount: 0, Credits: -1}}}, want: ErrQuotaTierCredits},
		{name: "valid", cfg: DefaultQuotaConfig(), want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewStaticQuotaConfigHolder(tc.cfg)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
