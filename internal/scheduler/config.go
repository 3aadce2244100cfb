package scheduler

import (
	"time"

	"github.com/smallbiznis/pasarku/internal/config"
)

const (
	JobAutoCancelUnconfirmed = "auto_cancel_unconfirmed"
	JobAutoCompleteDelivered = "auto_complete_delivered"
	JobExpireSubscriptions   = "expire_subscriptions"
	JobOutboxRedeliver       = "outbox_redeliver"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval    time.Duration
	BatchSize      int
	JobTimeout     time.Duration
	LockTTL        time.Duration
	RedeliverAfter time.Duration
	// EnabledJobs limits the run to the named jobs; empty runs all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		BatchSize:      100,
		JobTimeout:     30 * time.Second,
		LockTTL:        50 * time.Second,
		RedeliverAfter: 30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	f := cfg.Fulfillment
	return Config{
		RunInterval:    f.SchedulerInterval,
		BatchSize:      f.SchedulerBatchSize,
		LockTTL:        f.SchedulerLockTTL,
		RedeliverAfter: f.OutboxRedeliverAfter,
		EnabledJobs:    f.SchedulerJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RedeliverAfter <= 0 {
		c.RedeliverAfter = defaults.RedeliverAfter
	}
	return c
}
