package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v9"
)

// FulfillmentConfig tunes the order lifecycle, dispatch and live sync.
type FulfillmentConfig struct {
	AutoCompleteAfter      time.Duration `env:"ORDER_AUTO_COMPLETE_AFTER" envDefault:"24h"`
	CourierMaxActiveOrders int           `env:"COURIER_MAX_ACTIVE_ORDERS" envDefault:"1"`

	LiveBacklogSize      int           `env:"LIVE_BACKLOG_SIZE" envDefault:"50"`
	LiveSubscriberBuffer int           `env:"LIVE_SUBSCRIBER_BUFFER" envDefault:"32"`
	LiveHeartbeat        time.Duration `env:"LIVE_HEARTBEAT" envDefault:"15s"`
	LiveRelayChannel     string        `env:"LIVE_RELAY_CHANNEL" envDefault:"pasarku:order-events"`

	OutboxRedeliverAfter time.Duration `env:"OUTBOX_REDELIVER_AFTER" envDefault:"30s"`

	QuotaTierCacheTTL time.Duration `env:"QUOTA_TIER_CACHE_TTL" envDefault:"1m"`

	SchedulerInterval  time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
	SchedulerBatchSize int           `env:"SCHEDULER_BATCH_SIZE" envDefault:"100"`
	SchedulerJobs      []string      `env:"SCHEDULER_JOBS" envSeparator:","`
	SchedulerLockTTL   time.Duration `env:"SCHEDULER_LOCK_TTL" envDefault:"50s"`
}

var (
	ErrInvalidAutoCompleteAfter = errors.New("invalid_auto_complete_after")
	ErrInvalidCourierBound      = errors.New("invalid_courier_max_active_orders")
)

// LoadFulfillment parses the fulfillment settings from the environment.
func LoadFulfillment() (FulfillmentConfig, error) {
	var cfg FulfillmentConfig
	if err := env.Parse(&cfg); err != nil {
		return FulfillmentConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return FulfillmentConfig{}, err
	}
	return cfg, nil
}

func (c FulfillmentConfig) Validate() error {
	if c.AutoCompleteAfter <= 0 {
		return ErrInvalidAutoCompleteAfter
	}
	if c.CourierMaxActiveOrders < 1 {
		return ErrInvalidCourierBound
	}
	return nil
}

// DefaultFulfillment mirrors the envDefault tags for callers that skip the environment.
func DefaultFulfillment() FulfillmentConfig {
	return FulfillmentConfig{
		AutoCompleteAfter:      24 * time.Hour,
		CourierMaxActiveOrders: 1,
		LiveBacklogSize:        50,
		LiveSubscriberBuffer:   32,
		LiveHeartbeat:          15 * time.Second,
		LiveRelayChannel:       "pasarku:order-events",
		OutboxRedeliverAfter:   30 * time.Second,
		QuotaTierCacheTTL:      time.Minute,
		SchedulerInterval:      time.Minute,
		SchedulerBatchSize:     100,
		SchedulerLockTTL:       50 * time.Second,
	}
}
