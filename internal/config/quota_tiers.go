package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// QuotaTier maps an order total (inclusive lower bound, rupiah) to a credit cost.
type QuotaTier struct {
	MinAmount int64 `mapstructure:"minAmount"`
	Credits   int64 `mapstructure:"credits"`
}

type QuotaConfig struct {
	DefaultTiers []QuotaTier `mapstructure:"defaultTiers"`
}

func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		DefaultTiers: []QuotaTier{
			{MinAmount: 0, Credits: 1},
			{MinAmount: 100_000, Credits: 2},
			{MinAmount: 500_000, Credits: 3},
		},
	}
}

var (
	ErrEmptyQuotaTiers      = errors.New("quota.defaultTiers cannot be empty")
	ErrQuotaTierStart       = errors.New("quota.defaultTiers must start at minAmount 0")
	ErrQuotaTiersNotOrdered = errors.New("quota.defaultTiers must be strictly ascending by minAmount")
	ErrQuotaTierCredits     = errors.New("quota.defaultTiers credits must be >= 0")
)

type QuotaConfigHolder struct {
	current atomic.Value // holds QuotaConfig
}

// NewQuotaConfigHolder reads quota.yml from the standard config paths and
// reloads it when the file changes.
func NewQuotaConfigHolder() (*QuotaConfigHolder, error) {
	return LoadQuotaConfig("/var/lib/pasarku/config", "/etc/pasarku", ".")
}

func LoadQuotaConfig(paths ...string) (*QuotaConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("quota")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("PASARKU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	cfg := DefaultQuotaConfig()
	if found {
		var loaded QuotaConfig
		if err := v.UnmarshalKey("quota", &loaded); err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := validateQuotaConfig(cfg); err != nil {
		return nil, err
	}

	holder := &QuotaConfigHolder{}
	holder.current.Store(cfg)

	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated QuotaConfig
		if err := v.UnmarshalKey("quota", &updated); err != nil {
			zap.L().Warn("quota config reload failed", zap.Error(err))
			return
		}
		if err := validateQuotaConfig(updated); err != nil {
			zap.L().Warn("quota config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("quota config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticQuotaConfigHolder wraps a fixed config; used by tests and tooling.
func NewStaticQuotaConfigHolder(cfg QuotaConfig) (*QuotaConfigHolder, error) {
	if err := validateQuotaConfig(cfg); err != nil {
		return nil, err
	}
	holder := &QuotaConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func (h *QuotaConfigHolder) Get() QuotaConfig {
	return h.current.Load().(QuotaConfig)
}

func validateQuotaConfig(cfg QuotaConfig) error {
	if len(cfg.DefaultTiers) == 0 {
		return ErrEmptyQuotaTiers
	}
	if cfg.DefaultTiers[0].MinAmount != 0 {
		return ErrQuotaTierStart
	}
	for i, tier := range cfg.DefaultTiers {
		if tier.Credits < 0 {
			return ErrQuotaTierCredits
		}
		if i > 0 && tier.MinAmount <= cfg.DefaultTiers[i-1].MinAmount {
			return ErrQuotaTiersNotOrdered
		}
	}
	return nil
}
