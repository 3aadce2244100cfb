package liveevents

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pasarku/internal/config"
	"github.com/smallbiznis/pasarku/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("liveevents",
	fx.Provide(func(cfg config.Config) *Hub {
		return NewHub(cfg.Fulfillment.LiveBacklogSize, cfg.Fulfillment.LiveSubscriberBuffer)
	}),
	fx.Provide(provideRelay),
	fx.Provide(func(hub *Hub, relay *Relay) events.LiveSink {
		return NewPublisher(hub, relay)
	}),
)

type relayParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
	Hub       *Hub
	Redis     *redis.Client `optional:"true"`
}

func provideRelay(p relayParams) *Relay {
	if p.Redis == nil {
		return nil
	}
	relay := NewRelay(p.Redis, p.Hub, p.Cfg.Fulfillment.LiveRelayChannel, p.Log)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return relay.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return relay.Stop(ctx)
		},
	})
	return relay
}
