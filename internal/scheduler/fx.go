package scheduler

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(provideLocker),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

type lockerParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

func provideLocker(p lockerParams) *Locker {
	return NewLocker(p.Redis)
}

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
