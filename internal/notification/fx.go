package notification

import (
	"context"

	"github.com/smallbiznis/pasarku/internal/config"
	"github.com/smallbiznis/pasarku/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewNotifier),
)

func NewNotifier(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) events.Notifier {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("kafka disabled, order events are logged only")
		return NewLogNotifier(log)
	}

	notifier := NewKafkaNotifier(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return notifier.Close()
		},
	})
	return notifier
}
