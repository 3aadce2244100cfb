package main

import (
	"github.com/smallbiznis/pasarku/internal/authorization"
	"github.com/smallbiznis/pasarku/internal/cache"
	"github.com/smallbiznis/pasarku/internal/clock"
	"github.com/smallbiznis/pasarku/internal/config"
	"github.com/smallbiznis/pasarku/internal/dispatch"
	"github.com/smallbiznis/pasarku/internal/events"
	"github.com/smallbiznis/pasarku/internal/liveevents"
	"github.com/smallbiznis/pasarku/internal/merchant"
	"github.com/smallbiznis/pasarku/internal/notification"
	"github.com/smallbiznis/pasarku/internal/observability"
	"github.com/smallbiznis/pasarku/internal/order"
	"github.com/smallbiznis/pasarku/internal/payment"
	"github.com/smallbiznis/pasarku/internal/quota"
	"github.com/smallbiznis/pasarku/internal/server"
	"github.com/smallbiznis/pasarku/pkg/db"
	"go.uber.org/fx"
)

// api serves HTTP and SSE only. Sweeps run in apps/scheduler; live events
// reach this process over the redis relay.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(config.NewSnowflakeNode),
		db.Module,
		cache.Module,
		clock.Module,

		authorization.Module,
		merchant.Module,
		dispatch.Module,
		payment.Module,
		quota.Module,
		events.Module,
		liveevents.Module,
		notification.Module,
		order.Module,

		server.Module,
	)
	app.Run()
}
