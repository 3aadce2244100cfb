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
	"github.com/smallbiznis/pasarku/internal/migration"
	"github.com/smallbiznis/pasarku/internal/notification"
	"github.com/smallbiznis/pasarku/internal/observability"
	"github.com/smallbiznis/pasarku/internal/order"
	"github.com/smallbiznis/pasarku/internal/payment"
	"github.com/smallbiznis/pasarku/internal/quota"
	"github.com/smallbiznis/pasarku/internal/scheduler"
	"github.com/smallbiznis/pasarku/internal/server"
	"github.com/smallbiznis/pasarku/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(config.NewSnowflakeNode),
		db.Module,
		migration.Module,
		cache.Module,
		clock.Module,

		// Fulfillment
		authorization.Module,
		merchant.Module,
		dispatch.Module,
		payment.Module,
		quota.Module,
		events.Module,
		liveevents.Module,
		notification.Module,
		order.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}
