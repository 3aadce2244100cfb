package events

import (
	"context"
	"time"

	obsmetrics "github.com/smallbiznis/pasarku/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LiveSink receives committed events for connected clients. Delivery is best effort.
type LiveSink interface {
	Publish(ctx context.Context, evt OrderEvent) error
}

// Notifier hands events to the notification collaborator. A nil error
// acknowledges the event so the redelivery sweep skips it.
type Notifier interface {
	Notify(ctx context.Context, evts []OrderEvent) error
}

type DispatcherParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Outbox     *Outbox
	Live       LiveSink            `optional:"true"`
	Notifier   Notifier            `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher fans committed events out after the transaction returns. It
// never reports failure to the caller: the transition already happened.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	outbox     *Outbox
	live       LiveSink
	notifier   Notifier
	obsMetrics *obsmetrics.Metrics
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("events.dispatcher"),
		outbox:     p.Outbox,
		live:       p.Live,
		notifier:   p.Notifier,
		obsMetrics: p.ObsMetrics,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, evts []OrderEvent) {
	if d == nil || len(evts) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if d.live != nil {
		for _, evt := range evts {
			if err := d.live.Publish(ctx, evt); err != nil {
				d.fanoutFailed(ctx, "live", evt, err)
			}
		}
	}

	ids := make([]string, 0, len(evts))
	for _, evt := range evts {
		ids = append(ids, evt.ID)
	}

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, evts); err != nil {
			for _, evt := range evts {
				d.fanoutFailed(ctx, "notifier", evt, err)
			}
			if markErr := d.outbox.MarkAttempted(ctx, d.db, ids); markErr != nil {
				d.log.Warn("failed to record delivery attempt", zap.Error(markErr))
			}
			return
		}
	}

	if err := d.outbox.MarkDispatched(ctx, d.db, ids); err != nil {
		d.log.Warn("failed to mark events dispatched", zap.Error(err), zap.Int("count", len(ids)))
	}
}

// Redeliver replays events whose notification was never acknowledged.
// Live subscribers drop replays they have already seen.
func (d *Dispatcher) Redeliver(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	rows, err := d.outbox.ListUndelivered(ctx, d.db, olderThan, limit)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	d.Dispatch(ctx, rows)
	return len(rows), nil
}

func (d *Dispatcher) fanoutFailed(ctx context.Context, sink string, evt OrderEvent, err error) {
	d.log.Warn("order event fan-out failed",
		zap.String("sink", sink),
		zap.String("event_id", evt.ID),
		zap.String("order_id", evt.OrderID.String()),
		zap.String("event_type", string(evt.Type)),
		zap.Int64("version", evt.Version),
		zap.Error(err),
	)
	d.obsMetrics.RecordFanoutFailure(ctx, sink, string(evt.Type))
}
