package events

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/pasarku/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OutboxParams struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
}

// Outbox writes order events inside the caller's transaction so an event
// exists if and only if its transition committed.
type Outbox struct {
	log   *zap.Logger
	clock clock.Clock
}

func NewOutbox(p OutboxParams) *Outbox {
	return &Outbox{
		log:   p.Log.Named("events.outbox"),
		clock: p.Clock,
	}
}

// PublishTx appends events for a single order version. Seq follows slice order.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, evts ...Event) ([]OrderEvent, error) {
	if len(evts) == 0 {
		return nil, nil
	}
	now := o.clock.Now()
	rows := make([]OrderEvent, 0, len(evts))
	for i, evt := range evts {
		row, err := newRow(evt, i, now)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func newRow(evt Event, seq int, now time.Time) (OrderEvent, error) {
	if evt.OrderID == 0 {
		return OrderEvent{}, ErrInvalidOrder
	}
	if strings.TrimSpace(string(evt.Type)) == "" || strings.TrimSpace(evt.ToStatus) == "" || evt.Version <= 0 {
		return OrderEvent{}, ErrInvalidEvent
	}
	var payload datatypes.JSONMap
	if len(evt.Payload) > 0 {
		payload = datatypes.JSONMap(evt.Payload)
	}
	return OrderEvent{
		ID:           ulid.Make().String(),
		OrderID:      evt.OrderID,
		Version:      evt.Version,
		Seq:          seq,
		MerchantID:   evt.MerchantID,
		BuyerID:      evt.BuyerID,
		CourierID:    evt.CourierID,
		Type:         evt.Type,
		FromStatus:   evt.FromStatus,
		ToStatus:     evt.ToStatus,
		ActorType:    evt.ActorType,
		ActorID:      evt.ActorID,
		BuyerVisible: evt.BuyerVisible,
		Payload:      payload,
		CreatedAt:    now,
	}, nil
}

// ListByOrder returns the event log of an order after a version, oldest first.
func (o *Outbox) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, afterVersion int64, limit int) ([]OrderEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []OrderEvent
	err := db.WithContext(ctx).
		Where("order_id = ? AND version > ?", orderID, afterVersion).
		Order("version ASC").
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUndelivered returns rows created before cutoff that the notifier has not acknowledged.
func (o *Outbox) ListUndelivered(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]OrderEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []OrderEvent
	err := db.WithContext(ctx).
		Where("dispatched_at IS NULL AND created_at < ?", cutoff).
		Order("order_id ASC").
		Order("version ASC").
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (o *Outbox) MarkDispatched(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE order_events SET dispatched_at = ? WHERE id IN ? AND dispatched_at IS NULL`,
		o.clock.Now(),
		ids,
	).Error
}

func (o *Outbox) MarkAttempted(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE order_events SET attempts = attempts + 1 WHERE id IN ?`,
		ids,
	).Error
}
