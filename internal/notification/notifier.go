package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/pasarku/internal/events"
	"go.uber.org/zap"
)

// Message is the payload the notification collaborator consumes.
type Message struct {
	EventID    string         `json:"event_id"`
	Type       events.Type    `json:"type"`
	OrderID    string         `json:"order_id"`
	MerchantID string         `json:"merchant_id"`
	BuyerID    string         `json:"buyer_id"`
	CourierID  string         `json:"courier_id,omitempty"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status"`
	Version    int64          `json:"version"`
	Seq        int            `json:"seq"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

func NewMessage(evt events.OrderEvent) Message {
	msg := Message{
		EventID:    evt.ID,
		Type:       evt.Type,
		OrderID:    evt.OrderID.String(),
		MerchantID: evt.MerchantID.String(),
		BuyerID:    evt.BuyerID.String(),
		FromStatus: evt.FromStatus,
		ToStatus:   evt.ToStatus,
		Version:    evt.Version,
		Seq:        evt.Seq,
		OccurredAt: evt.CreatedAt,
		Data:       evt.Payload,
	}
	if evt.CourierID != nil {
		msg.CourierID = evt.CourierID.String()
	}
	return msg
}

// Writer is the subset of *kafka.Writer the notifier needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// KafkaNotifier keys every message by order id so one order's events land on
// one partition in commit order.
type KafkaNotifier struct {
	writer Writer
	log    *zap.Logger
}

func NewKafkaNotifier(writer Writer, log *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, log: log.Named("notification.kafka")}
}

func (n *KafkaNotifier) Notify(ctx context.Context, evts []events.OrderEvent) error {
	if len(evts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evts))
	for _, evt := range evts {
		value, err := json.Marshal(NewMessage(evt))
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.OrderID.String()),
			Value: value,
			Time:  evt.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.Type)},
			},
		})
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	n.log.Debug("notified order events", zap.Int("count", len(msgs)))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier is used when no broker is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notification.log")}
}

func (n *LogNotifier) Notify(_ context.Context, evts []events.OrderEvent) error {
	for _, evt := range evts {
		n.log.Info("order event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("order_id", evt.OrderID.String()),
			zap.String("to_status", evt.ToStatus),
			zap.Int64("version", evt.Version),
		)
	}
	return nil
}

var (
	_ events.Notifier = (*KafkaNotifier)(nil)
	_ events.Notifier = (*LogNotifier)(nil)
)
