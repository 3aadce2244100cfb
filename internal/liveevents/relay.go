package liveevents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pasarku/internal/events"
	"go.uber.org/zap"
)

const DefaultRelayChannel = "pasarku:order-events"

type envelope struct {
	Origin string            `json:"origin"`
	Event  events.OrderEvent `json:"event"`
}

// Relay mirrors committed events to other API instances over Redis pub/sub so
// subscribers connected anywhere see every transition.
type Relay struct {
	client     *redis.Client
	hub        *Hub
	log        *zap.Logger
	channel    string
	instanceID string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(client *redis.Client, hub *Hub, channel string, log *zap.Logger) *Relay {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{
		client:     client,
		hub:        hub,
		log:        log.Named("liveevents.relay"),
		channel:    channel,
		instanceID: uuid.NewString(),
	}
}

func (r *Relay) InstanceID() string { return r.instanceID }

func (r *Relay) Publish(ctx context.Context, evt events.OrderEvent) error {
	if r == nil || r.client == nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Origin: r.instanceID, Event: evt})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Start subscribes to the relay channel and feeds foreign events into the hub.
func (r *Relay) Start(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx, pubsub, r.done)
	return nil
}

func (r *Relay) run(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("dropping malformed relay message", zap.Error(err))
		return
	}
	if env.Origin == r.instanceID {
		return
	}
	r.hub.Publish(env.Event)
}

func (r *Relay) Stop(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("relay_stop_timeout")
	}
}
