package liveevents

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasarku/internal/cache"
	"github.com/smallbiznis/pasarku/internal/events"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16

	seenTTL = 6 * time.Hour
)

const (
	StreamMerchant = "merchant"
	StreamBuyer    = "buyer"
	StreamOrder    = "order"
	StreamCourier  = "courier"
)

var (
	ErrHubUnavailable   = errors.New("hub_unavailable")
	ErrInvalidStreamKey = errors.New("invalid_stream_key")
)

// Message is one event as delivered on a stream. Cursor is unique across the
// hub and increases with every delivery.
type Message struct {
	Cursor uint64            `json:"cursor"`
	Stream string            `json:"stream"`
	Event  events.OrderEvent `json:"event"`
}

type position struct {
	version int64
	seq     int
}

type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int

	cursorMu sync.Mutex
	cursor   uint64

	publishMu sync.Mutex
	seen      cache.Cache[snowflake.ID, position]
}

type stream struct {
	mu       sync.Mutex
	buffer   []Message
	base     uint64
	evicted  uint64
	subs     map[uint64]*Subscription
	nextID   uint64
	lastSent uint64
}

type Subscription struct {
	hub    *Hub
	st     *stream
	key    string
	id     uint64
	ch     chan Message
	lagged atomic.Bool
	closed bool
	once   sync.Once
}

func NewHub(bufferSize, subscriberBuffer int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if subscriberBuffer <= 0 {
		subscriberBuffer = DefaultSubscriberBuffer
	}
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       bufferSize,
		subscriberBuffer: subscriberBuffer,
		seen:             cache.NewTTLCache[snowflake.ID, position](),
	}
}

func StreamKey(kind string, id snowflake.ID) string {
	return kind + ":" + id.String()
}

// StreamKeys lists the streams an event belongs to.
func StreamKeys(evt events.OrderEvent) []string {
	keys := []string{
		StreamKey(StreamOrder, evt.OrderID),
		StreamKey(StreamMerchant, evt.MerchantID),
	}
	if evt.BuyerVisible {
		keys = append(keys, StreamKey(StreamBuyer, evt.BuyerID))
	}
	if evt.CourierID != nil && *evt.CourierID != 0 {
		keys = append(keys, StreamKey(StreamCourier, *evt.CourierID))
	}
	return keys
}

// Publish delivers evt to every stream it belongs to. Events at or behind the
// last position seen for their order are dropped, which absorbs redeliveries
// and relay echoes. Returns false when the event was dropped.
func (h *Hub) Publish(evt events.OrderEvent) bool {
	if h == nil {
		return false
	}
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	if !h.advance(evt) {
		return false
	}

	for _, key := range StreamKeys(evt) {
		h.mu.RLock()
		st := h.streams[key]
		h.mu.RUnlock()
		if st == nil {
			continue
		}
		st.publish(h, Message{Cursor: h.nextCursor(), Stream: key, Event: evt})
	}
	return true
}

func (h *Hub) advance(evt events.OrderEvent) bool {
	if last, ok := h.seen.Get(evt.OrderID); ok && !evt.After(last.version, last.seq) {
		return false
	}
	h.seen.Set(evt.OrderID, position{version: evt.Version, seq: evt.Seq}, seenTTL)
	return true
}

func (h *Hub) nextCursor() uint64 {
	h.cursorMu.Lock()
	defer h.cursorMu.Unlock()
	h.cursor++
	return h.cursor
}

func (h *Hub) currentCursor() uint64 {
	h.cursorMu.Lock()
	defer h.cursorMu.Unlock()
	return h.cursor
}

func (st *stream) publish(h *Hub, msg Message) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.buffer = append(st.buffer, msg)
	if len(st.buffer) > h.bufferSize {
		drop := len(st.buffer) - h.bufferSize
		st.evicted = st.buffer[drop-1].Cursor
		st.buffer = st.buffer[drop:]
	}
	st.lastSent = msg.Cursor

	for id, sub := range st.subs {
		select {
		case sub.ch <- msg:
		default:
			// A subscriber that cannot keep up is cut off and must refetch.
			sub.lagged.Store(true)
			sub.closed = true
			close(sub.ch)
			delete(st.subs, id)
		}
	}
}

// Subscribe attaches to a stream. With after == 0 the buffered backlog is
// returned. With a cursor, only messages newer than it are returned, and
// resync is true when the hub can no longer prove nothing was missed.
func (h *Hub) Subscribe(key string, after uint64) (sub *Subscription, backlog []Message, resync bool, err error) {
	if h == nil {
		return nil, nil, false, ErrHubUnavailable
	}
	key = strings.TrimSpace(key)
	if !validKey(key) {
		return nil, nil, false, ErrInvalidStreamKey
	}

	st := h.ensureStream(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	if after > 0 && (after < st.base || after < st.evicted) {
		resync = true
	}
	for _, msg := range st.buffer {
		if msg.Cursor > after {
			backlog = append(backlog, msg)
		}
	}

	id := st.nextID
	st.nextID++
	sub = &Subscription{
		hub: h,
		st:  st,
		key: key,
		id:  id,
		ch:  make(chan Message, h.subscriberBuffer),
	}
	st.subs[id] = sub
	return sub, backlog, resync, nil
}

func validKey(key string) bool {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return false
	}
	switch kind {
	case StreamMerchant, StreamBuyer, StreamOrder, StreamCourier:
	default:
		return false
	}
	parsed, err := snowflake.ParseString(id)
	return err == nil && parsed != 0
}

func (h *Hub) ensureStream(key string) *stream {
	h.mu.RLock()
	current := h.streams[key]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[key]
	if current == nil {
		current = &stream{
			subs: make(map[uint64]*Subscription),
			base: h.currentCursor(),
		}
		h.streams[key] = current
	}
	return current
}

func (h *Hub) unsubscribe(sub *Subscription) {
	st := sub.st
	st.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	delete(st.subs, sub.id)
	remaining := len(st.subs)
	st.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[sub.key] != st {
		return
	}
	st.mu.Lock()
	empty := len(st.subs) == 0
	st.mu.Unlock()
	if empty {
		delete(h.streams, sub.key)
	}
}

// Messages is closed when the subscription ends, either by Close or because
// the subscriber fell behind.
func (s *Subscription) Messages() <-chan Message {
	if s == nil {
		return nil
	}
	return s.ch
}

// Lagged reports whether the hub cut this subscriber off.
func (s *Subscription) Lagged() bool {
	if s == nil {
		return false
	}
	return s.lagged.Load()
}

func (s *Subscription) Key() string {
	if s == nil {
		return ""
	}
	return s.key
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}
