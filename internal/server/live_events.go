package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pasarku/internal/actor"
	"github.com/smallbiznis/pasarku/internal/liveevents"
	"go.uber.org/zap"
)

const (
	defaultLiveHeartbeat = 15 * time.Second

	sseEventOrder  = "order_event"
	sseEventResync = "resync"
)

// StreamOrderEvents serves a live stream over SSE. A client resumes with the
// last cursor it saw (Last-Event-ID or ?after=); when the hub cannot prove
// nothing was missed the stream sends a resync event and closes, and the
// client refetches the orders it shows.
func (s *Server) StreamOrderEvents(c *gin.Context) {
	if s.liveEvents == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	kind := strings.ToLower(strings.TrimSpace(c.Param("kind")))
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, ok := actorFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if err := s.authorizeStream(c, a, kind, id); err != nil {
		AbortWithError(c, err)
		return
	}

	cursorValue := c.GetHeader("Last-Event-ID")
	if strings.TrimSpace(cursorValue) == "" {
		cursorValue = c.Query("after")
	}
	after, err := parseOptionalUint64(cursorValue)
	if err != nil {
		AbortWithError(c, newValidationError("after", "invalid_after", "invalid cursor"))
		return
	}

	subscription, backlog, resync, err := s.liveEvents.Subscribe(liveevents.StreamKey(kind, id), after)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	if resync {
		_ = writeResync(writer)
		flusher.Flush()
		return
	}

	buyerOnly := a.Type == actor.TypeBuyer
	for _, msg := range backlog {
		if err := writeLiveMessage(writer, msg, buyerOnly); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeatEvery := s.cfg.Fulfillment.LiveHeartbeat
	if heartbeatEvery <= 0 {
		heartbeatEvery = defaultLiveHeartbeat
	}
	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-subscription.Messages():
			if !open {
				if subscription.Lagged() {
					s.log.Warn("live subscriber fell behind",
						zap.String("stream", subscription.Key()),
						zap.String("actor", a.String()),
					)
					_ = writeResync(writer)
					flusher.Flush()
				}
				return
			}
			if err := writeLiveMessage(writer, msg, buyerOnly); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// authorizeStream allows parties onto their own streams only. Order streams
// are open to whoever may read the order.
func (s *Server) authorizeStream(c *gin.Context, a actor.Actor, kind string, id snowflake.ID) error {
	switch kind {
	case liveevents.StreamOrder:
		_, err := s.orderSvc.Get(c.Request.Context(), id.String())
		return err
	case liveevents.StreamMerchant:
		return requireMerchantScope(c, id)
	case liveevents.StreamCourier:
		return requireCourierScope(c, id)
	case liveevents.StreamBuyer:
		if a.Type == actor.TypeAdmin || (a.Type == actor.TypeBuyer && a.ID == id) {
			return nil
		}
		return ErrForbidden
	default:
		return liveevents.ErrInvalidStreamKey
	}
}

func writeLiveMessage(w io.Writer, msg liveevents.Message, buyerOnly bool) error {
	if buyerOnly && !msg.Event.BuyerVisible {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", msg.Cursor, sseEventOrder, data)
	return err
}

func writeResync(w io.Writer) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: {}\n\n", sseEventResync)
	return err
}
