package server

import (
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "activecaptain"
	defaultHeartbeatInterval = 25 * time.Second
)

type tilePayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type realtimeEventPayload struct {
	Kind      string       `json:"kind"`
	Tile      *tilePayload `json:"tile,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Source    string       `json:"source"`
}

func newRealtimeEventPayload(event notify.Event) realtimeEventPayload {
	payload := realtimeEventPayload{
		Kind:      string(event.Kind),
		Timestamp: event.Timestamp,
		Source:    realtimeSourceBackend,
	}
	if event.Tile != nil {
		payload.Tile = &tilePayload{X: event.Tile.X, Y: event.Tile.Y}
	}
	return payload
}

// handleEventStream streams library notifications as server-sent events
// until the client disconnects.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cancel := h.events.Subscribe(ctx)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Debug("event stream opened", zap.String("subject", c.GetString(subjectContextKey)))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Kind), newRealtimeEventPayload(event))
			return true
		case now := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": now.UTC(), "source": realtimeSourceBackend})
			return true
		}
	})
	h.logger.Debug("event stream closed", zap.String("subject", c.GetString(subjectContextKey)))
}
