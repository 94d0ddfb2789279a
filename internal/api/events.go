package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pbraga/nexchat/internal/bus"
	"go.uber.org/zap"
)

// forwardedPrefixes lists the bus kinds mirrored onto the SSE stream. The
// "srv." inputs consumed by the engine stay internal except for the
// connection and presence signals a UI wants.
var forwardedPrefixes = []string{
	"message.",
	"conversation.",
	"unread.",
	"session.",
	"srv.presence",
	"srv.connected",
	"srv.disconnected",
}

// EventService streams bus events to CLI watchers over SSE.
type EventService struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEventService creates a new event service.
func NewEventService(b *bus.Bus, logger *zap.Logger) *EventService {
	return &EventService{bus: b, logger: logger}
}

func forwarded(kind string) bool {
	for _, p := range forwardedPrefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}

// Stream mirrors bus events as server-sent events until the client goes away.
func (s *EventService) Stream(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	events, unsubscribe := s.bus.Subscribe("", 256)
	defer unsubscribe()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-events:
			if !forwarded(evt.Kind) {
				continue
			}
			data, err := json.Marshal(evt.Payload)
			if err != nil {
				s.logger.Warn("unmarshalable event payload", zap.String("kind", evt.Kind))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
