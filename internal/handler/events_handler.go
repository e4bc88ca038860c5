package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/inventory-ledger/internal/events"
	"github.com/sirupsen/logrus"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = (eventsPongWait * 9) / 10
)

// EventsHandler streams ledger changes over a websocket
type EventsHandler struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

// NewEventsHandler creates a new EventsHandler
func NewEventsHandler(hub *events.Hub, log *logrus.Logger) *EventsHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Stream upgrades the connection and forwards every published event as JSON
// GET /api/inventory/events
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered the request
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer sub.Close()

	// The read loop only handles pongs and notices the client going away
	done := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// RegisterRoutes registers the change feed route
func (h *EventsHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.GET("/inventory/events", authMiddleware, h.Stream)
}
