package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"wanderguide/pkg/model"
	"wanderguide/pkg/notify"
)

const (
	eventsBuffer = 64
	writeWait    = 5 * time.Second
	pingPeriod   = 30 * time.Second
)

// EventsHandler streams engine events to UI clients over a websocket.
// GET /api/events[?session=<id>]
type EventsHandler struct {
	bus      *notify.Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(bus *notify.Bus) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local UI only; the server binds to localhost by default.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: slog.With("component", "events_ws"),
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter func(model.Event) bool
	if id := r.URL.Query().Get("session"); id != "" {
		filter = notify.SessionFilter(id)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(eventsBuffer, filter)
	defer h.bus.Unsubscribe(sub.ID)
	h.logger.Debug("Event client connected", "subscriber", sub.ID, "remote", r.RemoteAddr)

	// The read loop only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				h.close(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("Event client write failed", "subscriber", sub.ID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			h.logger.Debug("Event client disconnected", "subscriber", sub.ID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *EventsHandler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
