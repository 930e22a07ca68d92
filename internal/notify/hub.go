package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// Event is a recording lifecycle notification pushed to subscribed
// clients so the list view tracks server state without polling.
type Event struct {
	Type        string `json:"type"` // created, transcribed, transcription_failed, deleted
	RecordingID string `json:"recordingId"`
	Detail      string `json:"detail,omitempty"`
}

// Hub fans lifecycle events out to websocket subscribers.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// Register adds a subscriber and starts discarding its inbound frames,
// so pings and client closes are processed.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()

	h.logger.Debug().Int("subscribers", count).Msg("event subscriber connected")

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// Publish sends the event to every subscriber. Subscribers that cannot
// be written to are dropped. The hub lock serializes writes; gorilla
// connections allow only one concurrent writer.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteJSON(ev); err != nil {
			h.logger.Debug().Err(err).Msg("dropping event subscriber")
			delete(h.conns, c)
			c.Close()
		}
	}
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.conns {
		c.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
}
