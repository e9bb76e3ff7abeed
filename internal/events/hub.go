// Package events streams service events to admin websocket subscribers.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jgivc/netfshare/internal/entity"
)

const (
	historySize  = 100
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// hub keeps the last events and fans new ones out to subscribers. Each subscriber
// has its own writer goroutine, a subscriber whose buffer is full is dropped.
type hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	history     [][]byte
	next        int
	closed      bool

	upgrader websocket.Upgrader
	now      func() time.Time
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *hub {
	return &hub{
		subscribers: make(map[*subscriber]struct{}),
		history:     make([][]byte, historySize),
		now:         time.Now,
		log:         log.With(slog.String("item", "EventHub")),
	}
}

func (h *hub) Publish(kind string, payload any) {
	data, err := json.Marshal(entity.Event{Kind: kind, Time: h.now(), Payload: payload})
	if err != nil {
		h.log.Error("Cannot marshal event", slog.String("kind", kind), slog.Any("error", err))

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.history[h.next] = data
	h.next = (h.next + 1) % historySize

	for s := range h.subscribers {
		select {
		case s.send <- data:
		default:
			h.log.Warn("Drop slow subscriber", slog.String("remote", s.conn.RemoteAddr().String()))
			h.remove(s)
		}
	}
}

// HandleConnection upgrades the request, replays recent events and subscribes the client.
func (h *hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Cannot upgrade connection", slog.Any("error", err))

		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer+historySize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()

		return
	}

	for i := 0; i < historySize; i++ {
		if data := h.history[(h.next+i)%historySize]; data != nil {
			s.send <- data
		}
	}
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()

	go h.writePump(s)
	go h.readPump(s)
}

func (h *hub) writePump(s *subscriber) {
	defer s.conn.Close()

	for data := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.unsubscribe(s)

			return
		}
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump only watches for the client going away.
func (h *hub) readPump(s *subscriber) {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			h.unsubscribe(s)

			return
		}
	}
}

func (h *hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.remove(s)
}

// remove must be called with h.mu held.
func (h *hub) remove(s *subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
}

func (h *hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subscribers)
}

// Close disconnects every subscriber and refuses new ones.
func (h *hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for s := range h.subscribers {
		h.remove(s)
	}
}
