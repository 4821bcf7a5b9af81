package submit

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventHub fans commit events out to websocket subscribers. It implements
// EventSink so an orderer can publish into it directly.
type EventHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewEventHub returns a hub with no subscribers.
func NewEventHub() *EventHub {
	return &EventHub{conns: make(map[*websocket.Conn]struct{})}
}

// Publish sends the event to every connected subscriber. Connections that
// fail to accept the write are dropped.
func (h *EventHub) Publish(ev CommitEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// Handler upgrades the request to a websocket and streams commit events to
// it until the peer goes away.
func (h *EventHub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conns[conn] = struct{}{}
		h.mu.Unlock()

		// Drain the read side so pings and close frames are processed.
		go func() {
			defer func() {
				h.mu.Lock()
				delete(h.conns, conn)
				h.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// Close disconnects every subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

// Listen dials a commit event stream and forwards every event to the sink
// until the context ends or the connection drops. A remote client pairs this
// with an EventRegistry to wait on its own transactions.
func Listen(ctx context.Context, url string, sink EventSink) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var ev CommitEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}
		sink.Publish(ev)
	}
}
