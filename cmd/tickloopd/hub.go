package main

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tickloop/tickloop/pkg/event"
)

// hub fans the event stream out to websocket subscribers. Each
// subscriber is paced independently: a slow or throttled client drops
// events rather than stalling the publisher, which is called from the
// tick loop.
type hub struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	perSec   float64
	upgrader websocket.Upgrader
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	lim  *rate.Limiter
}

func newHub(eventsPerSecond float64) *hub {
	if eventsPerSecond <= 0 {
		eventsPerSecond = 50
	}
	return &hub{
		subs:   make(map[*subscriber]struct{}),
		perSec: eventsPerSecond,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// publish delivers one event to every subscriber that has pacing
// budget and channel space. Never blocks.
func (h *hub) publish(ev event.Event) {
	payload, err := marshalEvent(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.lim.Allow() {
			continue
		}
		select {
		case sub.send <- payload:
		default:
			// Subscriber is backed up; drop rather than stall the loop.
		}
	}
}

func (h *hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events: upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, 256),
		lim:  rate.NewLimiter(rate.Limit(h.perSec), int(h.perSec)+1),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *hub) writeLoop(sub *subscriber) {
	for payload := range sub.send {
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readLoop drains inbound frames so close/ping handling works, then
// unregisters the subscriber when the connection dies.
func (h *hub) readLoop(sub *subscriber) {
	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		close(sub.send)
		sub.conn.Close()
	}()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}
