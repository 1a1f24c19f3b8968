package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 32
)

// Hub keeps websocket subscribers grouped by channel and implements Sink.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	channels map[string]map[*subscriber]struct{}
}

type subscriber struct {
	conn    *websocket.Conn
	channel string
	send    chan []byte
}

// NewHub creates a Hub. checkOrigin may be nil to accept any origin.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		channels: make(map[string]map[*subscriber]struct{}),
	}
}

func (h *Hub) Name() string { return "websocket" }

// Send queues body for every subscriber of ev.Channel. Slow subscribers whose
// buffer is full are disconnected.
func (h *Hub) Send(_ context.Context, ev Event, body []byte) error {
	// Sends happen under the read lock so remove cannot close a send channel
	// in between.
	var slow []*subscriber
	h.mu.RLock()
	for s := range h.channels[ev.Channel] {
		select {
		case s.send <- body:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.remove(s)
	}
	return nil
}

// Subscribers returns the number of live subscribers of channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close disconnects every subscriber. Hijacked connections are not tracked by
// http.Server.Shutdown, so this runs during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, set := range h.channels {
		for s := range set {
			close(s.send)
		}
		delete(h.channels, channel)
	}
}

// ServeHTTP upgrades the request and subscribes it to the channel named by
// the "channel" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if !ValidChannel(channel) {
		http.Error(w, "invalid channel", http.StatusBadRequest)
		return
	}

	lg := zctx.From(r.Context()).With(zap.String("channel", channel))
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		lg.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{
		conn:    conn,
		channel: channel,
		send:    make(chan []byte, clientSendSize),
	}
	h.add(s)
	lg.Debug("Subscriber joined")

	go h.writeLoop(s, lg)
	h.readLoop(s)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[s.channel]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.channels[s.channel] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[s.channel]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.channels, s.channel)
	}
	close(s.send)
}

// readLoop discards client messages and keeps the read deadline fresh.
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close()
	}()
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber, lg *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				lg.Debug("Websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
