// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before its read loop
	// gives up; pings go out at a fraction of it.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is the per-client outbound queue. A client that cannot
	// drain it is dropped rather than stalling the fan-out.
	sendBuffer = 64
)

// Hub is the in-process websocket transport: it tracks topic
// subscriptions per connection and fans published payloads out to them.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	topics  map[string]map[*hubClient]struct{}
	clients map[*hubClient]struct{}

	// online refcounts connections per member for the ephemeral presence
	// flag. Never authoritative.
	online map[string]int

	closed bool
}

var _ Transport = (*Hub)(nil)

type hubClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	memberID string
	topics   []string

	closeOnce sync.Once
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		topics:  make(map[string]map[*hubClient]struct{}),
		clients: make(map[*hubClient]struct{}),
		online:  make(map[string]int),
	}
}

// HandleConn registers an upgraded websocket connection subscribed to the
// given topics and services it until the peer disconnects. Blocks until
// the connection is gone.
func (h *Hub) HandleConn(conn *websocket.Conn, memberID string, topics []string) {
	c := &hubClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		memberID: memberID,
		topics:   topics,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	for _, topic := range topics {
		subs, ok := h.topics[topic]
		if !ok {
			subs = make(map[*hubClient]struct{})
			h.topics[topic] = subs
		}
		subs[c] = struct{}{}
	}
	if memberID != "" {
		h.online[memberID]++
	}
	h.mu.Unlock()

	h.log.Debug("client subscribed", "member_id", memberID, "topics", len(topics))

	go c.writePump()
	c.readPump()
}

// Send fans payload out to every subscriber of topic. A client whose send
// buffer is full is dropped.
func (h *Hub) Send(_ context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	subs := make([]*hubClient, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		select {
		case c.send <- payload:
		case <-c.done:
		default:
			h.log.Warn("dropping slow client", "member_id", c.memberID)
			c.close()
		}
	}
	return nil
}

// Online reports whether memberID has at least one live connection.
func (h *Hub) Online(memberID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online[memberID] > 0
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		for _, topic := range c.topics {
			if subs, ok := h.topics[topic]; ok {
				delete(subs, c)
				if len(subs) == 0 {
					delete(h.topics, topic)
				}
			}
		}
		if c.memberID != "" {
			h.online[c.memberID]--
			if h.online[c.memberID] <= 0 {
				delete(h.online, c.memberID)
			}
		}
	}
	h.mu.Unlock()
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		c.conn.Close()
	})
}

// readPump discards inbound frames; its job is pong handling and noticing
// the peer going away.
func (c *hubClient) readPump() {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
