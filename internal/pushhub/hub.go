// Package pushhub is the server-push fan-out surface: it delivers
// normalized market-data events to WebSocket clients, serialized with
// internal/wire so a kline event on the socket is shaped exactly like the
// REST candle payload. The register/unregister/broadcast loop generalizes
// a single-symbol subscription model into (symbol, streamType) pairs per
// the `{action, symbol, types}` protocol.
package pushhub

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketdata-backend/internal/provider"
)

// topic identifies one (symbol, streamType) subscription a client can hold.
type topic struct {
	symbol     string
	streamType provider.StreamType
}

// Hub maintains the set of active push clients and fans normalized events
// out to whichever clients subscribed to the matching (symbol, type) topic.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	mu            sync.RWMutex
	subscriptions map[topic]map[*Client]bool
}

// NewHub constructs an empty push hub. Call Run in its own goroutine before
// wiring HandleWebSocket into a route.
func NewHub() *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscriptions: make(map[topic]map[*Client]bool),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Run processes register/unregister requests until stopped by closing done.
func (h *Hub) Run(done <-chan struct{}) {
	log.Println("[pushhub] started")
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			c.sendMessage(map[string]interface{}{
				"type": "connected", "clientId": c.id, "timestamp": time.Now().UnixMilli(),
			})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				for t := range c.topics {
					if clients, exists := h.subscriptions[t]; exists {
						delete(clients, c)
						if len(clients) == 0 {
							delete(h.subscriptions, t)
						}
					}
				}
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case <-done:
			return
		}
	}
}

// subscribe adds client to the topic (symbol, streamType).
func (h *Hub) subscribe(c *Client, symbol string, st provider.StreamType) {
	t := topic{symbol: symbol, streamType: st}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.topics == nil {
		c.topics = make(map[topic]bool)
	}
	c.topics[t] = true
	if h.subscriptions[t] == nil {
		h.subscriptions[t] = make(map[*Client]bool)
	}
	h.subscriptions[t][c] = true
}

// unsubscribe removes client from the topic (symbol, streamType).
func (h *Hub) unsubscribe(c *Client, symbol string, st provider.StreamType) {
	t := topic{symbol: symbol, streamType: st}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.topics, t)
	if clients, exists := h.subscriptions[t]; exists {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.subscriptions, t)
		}
	}
}

// Broadcast delivers payload (already-marshaled JSON) to every client
// subscribed to (symbol, streamType).
func (h *Hub) Broadcast(symbol string, st provider.StreamType, payload []byte) {
	t := topic{symbol: symbol, streamType: st}
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.subscriptions[t]
	if !ok {
		return
	}
	for c := range clients {
		select {
		case c.send <- payload:
		default:
			close(c.send)
			delete(clients, c)
		}
	}
}

// Stats returns the connected-client count and per-symbol subscriber counts
// (summed over stream types),
// for the `getStats` protocol message.
func (h *Hub) Stats() (clientCount int, bySymbol map[string]int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bySymbol = make(map[string]int)
	for t, clients := range h.subscriptions {
		bySymbol[t.symbol] += len(clients)
	}
	return len(h.clients), bySymbol
}
