package pushhub

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marketdata-backend/internal/provider"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// ClientMessage is the subscribe/unsubscribe/getStats protocol envelope:
// `{action, symbol, types}`.
type ClientMessage struct {
	Action string   `json:"action"`
	Symbol string   `json:"symbol,omitempty"`
	Types  []string `json:"types,omitempty"`
}

// Client is one push-socket connection.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string

	topics map[topic]bool
	hub    *Hub
}

// HandleWebSocket upgrades the connection and registers the client with h.
func HandleWebSocket(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[pushhub] upgrade failed: %v", err)
		return
	}

	c := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     uuid.New().String()[:8],
		topics: make(map[topic]bool),
		hub:    h,
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[pushhub] read error for client %s: %v", c.id, err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[pushhub] invalid message from client %s: %v", c.id, err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		for _, raw := range msg.Types {
			c.hub.subscribe(c, msg.Symbol, provider.StreamType(raw))
		}
		c.sendMessage(map[string]interface{}{
			"type": "subscribed", "symbol": msg.Symbol, "types": msg.Types,
			"timestamp": time.Now().UnixMilli(),
		})

	case "unsubscribe":
		for _, raw := range msg.Types {
			c.hub.unsubscribe(c, msg.Symbol, provider.StreamType(raw))
		}
		c.sendMessage(map[string]interface{}{
			"type": "unsubscribed", "symbol": msg.Symbol, "types": msg.Types,
			"timestamp": time.Now().UnixMilli(),
		})

	case "getStats":
		clientCount, bySymbol := c.hub.Stats()
		c.sendMessage(map[string]interface{}{
			"type": "stats", "clientCount": clientCount, "subscriptions": bySymbol,
			"yourTopics": c.topicList(), "timestamp": time.Now().UnixMilli(),
		})

	default:
		log.Printf("[pushhub] unknown action from client %s: %s", c.id, msg.Action)
	}
}

func (c *Client) sendMessage(data interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		log.Printf("[pushhub] marshal error for client %s: %v", c.id, err)
		return
	}
	select {
	case c.send <- message:
	default:
		close(c.send)
	}
}

func (c *Client) topicList() []string {
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t.symbol+":"+string(t.streamType))
	}
	return out
}
