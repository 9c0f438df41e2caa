package websocket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
)

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// clientRequest is what a client may send: subscribe/unsubscribe to a
// channel, or ping.
type clientRequest struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// trySend queues data without blocking; slow consumers lose frames instead
// of backpressuring the hub.
func (c *Client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req clientRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.enqueue(Message{Type: "error", Data: "malformed request"})
			continue
		}
		c.handle(req)
	}
}

func (c *Client) handle(req clientRequest) {
	switch req.Action {
	case "subscribe":
		if !validChannel(req.Channel) {
			c.enqueue(Message{Type: "error", Data: "unknown channel"})
			return
		}
		c.hub.subscribe <- subscription{client: c, channel: req.Channel}
	case "unsubscribe":
		c.hub.unsubscribe <- subscription{client: c, channel: req.Channel}
	case "ping":
		c.enqueue(Message{Type: "pong"})
	default:
		c.enqueue(Message{Type: "error", Data: "unknown action"})
	}
}

// validChannel accepts the public market-data channels only.
func validChannel(channel string) bool {
	for _, prefix := range []string{TradesPrefix, DepthPrefix} {
		if strings.HasPrefix(channel, prefix) && len(channel) > len(prefix) {
			return true
		}
	}
	return false
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
