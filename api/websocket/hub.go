// Package websocket streams market data to subscribed clients. The hub owns
// the client set; the engine publishes trades and depth snapshots to it
// after each commit and the hub fans them out per channel.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/engine"
	"github.com/openalpha/spotex/metrics"
)

// Channel name prefixes. Clients subscribe to e.g. "trades:BTC".
const (
	TradesPrefix = "trades:"
	DepthPrefix  = "depth:"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the envelope for every frame the hub sends.
type Message struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// subscription pairs a client with a channel change request.
type subscription struct {
	client  *Client
	channel string
}

// Hub maintains the active clients and their channel subscriptions.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	events      chan Message

	mu       sync.RWMutex
	clients  map[*Client]bool
	channels map[string]map[*Client]bool

	log *zap.Logger
	col *metrics.Collector
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(log *zap.Logger, col *metrics.Collector) *Hub {
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription, 64),
		unsubscribe: make(chan subscription, 64),
		events:      make(chan Message, 256),
		clients:     make(map[*Client]bool),
		channels:    make(map[string]map[*Client]bool),
		log:         log.Named("ws"),
		col:         col,
	}
}

// Run drives the hub until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case sub := <-h.subscribe:
			h.addSubscription(sub)
		case sub := <-h.unsubscribe:
			h.removeSubscription(sub)
		case msg := <-h.events:
			h.broadcast(msg)
		case <-stop:
			h.closeAll()
			return
		}
	}
}

// PublishTrade implements engine.Feed. Non-blocking: a full event queue
// drops the frame rather than stalling the matching path.
func (h *Hub) PublishTrade(ev engine.TradeEvent) {
	h.offer(Message{Type: "trade", Channel: TradesPrefix + ev.Ticker, Data: ev})
}

// PublishDepth implements engine.Feed.
func (h *Hub) PublishDepth(ev engine.DepthEvent) {
	h.offer(Message{Type: "depth", Channel: DepthPrefix + ev.Ticker, Data: ev})
}

func (h *Hub) offer(msg Message) {
	select {
	case h.events <- msg:
	default:
		h.log.Warn("event queue full, frame dropped", zap.String("channel", msg.Channel))
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.col.RecordWSConnection(1)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for channel, members := range h.channels {
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	close(c.send)
	h.col.RecordWSConnection(-1)
}

func (h *Hub) addSubscription(sub subscription) {
	h.mu.Lock()
	// A subscribe request can arrive after the client already unregistered;
	// its send channel is closed by then, so it must not re-enter the
	// channel map or be enqueued to.
	if _, ok := h.clients[sub.client]; !ok {
		h.mu.Unlock()
		return
	}
	if h.channels[sub.channel] == nil {
		h.channels[sub.channel] = make(map[*Client]bool)
	}
	h.channels[sub.channel][sub.client] = true
	h.mu.Unlock()

	sub.client.enqueue(Message{Type: "subscribed", Channel: sub.channel})
}

func (h *Hub) removeSubscription(sub subscription) {
	h.mu.Lock()
	if members, ok := h.channels[sub.channel]; ok {
		delete(members, sub.client)
		if len(members) == 0 {
			delete(h.channels, sub.channel)
		}
	}
	_, alive := h.clients[sub.client]
	h.mu.Unlock()

	if !alive {
		return
	}
	sub.client.enqueue(Message{Type: "unsubscribed", Channel: sub.channel})
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	members := h.channels[msg.Channel]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal frame", zap.Error(err))
		return
	}
	for _, c := range targets {
		c.trySend(data)
	}
	h.col.RecordWSMessage(msg.Channel)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	c := newClient(h, conn)
	h.register <- c
	go c.writePump()
	go c.readPump()
}
