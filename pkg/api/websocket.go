package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/teliax/ringer-docs/pkg/metrics"
	"github.com/teliax/ringer-docs/pkg/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// createUpgrader creates a WebSocket upgrader with origin validation.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	originSet := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}

			// Pages served by this server connect from the same host.
			if origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}

			return originSet[origin]
		},
	}
}

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Server -> Client messages.
	MessageTypeSyncCompleted MessageType = "sync_completed"
	MessageTypeSpecsSynced   MessageType = "specs_synced"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
	MessageTypeSubscribed    MessageType = "subscribed"
	MessageTypeUnsubscribed  MessageType = "unsubscribed"

	// Client -> Server messages.
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
)

// Message represents a WebSocket message.
type Message struct {
	Type     MessageType `json:"type"`
	Category string      `json:"category,omitempty"`
	Payload  any         `json:"payload,omitempty"`
}

// SpecsSyncedPayload lists the files a run wrote into one category.
type SpecsSyncedPayload struct {
	RunID string              `json:"run_id"`
	Files []*store.SyncedFile `json:"files"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	// Registered clients.
	clients map[*Client]bool

	// Clients subscribed to specific categories.
	subscriptions map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Broadcast messages to all clients.
	broadcast chan *Message

	// Broadcast messages to one category.
	categoryBroadcast chan *categoryMessage

	mu sync.RWMutex
}

type categoryMessage struct {
	category string
	msg      *Message
}

// NewHub creates a new WebSocket hub.
func NewHub(log logrus.FieldLogger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:               log.WithField("component", "websocket"),
		metrics:           m,
		clients:           make(map[*Client]bool),
		subscriptions:     make(map[string]map[*Client]bool),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		broadcast:         make(chan *Message, 256),
		categoryBroadcast: make(chan *categoryMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Starting WebSocket hub")

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Stopping WebSocket hub")

			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.metrics.SetWebSocketClients(len(h.clients))
			h.mu.Unlock()

			h.log.WithField("client", client.id).Debug("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

			h.log.WithField("client", client.id).Debug("Client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()

			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					h.remove(client)
				}
			}

			h.mu.Unlock()

		case cm := <-h.categoryBroadcast:
			h.mu.Lock()

			for client := range h.subscriptions[cm.category] {
				select {
				case client.send <- cm.msg:
				default:
					h.remove(client)
				}
			}

			h.mu.Unlock()
		}
	}
}

// remove drops a client and closes its send channel. The caller holds mu.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)
	client.removed = true

	for category, clients := range h.subscriptions {
		delete(clients, client)

		if len(clients) == 0 {
			delete(h.subscriptions, category)
		}
	}

	h.metrics.SetWebSocketClients(len(h.clients))
}

// Subscribe adds a client to a category's subscription list.
func (h *Hub) Subscribe(client *Client, category string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// An evicted client may still be reading; its send channel is closed.
	if client.removed {
		return
	}

	if _, ok := h.subscriptions[category]; !ok {
		h.subscriptions[category] = make(map[*Client]bool)
	}

	h.subscriptions[category][client] = true

	h.log.WithFields(logrus.Fields{
		"client":   client.id,
		"category": category,
	}).Debug("Client subscribed to category")
}

// Unsubscribe removes a client from a category's subscription list.
func (h *Hub) Unsubscribe(client *Client, category string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.subscriptions[category]; ok {
		delete(clients, client)

		if len(clients) == 0 {
			delete(h.subscriptions, category)
		}
	}

	h.log.WithFields(logrus.Fields{
		"client":   client.id,
		"category": category,
	}).Debug("Client unsubscribed from category")
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg *Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("Broadcast channel full, dropping message")
	}
}

// BroadcastToCategory sends a message to all clients subscribed to a category.
func (h *Hub) BroadcastToCategory(category string, msg *Message) {
	msg.Category = category

	select {
	case h.categoryBroadcast <- &categoryMessage{category: category, msg: msg}:
	default:
		h.log.Warn("Category broadcast channel full, dropping message")
	}
}

// BroadcastSyncRun announces a finished run to every client and the files
// it wrote to the subscribers of each touched category.
func (h *Hub) BroadcastSyncRun(run *store.SyncRun) {
	summary := *run
	summary.Files = nil

	h.Broadcast(&Message{Type: MessageTypeSyncCompleted, Payload: &summary})

	var (
		order      []string
		byCategory = make(map[string][]*store.SyncedFile)
	)

	for _, f := range run.Files {
		if _, ok := byCategory[f.Category]; !ok {
			order = append(order, f.Category)
		}

		byCategory[f.Category] = append(byCategory[f.Category], f)
	}

	for _, category := range order {
		h.BroadcastToCategory(category, &Message{
			Type:    MessageTypeSpecsSynced,
			Payload: SpecsSyncedPayload{RunID: run.ID, Files: byCategory[category]},
		})
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// reply queues a message for one client if it is still registered.
func (h *Hub) reply(client *Client, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return
	}

	select {
	case client.send <- msg:
	default:
		h.log.WithField("client", client.id).Warn("Client send buffer full, dropping reply")
	}
}

// Client represents a WebSocket client connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan *Message

	// removed is set by the hub under mu once send is closed.
	removed bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan *Message, 256),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("WebSocket read error")
			}

			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.WithError(err).Warn("Failed to parse WebSocket message")
			c.hub.reply(c, &Message{Type: MessageTypeError, Payload: "invalid message"})

			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				c.hub.log.WithError(err).Warn("Failed to marshal WebSocket message")

				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages from the client.
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.Category != "" {
			c.hub.Subscribe(c, msg.Category)
			c.hub.reply(c, &Message{Type: MessageTypeSubscribed, Category: msg.Category})
		}

	case MessageTypeUnsubscribe:
		if msg.Category != "" {
			c.hub.Unsubscribe(c, msg.Category)
			c.hub.reply(c, &Message{Type: MessageTypeUnsubscribed, Category: msg.Category})
		}

	case MessageTypePing:
		c.hub.reply(c, &Message{Type: MessageTypePong, Payload: map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}})

	default:
		c.hub.log.WithField("type", msg.Type).Warn("Unknown message type")
		c.hub.reply(c, &Message{Type: MessageTypeError, Payload: "unknown message type"})
	}
}

// ServeWs upgrades a request and registers the connection with the hub.
// Sync notifications are public, so no credentials are required.
func ServeWs(hub *Hub, allowedOrigins []string, w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(allowedOrigins)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.WithError(err).Error("Failed to upgrade WebSocket")

		return
	}

	clientID := r.Header.Get("X-Request-ID")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	client := NewClient(hub, conn, clientID)
	hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
