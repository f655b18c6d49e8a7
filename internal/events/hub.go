package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"material-search/internal/logging"
	"material-search/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 256
	broadcastQueue = 256
)

// Message is one index change as sent to websocket clients.
type Message struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Time int64  `json:"time"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans index changes out to every connected websocket client. Slow
// clients are disconnected rather than allowed to stall the indexer.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopped    chan struct{}
	once       sync.Once

	upgrader websocket.Upgrader
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, broadcastQueue),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run delivers messages until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.stopped)

	for {
		select {
		case <-h.done:
			for c := range h.clients {
				h.drop(c)
			}
			logging.Info("Event hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = true
			metrics.EventSubscribers.Set(float64(len(h.clients)))
			logging.Debug("Event client connected (total: %d)", len(h.clients))

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}
			logging.Debug("Event client disconnected (total: %d)", len(h.clients))

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				logging.Error("Failed to marshal event: %v", err)
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					logging.Warn("Event client too slow, disconnecting")
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	metrics.EventSubscribers.Set(float64(len(h.clients)))
}

// Publish queues a message for all clients. It never blocks: when the
// queue is full or the hub has stopped the message is dropped.
func (h *Hub) Publish(kind, path string) {
	msg := Message{Type: kind, Path: path, Time: time.Now().Unix()}
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- msg:
	default:
		logging.Debug("Event queue full, dropping %s event for %s", kind, path)
	}
}

// Shutdown disconnects every client and stops Run. It is safe to call more
// than once.
func (h *Hub) Shutdown() {
	h.once.Do(func() { close(h.done) })
}

// Stopped is closed once Run has returned.
func (h *Hub) Stopped() <-chan struct{} {
	return h.stopped
}

// ServeHTTP upgrades the request to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logging.Debug("Event write failed: %v", err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
}

// readPump discards client input and notices disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Event read error: %v", err)
			}
			return
		}
	}
}
