package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"campussnap/notify"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Manager tracks open connections per user and pushes events to them.
type Manager struct {
	mu       sync.RWMutex
	clients  map[primitive.ObjectID]map[*Client]bool
	upgrader websocket.Upgrader
}

type Client struct {
	conn    *websocket.Conn
	userID  primitive.ObjectID
	send    chan []byte
	manager *Manager
}

var _ notify.Notifier = (*Manager)(nil)

// NewManager accepts upgrades from the listed origins. Requests without an
// Origin header (non-browser clients) are always accepted.
func NewManager(allowedOrigins []string) *Manager {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Manager{
		clients: make(map[primitive.ObjectID]map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

func (m *Manager) register(c *Client) {
	m.mu.Lock()
	if m.clients[c.userID] == nil {
		m.clients[c.userID] = make(map[*Client]bool)
	}
	m.clients[c.userID][c] = true
	m.mu.Unlock()
	log.Printf("✅ WebSocket client registered for %s. Total clients: %d", c.userID.Hex(), m.ConnectedClients())
}

func (m *Manager) unregister(c *Client) {
	m.mu.Lock()
	if conns, ok := m.clients[c.userID]; ok && conns[c] {
		delete(conns, c)
		close(c.send)
		if len(conns) == 0 {
			delete(m.clients, c.userID)
		}
	}
	m.mu.Unlock()
	log.Printf("❌ WebSocket client unregistered. Total clients: %d", m.ConnectedClients())
}

// Notify queues ev on every connection of userID. A connection whose buffer
// is full is dropped.
func (m *Manager) Notify(_ context.Context, userID primitive.ObjectID, ev notify.Event) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":    ev.Type,
		"payload": ev,
	})
	if err != nil {
		log.Printf("❌ Error marshaling WebSocket message: %v", err)
		return
	}

	var slow []*Client
	m.mu.RLock()
	for c := range m.clients[userID] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range slow {
		m.unregister(c)
	}
}

func (m *Manager) ConnectedClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conns := range m.clients {
		n += len(conns)
	}
	return n
}

// Close drops every connection. Used on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, conns := range m.clients {
		for c := range conns {
			close(c.send)
		}
		delete(m.clients, id)
	}
}

// ServeUser upgrades the request and binds the connection to userID. The
// caller is responsible for authenticating the request first.
func (m *Manager) ServeUser(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBuffer),
		manager: m,
	}

	welcome, _ := json.Marshal(map[string]interface{}{
		"type": "connected",
		"payload": map[string]interface{}{
			"userId": userID.Hex(),
			"time":   time.Now().Unix(),
		},
	})
	client.send <- welcome
	m.register(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.manager.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket read error: %v", err)
			}
			return
		}

		var data struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}
		if data.Type == "ping" {
			c.sendPong()
		}
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) sendPong() {
	msg, _ := json.Marshal(map[string]interface{}{
		"type":    "pong",
		"payload": map[string]interface{}{"time": time.Now().Unix()},
	})

	c.manager.mu.RLock()
	defer c.manager.mu.RUnlock()
	if c.manager.clients[c.userID][c] {
		select {
		case c.send <- msg:
		default:
		}
	}
}
