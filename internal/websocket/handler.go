// Package websocket pushes change notifications to connected clients. It is
// an accelerator only: clients keep polling, and a dropped notification costs
// at most one poll interval.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ayushdsd/spotlight-sub000/internal/logger"
	"github.com/ayushdsd/spotlight-sub000/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxReadSize    = 512
	sendBufferSize = 64
	queueSize      = 256
)

var log = logger.New("websocket")

// Client is one websocket connection. A user may hold several.
type Client struct {
	UserID string
	Socket *websocket.Conn
	Send   chan []byte
}

// Event is the frame written to clients
type Event struct {
	models.Notification
	Timestamp time.Time `json:"timestamp"`
}

type delivery struct {
	userIDs []string
	payload []byte
}

// Manager maintains the set of active clients
type Manager struct {
	clients    map[string]map[*Client]bool
	deliveries chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.Mutex
	upgrader   websocket.Upgrader
}

// NewManager creates a manager accepting connections from allowedOrigins.
// An empty list or "*" accepts any origin.
func NewManager(allowedOrigins []string) *Manager {
	m := &Manager{
		clients:    make(map[string]map[*Client]bool),
		deliveries: make(chan delivery, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return m
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		if origin == "" || len(set) == 0 {
			return true
		}
		if !set[origin] {
			log.Warn("Rejected websocket origin %s", origin)
			return false
		}
		return true
	}
}

// Run serves registrations and deliveries until Stop is called
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			if m.clients[client.UserID] == nil {
				m.clients[client.UserID] = make(map[*Client]bool)
			}
			m.clients[client.UserID][client] = true
			m.mutex.Unlock()
			log.Info("Client connected: %s", client.UserID)
		case client := <-m.unregister:
			m.mutex.Lock()
			m.removeLocked(client)
			m.mutex.Unlock()
		case d := <-m.deliveries:
			m.mutex.Lock()
			for _, id := range d.userIDs {
				for client := range m.clients[id] {
					select {
					case client.Send <- d.payload:
					default:
						log.Warn("Send buffer full for user %s, dropping client", id)
						m.removeLocked(client)
					}
				}
			}
			m.mutex.Unlock()
		case <-m.done:
			m.mutex.Lock()
			for _, set := range m.clients {
				for client := range set {
					m.removeLocked(client)
				}
			}
			m.mutex.Unlock()
			return
		}
	}
}

// removeLocked drops client and closes its send channel exactly once
func (m *Manager) removeLocked(client *Client) {
	set, ok := m.clients[client.UserID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(m.clients, client.UserID)
	}
	close(client.Send)
	log.Info("Client disconnected: %s", client.UserID)
}

// Stop ends Run and closes every connection. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// Notify queues n for every connection of userIDs. It never blocks: when the
// queue is full the notification is dropped.
func (m *Manager) Notify(userIDs []string, n models.Notification) {
	payload, err := json.Marshal(Event{Notification: n, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Error("Failed to encode notification: %v", err)
		return
	}
	select {
	case m.deliveries <- delivery{userIDs: userIDs, payload: payload}:
	default:
		log.Warn("Notification queue full, dropping %s for %s", n.Type, n.ConversationID)
	}
}

// Connected reports how many connections userID holds
func (m *Manager) Connected(userID string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.clients[userID])
}

// HandleWebSocket upgrades an authenticated request
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "unauthorized"})
		return
	}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		UserID: userID,
		Socket: conn,
		Send:   make(chan []byte, sendBufferSize),
	}

	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	}

	go client.readPump(m)
	go client.writePump()
}

// readPump only watches for close and pong frames. Clients have nothing to
// say on this channel; anything they send is discarded.
func (c *Client) readPump(m *Manager) {
	defer func() {
		select {
		case m.unregister <- c:
		case <-m.done:
		}
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxReadSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("Error reading from client %s: %v", c.UserID, err)
			}
			return
		}
	}
}

// writePump pumps notifications from the manager to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The manager closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
