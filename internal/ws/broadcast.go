package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/skillsprint/backend/internal/progression"
)

// Client is one subscribed connection, owned by the Broadcaster.
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func newClient(conn *websocket.Conn, userID string) *Client {
	c := &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) close() {
	close(c.send)
}

// Broadcaster pushes progression messages to connected clients. Each
// client subscribes to a single learner; messages fan out only to that
// learner's connections.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*Client]bool)}
}

// AddClient registers a connection subscribed to userID.
func (b *Broadcaster) AddClient(conn *websocket.Conn, userID string) *Client {
	c := newClient(conn, userID)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	return c
}

// RemoveClient unregisters a connection and closes its send queue.
func (b *Broadcaster) RemoveClient(c *Client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// BroadcastUnlocks pushes newly triggered unlocks to the learner's clients.
func (b *Broadcaster) BroadcastUnlocks(userID string, unlocks []progression.Unlock, xp progression.XPSummary) {
	b.broadcast(userID, Message{
		Type:    MsgUnlocks,
		Payload: UnlocksPayload{Unlocks: unlocks, XP: xp},
	})
}

// BroadcastProgress pushes a full progress snapshot to the learner's clients.
func (b *Broadcaster) BroadcastProgress(userID string, view progression.ProgressView) {
	b.broadcast(userID, Message{
		Type:    MsgProgress,
		Payload: ProgressPayload{Progress: view},
	})
}

func (b *Broadcaster) broadcast(userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		if c.userID == userID {
			clients = append(clients, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
