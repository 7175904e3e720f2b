// internal/chat/client.go

package chat

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Client is one live websocket connection. It satisfies presence.Connection
// so the registry can track it without knowing the transport.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id          string
	userID      int64
	username    string
	displayName string

	// Rooms this connection has joined, by kind
	privateRoom string
	groupRoom   string

	// Guards send-after-close: the registry can hand out this client after
	// its disconnect path has already closed the send channel.
	closeMu sync.Mutex
	closed  bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, username, displayName string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          uuid.NewString(),
		userID:      userID,
		username:    username,
		displayName: displayName,
	}
}

func (c *Client) ID() string    { return c.id }
func (c *Client) UserID() int64 { return c.userID }

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Send queues an event for delivery. Events for a slow client are dropped
// rather than blocking the hub; events for a closed client are dropped
// silently.
func (c *Client) Send(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event %s: %v", event.Event, err)
		return
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Send buffer full for user %d, dropping %s", c.userID, event.Event)
	}
}

// close shuts the send channel exactly once. The disconnect path can be
// entered from both pumps.
func (c *Client) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
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
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for user %d: %v", c.userID, err)
			}
			break
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			c.Send(NewEvent(EvError, ErrorPayload{Message: "Invalid event format"}))
			continue
		}

		// Events are dispatched synchronously so a connection's own events
		// keep their arrival order.
		c.hub.handleEvent(c, event)
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

			// Add queued messages to the current websocket frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
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
