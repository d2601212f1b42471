package registry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/yamadatarousan/slack-clone/src/types"
)

const sendBuffer = 256

// Connection is one live client connection. The transport is owned by the
// session that created it; the registry and the liveness monitor only hold
// references. All outbound writes go through the send queue so that delivery
// to a recipient stays FIFO and the transport sees a single writer.
type Connection struct {
	UserID      int64
	Username    string
	DisplayName *string

	conn types.Conn
	send chan []byte

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
	done     chan struct{}
}

// NewConnection wraps an accepted transport for a user.
func NewConnection(userID int64, username string, displayName *string, conn types.Conn) *Connection {
	return &Connection{
		UserID:      userID,
		Username:    username,
		DisplayName: displayName,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		lastSeen:    time.Now(),
		done:        make(chan struct{}),
	}
}

// SenderName is the name shown next to this user's messages.
func (c *Connection) SenderName() string {
	if c.DisplayName != nil && *c.DisplayName != "" {
		return *c.DisplayName
	}
	return c.Username
}

// Enqueue queues an encoded event for delivery. It never blocks; a full
// buffer drops the payload and reports failure so a slow reader cannot
// stall broadcast to everyone else.
func (c *Connection) Enqueue(payload []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// WritePump drains the send queue onto the transport. Run in its own
// goroutine; it exits when the connection is closed or a write fails.
func (c *Connection) WritePump(writeTimeout time.Duration) {
	defer c.conn.Close()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(json.RawMessage(payload)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Ping sends a liveness probe on the transport.
func (c *Connection) Ping(deadline time.Time) error {
	return c.conn.Ping(deadline)
}

// Touch records a successful liveness check.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the time of the last successful liveness check.
func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Close stops the write pump and closes the transport. Safe to call more
// than once and from any goroutine.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.conn.Close()
}

// Done is closed when the connection has been shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}
