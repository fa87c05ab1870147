package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Transport is the minimal surface the distributor needs from the wire
// layer. *websocket.Conn satisfies it; tests use in-memory fakes.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Conn is one authenticated live connection. Outbound delivery goes through
// a bounded queue drained by a single writer goroutine, so one slow consumer
// never stalls fan-out to the rest of a room.
type Conn struct {
	ID      string
	Subject string
	Tenant  string

	transport Transport
	send      chan []byte
	done      chan struct{}
	stopOnce  sync.Once
	stopped   atomic.Bool

	mu          sync.Mutex
	seen        map[string]time.Time
	limiters    map[string]*rate.Limiter
	connectedAt time.Time
}

// NewConn wraps a transport. queueSize bounds the outbound queue.
func NewConn(id, subject, tenant string, transport Transport, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Conn{
		ID:          id,
		Subject:     subject,
		Tenant:      tenant,
		transport:   transport,
		send:        make(chan []byte, queueSize),
		done:        make(chan struct{}),
		seen:        make(map[string]time.Time),
		limiters:    make(map[string]*rate.Limiter),
		connectedAt: time.Now(),
	}
}

// ConnectedAt reports when the connection was registered.
func (c *Conn) ConnectedAt() time.Time {
	return c.connectedAt
}

// enqueue attempts a non-blocking delivery. False means the queue is full
// and the connection should be torn down rather than stall the publisher.
func (c *Conn) enqueue(payload []byte) bool {
	if c.stopped.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// stop signals the writer goroutine to exit; the transport is closed there.
// Safe to call multiple times.
func (c *Conn) stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.done)
	})
}

// writePump drains the outbound queue and keeps the transport alive with
// pings. It owns the transport write side exclusively.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.transport.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			if err := c.transport.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			if err := c.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			_ = c.transport.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// markSeen records an event id and reports whether it was already delivered
// within the dedup window. Stale entries are pruned as a side effect.
func (c *Conn) markSeen(eventKey string, window time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-window)
	if at, ok := c.seen[eventKey]; ok && at.After(cutoff) {
		return true
	}
	if len(c.seen) > 1024 {
		for k, at := range c.seen {
			if !at.After(cutoff) {
				delete(c.seen, k)
			}
		}
	}
	c.seen[eventKey] = now
	return false
}

// allow consumes one rate-limit token for the event category.
func (c *Conn) allow(category string, limit rate.Limit, burst int) bool {
	c.mu.Lock()
	limiter, ok := c.limiters[category]
	if !ok {
		limiter = rate.NewLimiter(limit, burst)
		c.limiters[category] = limiter
	}
	c.mu.Unlock()
	return limiter.Allow()
}
