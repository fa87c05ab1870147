package realtime

import (
	"container/list"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"conversation-service/internal/models"
	"conversation-service/internal/observability"
)

// RateLimit bounds one client event category.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// Config tunes the hub. Zero values get sane defaults.
type Config struct {
	MaxConnections int
	QueueSize      int
	DedupWindow    time.Duration
	RateLimits     map[string]RateLimit
}

func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1024
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 30 * time.Second
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]RateLimit{
			"message-send": {PerSecond: 5, Burst: 10},
			"typing":       {PerSecond: 2, Burst: 4},
		}
	}
	return c
}

type connEntry struct {
	elem  *list.Element
	rooms map[string]struct{}
}

// Hub owns live connections and their room membership. It is an injectable
// registry: created at service start, shut down with Close. Room membership
// lives under the hub lock; per-connection delivery happens outside it
// through each connection's bounded queue.
type Hub struct {
	cfg Config

	mu     sync.RWMutex
	rooms  map[string]map[*Conn]struct{}
	byConn map[*Conn]*connEntry
	lru    *list.List // front = most recently active
	closed bool

	now func() time.Time
}

// NewHub creates an empty hub.
func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg:    cfg.withDefaults(),
		rooms:  make(map[string]map[*Conn]struct{}),
		byConn: make(map[*Conn]*connEntry),
		lru:    list.New(),
		now:    time.Now,
	}
}

// Register subscribes the connection to all its rooms atomically and starts
// its writer. When the connection cap is exceeded the least-recently-active
// connections are evicted to make room; new connections are never rejected
// for capacity.
func (h *Hub) Register(conn *Conn, rooms []string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		// the writer never starts for this connection, so close the
		// transport here rather than through writePump
		conn.stop()
		_ = conn.transport.Close()
		return
	}

	var evicted []evictedConn
	for len(h.byConn) >= h.cfg.MaxConnections {
		back := h.lru.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*Conn)
		evicted = append(evicted, evictedConn{conn: victim, rooms: h.removeLocked(victim)})
	}

	entry := &connEntry{elem: h.lru.PushFront(conn), rooms: make(map[string]struct{}, len(rooms))}
	h.byConn[conn] = entry
	for _, room := range rooms {
		h.joinLocked(conn, entry, room)
	}
	h.mu.Unlock()

	go conn.writePump()
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")

	for _, room := range rooms {
		h.broadcastPresence(room, conn, "presence_joined")
	}
	for _, e := range evicted {
		e.conn.stop()
		observability.IncEviction()
		observability.DecWSActive()
		log.Printf("evicted connection %s after %s under capacity pressure", e.conn.ID, time.Since(e.conn.ConnectedAt()).Round(time.Second))
		for room := range e.rooms {
			h.broadcastPresence(room, e.conn, "presence_left")
		}
	}
}

type evictedConn struct {
	conn  *Conn
	rooms map[string]struct{}
}

// Unregister removes the connection from every room before signalling its
// writer to close the transport. By the time this returns no publish can
// reach the connection.
func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	rooms := h.removeLocked(conn)
	h.mu.Unlock()
	if rooms == nil {
		return
	}

	conn.stop()
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	for room := range rooms {
		h.broadcastPresence(room, conn, "presence_left")
	}
}

// JoinRoom subscribes an already-registered connection to one more room.
func (h *Hub) JoinRoom(conn *Conn, room string) {
	h.mu.Lock()
	entry, ok := h.byConn[conn]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.joinLocked(conn, entry, room)
	h.mu.Unlock()

	h.broadcastPresence(room, conn, "presence_joined")
}

// LeaveRoom removes the connection from one room.
func (h *Hub) LeaveRoom(conn *Conn, room string) {
	h.mu.Lock()
	entry, ok := h.byConn[conn]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(entry.rooms, room)
	h.leaveRoomLocked(conn, room)
	h.mu.Unlock()

	h.broadcastPresence(room, conn, "presence_left")
}

// Publish delivers the event to every current member of the room. Delivery
// is best-effort and non-blocking per connection: an overflowing connection
// is dropped, never the event. Duplicate event ids within the dedup window
// are suppressed per connection.
func (h *Hub) Publish(room string, event models.RoomEvent) {
	h.publish(room, event, nil)
}

// PublishExcept delivers the event to every room member except one,
// typically the originator of a relayed client event.
func (h *Hub) PublishExcept(room string, event models.RoomEvent, except *Conn) {
	h.publish(room, event, except)
}

// Touch records activity, protecting the connection from LRU eviction.
func (h *Hub) Touch(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.byConn[conn]; ok {
		h.lru.MoveToFront(entry.elem)
	}
}

// InRoom reports current membership.
func (h *Hub) InRoom(conn *Conn, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.byConn[conn]
	if !ok {
		return false
	}
	_, member := entry.rooms[room]
	return member
}

// AllowClientEvent consumes a rate-limit token for the category. On denial
// the offending connection alone receives a rate-limit notice and the event
// must be dropped by the caller.
func (h *Hub) AllowClientEvent(conn *Conn, category string) bool {
	limit, ok := h.cfg.RateLimits[category]
	if !ok {
		limit = RateLimit{PerSecond: 10, Burst: 20}
	}
	if conn.allow(category, rate.Limit(limit.PerSecond), limit.Burst) {
		return true
	}

	observability.IncRateLimited(category)
	notice := models.RoomEvent{
		Type:     "rate_limited",
		EventID:  uuid.NewString(),
		Category: category,
	}
	if payload, err := json.Marshal(notice); err == nil {
		if !conn.enqueue(payload) {
			h.Unregister(conn)
		}
	}
	return false
}

// ConnectionCount reports the number of tracked connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byConn)
}

// RoomSize reports the number of members in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close tears down every connection and stops accepting registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.byConn))
	for conn := range h.byConn {
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		h.removeLocked(conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.stop()
		observability.DecWSActive()
	}
}

func (h *Hub) joinLocked(conn *Conn, entry *connEntry, room string) {
	entry.rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[conn] = struct{}{}
}

func (h *Hub) leaveRoomLocked(conn *Conn, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// removeLocked strips every hub reference to the connection and returns the
// rooms it was subscribed to. Nil means it was not registered.
func (h *Hub) removeLocked(conn *Conn) map[string]struct{} {
	entry, ok := h.byConn[conn]
	if !ok {
		return nil
	}
	for room := range entry.rooms {
		h.leaveRoomLocked(conn, room)
	}
	h.lru.Remove(entry.elem)
	delete(h.byConn, conn)
	return entry.rooms
}

func (h *Hub) broadcastPresence(room string, about *Conn, eventType string) {
	h.publish(room, models.RoomEvent{
		Type:    eventType,
		EventID: uuid.NewString(),
		Subject: about.Subject,
	}, about)
}

// publish snapshots the membership under the read lock, then enqueues with
// no lock held so a blocked transport cannot stall the room.
func (h *Hub) publish(room string, event models.RoomEvent, except *Conn) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal room event: %v", err)
		return
	}

	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for conn := range h.rooms[room] {
		if conn != except {
			members = append(members, conn)
		}
	}
	h.mu.RUnlock()

	dedupKey := event.Type + ":" + event.EventID
	now := h.now()
	for _, conn := range members {
		if event.EventID != "" && conn.markSeen(dedupKey, h.cfg.DedupWindow, now) {
			observability.IncDedupSuppressed()
			continue
		}
		if !conn.enqueue(payload) {
			log.Printf("connection %s outbound queue overflow, dropping connection", conn.ID)
			observability.IncWSEvent("ws_overflow")
			h.Unregister(conn)
		}
	}
	observability.IncWSEvent(event.Type)
}
