package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-service/internal/models"
)

// fakeTransport records delivered frames in memory.
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (t *fakeTransport) WriteMessage(messageType int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if messageType == websocket.TextMessage {
		t.frames = append(t.frames, append([]byte(nil), data...))
	}
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// eventsOfType decodes recorded frames and filters by event type.
func (t *fakeTransport) eventsOfType(eventType string) []models.RoomEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.RoomEvent
	for _, frame := range t.frames {
		var event models.RoomEvent
		if err := json.Unmarshal(frame, &event); err == nil && event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// blockingTransport parks every write until unblocked, to simulate a slow
// consumer that backs up the outbound queue.
type blockingTransport struct {
	fakeTransport
	unblock chan struct{}
}

func (t *blockingTransport) WriteMessage(messageType int, data []byte) error {
	<-t.unblock
	return t.fakeTransport.WriteMessage(messageType, data)
}

func register(t *testing.T, hub *Hub, id string, rooms ...string) (*Conn, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	conn := NewConn(id, "subject-"+id, "acme", transport, 0)
	hub.Register(conn, rooms)
	return conn, transport
}

func TestPublishDeliversToRoomMembers(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	_, first := register(t, hub, "c1", "room-a")
	_, second := register(t, hub, "c2", "room-a")
	_, outside := register(t, hub, "c3", "room-b")

	hub.Publish("room-a", models.RoomEvent{Type: "message_created", EventID: "m-1"})

	require.Eventually(t, func() bool {
		return len(first.eventsOfType("message_created")) == 1 &&
			len(second.eventsOfType("message_created")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, outside.eventsOfType("message_created"))
}

func TestPublishExceptSkipsOriginator(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	origin, originTransport := register(t, hub, "c1", "room-a")
	_, peer := register(t, hub, "c2", "room-a")

	hub.PublishExcept("room-a", models.RoomEvent{Type: "typing", EventID: "t-1", Subject: origin.Subject}, origin)

	require.Eventually(t, func() bool {
		return len(peer.eventsOfType("typing")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, originTransport.eventsOfType("typing"))
}

func TestPublishSuppressesDuplicatesWithinWindow(t *testing.T) {
	hub := NewHub(Config{DedupWindow: time.Minute})
	defer hub.Close()

	_, transport := register(t, hub, "c1", "room-a")

	event := models.RoomEvent{Type: "message_created", EventID: "m-1"}
	hub.Publish("room-a", event)
	hub.Publish("room-a", event)
	hub.Publish("room-a", models.RoomEvent{Type: "message_created", EventID: "m-2"})

	require.Eventually(t, func() bool {
		return len(transport.eventsOfType("message_created")) == 2
	}, time.Second, 5*time.Millisecond)

	// give the duplicate a chance to slip through before asserting it did not
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, transport.eventsOfType("message_created"), 2)
}

func TestPublishWithoutEventIDNeverSuppressed(t *testing.T) {
	hub := NewHub(Config{DedupWindow: time.Minute})
	defer hub.Close()

	_, transport := register(t, hub, "c1", "room-a")

	hub.Publish("room-a", models.RoomEvent{Type: "notice"})
	hub.Publish("room-a", models.RoomEvent{Type: "notice"})

	require.Eventually(t, func() bool {
		return len(transport.eventsOfType("notice")) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestOverflowDropsConnectionNotEvent(t *testing.T) {
	hub := NewHub(Config{QueueSize: 1})
	defer hub.Close()

	_, healthy := register(t, hub, "fast", "room-a")

	blocked := &blockingTransport{unblock: make(chan struct{})}
	defer close(blocked.unblock)
	slow := NewConn("slow", "subject-slow", "acme", blocked, 1)
	hub.Register(slow, []string{"room-a"})

	// wait until the writer is parked on the first frame, then saturate
	hub.Publish("room-a", models.RoomEvent{Type: "message_created", EventID: "m-1"})
	require.Eventually(t, func() bool {
		return len(slow.send) == 0
	}, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		hub.Publish("room-a", models.RoomEvent{Type: "message_created", EventID: fmt.Sprintf("m-%d", i+2)})
	}

	assert.False(t, hub.InRoom(slow, "room-a"), "overflowing connection must be dropped")
	assert.Equal(t, 1, hub.ConnectionCount())

	// the healthy member keeps receiving
	require.Eventually(t, func() bool {
		return len(healthy.eventsOfType("message_created")) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestCapacityEvictsLeastRecentlyActive(t *testing.T) {
	hub := NewHub(Config{MaxConnections: 2})
	defer hub.Close()

	oldest, _ := register(t, hub, "c1", "room-a")
	middle, _ := register(t, hub, "c2", "room-a")
	newest, _ := register(t, hub, "c3", "room-a")

	assert.Equal(t, 2, hub.ConnectionCount())
	assert.False(t, hub.InRoom(oldest, "room-a"), "least recently active connection must be evicted")
	assert.True(t, hub.InRoom(middle, "room-a"))
	assert.True(t, hub.InRoom(newest, "room-a"))
	assert.Equal(t, 2, hub.RoomSize("room-a"))
}

func TestTouchProtectsFromEviction(t *testing.T) {
	hub := NewHub(Config{MaxConnections: 2})
	defer hub.Close()

	oldest, _ := register(t, hub, "c1", "room-a")
	middle, _ := register(t, hub, "c2", "room-a")

	hub.Touch(oldest)
	newest, _ := register(t, hub, "c3", "room-a")

	assert.True(t, hub.InRoom(oldest, "room-a"))
	assert.False(t, hub.InRoom(middle, "room-a"))
	assert.True(t, hub.InRoom(newest, "room-a"))
}

func TestUnregisterReleasesEveryReference(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	conn, _ := register(t, hub, "c1", "room-a", "tenant:acme")
	_, peer := register(t, hub, "c2", "room-a")

	hub.Unregister(conn)

	assert.Equal(t, 1, hub.ConnectionCount())
	assert.False(t, hub.InRoom(conn, "room-a"))
	assert.False(t, hub.InRoom(conn, "tenant:acme"))
	assert.Equal(t, 1, hub.RoomSize("room-a"))
	assert.Equal(t, 0, hub.RoomSize("tenant:acme"))

	// peers learn about the departure
	require.Eventually(t, func() bool {
		return len(peer.eventsOfType("presence_left")) == 1
	}, time.Second, 5*time.Millisecond)

	// double unregister is a no-op
	hub.Unregister(conn)
	assert.Equal(t, 1, hub.ConnectionCount())
}

func TestPresenceGoesToPeersOnly(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	_, first := register(t, hub, "c1", "room-a")
	joiner, joinerTransport := register(t, hub, "c2", "room-a")

	require.Eventually(t, func() bool {
		events := first.eventsOfType("presence_joined")
		return len(events) == 1 && events[0].Subject == joiner.Subject
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, joinerTransport.eventsOfType("presence_joined"))
}

func TestJoinAndLeaveRoom(t *testing.T) {
	hub := NewHub(Config{})
	defer hub.Close()

	conn, transport := register(t, hub, "c1", "room-a")

	hub.JoinRoom(conn, "room-b")
	assert.True(t, hub.InRoom(conn, "room-b"))

	hub.Publish("room-b", models.RoomEvent{Type: "message_created", EventID: "m-1"})
	require.Eventually(t, func() bool {
		return len(transport.eventsOfType("message_created")) == 1
	}, time.Second, 5*time.Millisecond)

	hub.LeaveRoom(conn, "room-b")
	assert.False(t, hub.InRoom(conn, "room-b"))
	assert.Equal(t, 0, hub.RoomSize("room-b"))
}

func TestAllowClientEventRateLimitNoticeOnce(t *testing.T) {
	hub := NewHub(Config{
		RateLimits: map[string]RateLimit{"typing": {PerSecond: 1, Burst: 2}},
	})
	defer hub.Close()

	offender, offenderTransport := register(t, hub, "c1", "room-a")
	_, peer := register(t, hub, "c2", "room-a")

	allowed := 0
	denied := 0
	for i := 0; i < 3; i++ {
		if hub.AllowClientEvent(offender, "typing") {
			allowed++
		} else {
			denied++
		}
	}
	assert.Equal(t, 2, allowed)
	assert.Equal(t, 1, denied)

	require.Eventually(t, func() bool {
		return len(offenderTransport.eventsOfType("rate_limited")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, peer.eventsOfType("rate_limited"))
}

func TestCloseStopsAcceptingRegistrations(t *testing.T) {
	hub := NewHub(Config{})
	conn, transport := register(t, hub, "c1", "room-a")

	hub.Close()
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.InRoom(conn, "room-a"))
	require.Eventually(t, transport.isClosed, time.Second, 5*time.Millisecond)

	// a registration after close never starts a writer, so its transport
	// must be closed synchronously
	late, lateTransport := register(t, hub, "c2", "room-a")
	assert.Equal(t, 0, hub.ConnectionCount())
	assert.False(t, hub.InRoom(late, "room-a"))
	assert.True(t, lateTransport.isClosed())
}
