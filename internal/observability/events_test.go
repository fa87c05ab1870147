package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"conversation-service/internal/mocks"
)

func TestNewEnvelope(t *testing.T) {
	envelope := NewEnvelope("conversation_events", "message_created", map[string]any{"id": "wamid.1"})

	assert.Equal(t, 1, envelope.SchemaVersion)
	assert.Equal(t, "conversation_events", envelope.Stream)
	assert.Equal(t, "message_created", envelope.Name)
	assert.False(t, envelope.OccurredAt.IsZero())
	assert.Empty(t, envelope.Tenant)
}

func TestBuildHeadersOmitsEmpty(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))

	headers := BuildHeaders("req-1", "trace-1")
	assert.Equal(t, map[string]string{"x-request-id": "req-1", "x-trace-id": "trace-1"}, headers)

	assert.Equal(t, map[string]string{"x-request-id": "req-1"}, BuildHeaders("req-1", ""))
}

func TestPublishEventForwardsToPublisher(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	SetPublisher(publisher)
	defer SetPublisher(nil)

	envelope := NewEnvelope("ws_events", "ws_connect", nil)
	envelope.Tenant = "acme"
	headers := BuildHeaders("req-1", "trace-1")

	publisher.On("PublishWithHeaders", mock.Anything, "ws_events.connections", mock.MatchedBy(func(e EventEnvelope) bool {
		return e.Stream == "ws_events" && e.Name == "ws_connect" && e.Tenant == "acme"
	}), headers).Return(nil).Once()

	require.NoError(t, PublishEvent(context.Background(), "ws_events.connections", envelope, headers))
	publisher.AssertExpectations(t)
}

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	require.NoError(t, PublishEvent(context.Background(), "ws_events.connections", NewEnvelope("ws_events", "ws_connect", nil), nil))
}

func TestClientInfoFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("X-Request-Id", "req-1")
	req.Header.Set("X-Device-Id", "device-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	info := ClientInfoFromRequest(req)
	assert.Equal(t, "req-1", info.RequestID)
	assert.Equal(t, "device-1", info.DeviceID)
	assert.Equal(t, "203.0.113.9", info.IP)
}

func TestClientIPFallsBackToPeer(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "192.0.2.7:51234"

	assert.Equal(t, "192.0.2.7", ClientInfoFromRequest(req).IP)
}
