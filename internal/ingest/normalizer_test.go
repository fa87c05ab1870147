package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"conversation-service/internal/conversation"
	"conversation-service/internal/mocks"
	"conversation-service/internal/models"
)

const testKey = "+15551230000:+15559990000"

func testEvent() RawEvent {
	return RawEvent{
		ProviderID: "M1",
		Tenant:     "acme",
		From:       "+15551230000",
		To:         "+15559990000",
		Content:    "hello",
	}
}

func TestNormalizeCreatesConversationAndMessage(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	n := NewNormalizer(convRepo, msgRepo)

	convRepo.On("CreateOrGetConversation", mock.Anything, "acme", testKey, "+15551230000", "+15559990000").
		Return(models.Conversation{Key: testKey, Tenant: "acme"}, true, nil).Once()
	msgRepo.On("CreateIfAbsent", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ID == "M1" && m.ConversationKey == testKey && m.Direction == models.DirectionInbound &&
			m.Type == models.TypeText && m.Status == models.StatusReceived
	})).Return(models.Message{ID: "M1", ConversationKey: testKey}, true, nil).Once()
	convRepo.On("ApplyMessage", mock.Anything, testKey, true, mock.Anything).
		Return(models.Conversation{Key: testKey, Tenant: "acme", MessageCount: 1, UnreadCount: 1}, nil).Once()

	res, err := n.Normalize(context.Background(), testEvent())
	require.NoError(t, err)
	assert.True(t, res.NewConversation)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 1, res.Conversation.MessageCount)
	assert.Equal(t, 1, res.Conversation.UnreadCount)

	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestNormalizeDuplicateLeavesCountersAlone(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	n := NewNormalizer(convRepo, msgRepo)

	convRepo.On("CreateOrGetConversation", mock.Anything, "acme", testKey, "+15551230000", "+15559990000").
		Return(models.Conversation{Key: testKey, Tenant: "acme", MessageCount: 1, UnreadCount: 1}, false, nil).Once()
	msgRepo.On("CreateIfAbsent", mock.Anything, mock.Anything).
		Return(models.Message{ID: "M1", ConversationKey: testKey}, false, nil).Once()

	res, err := n.Normalize(context.Background(), testEvent())
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, res.Conversation.MessageCount)

	// counters are never touched for replays
	convRepo.AssertNotCalled(t, "ApplyMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestNormalizeSwappedAddressesHitSameConversation(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	n := NewNormalizer(convRepo, msgRepo)

	// sender and recipient reversed relative to testEvent; same key expected
	convRepo.On("CreateOrGetConversation", mock.Anything, "acme", testKey, "+15551230000", "+15559990000").
		Return(models.Conversation{Key: testKey, Tenant: "acme"}, false, nil).Once()
	msgRepo.On("CreateIfAbsent", mock.Anything, mock.Anything).
		Return(models.Message{ID: "M2", ConversationKey: testKey}, true, nil).Once()
	convRepo.On("ApplyMessage", mock.Anything, testKey, true, mock.Anything).
		Return(models.Conversation{Key: testKey, MessageCount: 2, UnreadCount: 2}, nil).Once()

	event := testEvent()
	event.ProviderID = "M2"
	event.From, event.To = event.To, event.From

	_, err := n.Normalize(context.Background(), event)
	require.NoError(t, err)
	convRepo.AssertExpectations(t)
}

func TestNormalizeMissingFields(t *testing.T) {
	n := NewNormalizer(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))

	for _, event := range []RawEvent{
		{From: "+1555", To: "+1666"},
		{ProviderID: "M1", To: "+1666"},
		{ProviderID: "M1", From: "+1555"},
	} {
		_, err := n.Normalize(context.Background(), event)
		assert.ErrorIs(t, err, ErrMissingRequiredField)
	}
}

func TestNormalizeInvalidAddress(t *testing.T) {
	n := NewNormalizer(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))

	event := testEvent()
	event.To = "garbage"
	_, err := n.Normalize(context.Background(), event)
	assert.ErrorIs(t, err, conversation.ErrInvalidAddress)
}

func TestNormalizeOutboundStatus(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	n := NewNormalizer(convRepo, msgRepo)

	convRepo.On("CreateOrGetConversation", mock.Anything, "acme", testKey, "+15551230000", "+15559990000").
		Return(models.Conversation{Key: testKey}, false, nil).Once()
	msgRepo.On("CreateIfAbsent", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Direction == models.DirectionOutbound && m.Status == models.StatusSent
	})).Return(models.Message{ID: "M3"}, true, nil).Once()
	// outbound messages do not bump the unread counter
	convRepo.On("ApplyMessage", mock.Anything, testKey, false, mock.Anything).
		Return(models.Conversation{Key: testKey, MessageCount: 1}, nil).Once()

	event := testEvent()
	event.ProviderID = "M3"
	event.Direction = "outbound"

	_, err := n.Normalize(context.Background(), event)
	require.NoError(t, err)
	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestClassifyType(t *testing.T) {
	cases := []struct {
		media   []RawMedia
		want    models.MessageType
		warning bool
	}{
		{nil, models.TypeText, false},
		{[]RawMedia{{MimeType: "image/jpeg"}}, models.TypeImage, false},
		{[]RawMedia{{MimeType: "video/mp4"}}, models.TypeVideo, false},
		{[]RawMedia{{MimeType: "audio/ogg"}}, models.TypeAudio, false},
		{[]RawMedia{{MimeType: "application/pdf"}}, models.TypeDocument, false},
		{[]RawMedia{{MimeType: "x-weird/thing"}}, models.TypeDocument, true},
		{[]RawMedia{{MimeType: ""}}, models.TypeDocument, true},
		// first item wins for mixed attachments
		{[]RawMedia{{MimeType: "image/png"}, {MimeType: "video/mp4"}}, models.TypeImage, false},
	}
	for _, tc := range cases {
		got, warning := classifyType(tc.media)
		assert.Equal(t, tc.want, got)
		if tc.warning {
			assert.ErrorIs(t, warning, ErrUnsupportedMediaType)
		} else {
			assert.NoError(t, warning)
		}
	}
}

func TestNormalizeRetainsAllMediaRefs(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	n := NewNormalizer(convRepo, msgRepo)

	convRepo.On("CreateOrGetConversation", mock.Anything, "acme", testKey, "+15551230000", "+15559990000").
		Return(models.Conversation{Key: testKey}, false, nil).Once()
	msgRepo.On("CreateIfAbsent", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return len(m.MediaRefs) == 2 && m.Type == models.TypeImage
	})).Return(models.Message{ID: "M4"}, true, nil).Once()
	convRepo.On("ApplyMessage", mock.Anything, testKey, true, mock.Anything).
		Return(models.Conversation{Key: testKey}, nil).Once()

	event := testEvent()
	event.ProviderID = "M4"
	event.Media = []RawMedia{
		{URL: "https://cdn/a.png", MimeType: "image/png", Size: 10},
		{URL: "https://cdn/b.mp4", MimeType: "video/mp4", Size: 20},
	}

	_, err := n.Normalize(context.Background(), event)
	require.NoError(t, err)
	msgRepo.AssertExpectations(t)
}
