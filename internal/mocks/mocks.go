package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"conversation-service/internal/gateway"
	"conversation-service/internal/models"
	"conversation-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGetConversation(ctx context.Context, tenant, key, participantA, participantB string) (models.Conversation, bool, error) {
	args := m.Called(ctx, tenant, key, participantA, participantB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, key string) (models.Conversation, error) {
	args := m.Called(ctx, key)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversations(ctx context.Context, tenant string) ([]models.Conversation, error) {
	args := m.Called(ctx, tenant)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) ListKeysForAssignee(ctx context.Context, subject string) ([]string, error) {
	args := m.Called(ctx, subject)
	var keys []string
	if val := args.Get(0); val != nil {
		keys = val.([]string)
	}
	return keys, args.Error(1)
}

func (m *ConversationRepositoryMock) ApplyMessage(ctx context.Context, key string, inbound bool, at *time.Time) (models.Conversation, error) {
	args := m.Called(ctx, key, inbound, at)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) SetAssignee(ctx context.Context, key string, assignee *string) error {
	args := m.Called(ctx, key, assignee)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) SetStatus(ctx context.Context, key string, status models.ConversationStatus) error {
	args := m.Called(ctx, key, status)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateIfAbsent(ctx context.Context, msg models.Message) (models.Message, bool, error) {
	args := m.Called(ctx, msg)
	var stored models.Message
	if val := args.Get(0); val != nil {
		stored = val.(models.Message)
	}
	return stored, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, id string) (models.Message, error) {
	args := m.Called(ctx, id)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListByConversation(ctx context.Context, conversationKey string) ([]models.Message, error) {
	args := m.Called(ctx, conversationKey)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

type CredentialRepositoryMock struct {
	mock.Mock
}

func (m *CredentialRepositoryMock) Insert(ctx context.Context, cred models.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *CredentialRepositoryMock) GetByTokenHash(ctx context.Context, tokenHash string) (models.Credential, error) {
	args := m.Called(ctx, tokenHash)
	var cred models.Credential
	if val := args.Get(0); val != nil {
		cred = val.(models.Credential)
	}
	return cred, args.Error(1)
}

func (m *CredentialRepositoryMock) GetByID(ctx context.Context, id string) (models.Credential, error) {
	args := m.Called(ctx, id)
	var cred models.Credential
	if val := args.Get(0); val != nil {
		cred = val.(models.Credential)
	}
	return cred, args.Error(1)
}

func (m *CredentialRepositoryMock) MarkRotated(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *CredentialRepositoryMock) ConsumeUse(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *CredentialRepositoryMock) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *CredentialRepositoryMock) RevokeFamily(ctx context.Context, familyID string) error {
	args := m.Called(ctx, familyID)
	return args.Error(0)
}

func (m *CredentialRepositoryMock) RevokeAllForSubject(ctx context.Context, subject string) error {
	args := m.Called(ctx, subject)
	return args.Error(0)
}

type GatewayClientMock struct {
	mock.Mock
}

func (m *GatewayClientMock) Send(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.CredentialRepository = (*CredentialRepositoryMock)(nil)
var _ gateway.Client = (*GatewayClientMock)(nil)
