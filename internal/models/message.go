package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MessageDirection distinguishes inbound gateway events from agent-sent ones.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageType is derived from the message payload.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
)

// MessageStatus tracks delivery state reported by the gateway.
type MessageStatus string

const (
	StatusReceived  MessageStatus = "received"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// MediaRef describes one attached media item.
type MediaRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// MediaRefs is stored as a JSONB column.
type MediaRefs []MediaRef

func (m MediaRefs) Value() (driver.Value, error) {
	if len(m) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *MediaRefs) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("media refs: unsupported scan source")
	}
	return json.Unmarshal(b, m)
}

// Message is a canonical conversation message. ID is the provider-assigned
// id and serves as the global idempotency key.
type Message struct {
	ID              string           `db:"id" json:"id"`
	ConversationKey string           `db:"conversation_key" json:"conversation_key"`
	Sender          string           `db:"sender" json:"sender"`
	Recipient       string           `db:"recipient" json:"recipient"`
	Direction       MessageDirection `db:"direction" json:"direction"`
	Type            MessageType      `db:"type" json:"type"`
	Content         *string          `db:"content" json:"content,omitempty"`
	MediaRefs       MediaRefs        `db:"media_refs" json:"media_refs,omitempty"`
	Status          MessageStatus    `db:"status" json:"status"`
	ProviderTime    *time.Time       `db:"provider_time" json:"provider_time,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}
