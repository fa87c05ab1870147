package models

import "time"

// ConversationStatus is the free-form lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationOpen    ConversationStatus = "open"
	ConversationClosed  ConversationStatus = "closed"
	ConversationPending ConversationStatus = "pending"
)

// Conversation represents a two-party conversation keyed by its canonical
// order-independent key.
type Conversation struct {
	Key           string             `db:"key" json:"key"`
	Tenant        string             `db:"tenant" json:"tenant"`
	ParticipantA  string             `db:"participant_a" json:"participant_a"`
	ParticipantB  string             `db:"participant_b" json:"participant_b"`
	Assignee      *string            `db:"assignee" json:"assignee,omitempty"`
	Status        ConversationStatus `db:"status" json:"status"`
	MessageCount  int                `db:"message_count" json:"message_count"`
	UnreadCount   int                `db:"unread_count" json:"unread_count"`
	LastMessageAt *time.Time         `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether the normalized address belongs to the pair.
func (c Conversation) HasParticipant(address string) bool {
	return c.ParticipantA == address || c.ParticipantB == address
}

// PeerOf returns the other participant for a given address.
func (c Conversation) PeerOf(address string) string {
	if c.ParticipantA == address {
		return c.ParticipantB
	}
	return c.ParticipantA
}
