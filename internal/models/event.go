package models

// RoomEvent is broadcast through websocket rooms. EventID carries the
// originating message/conversation id and drives per-connection dedup.
type RoomEvent struct {
	Type         string        `json:"type"`
	EventID      string        `json:"event_id"`
	Message      *Message      `json:"message,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Subject      string        `json:"subject,omitempty"`
	Category     string        `json:"category,omitempty"`
}
