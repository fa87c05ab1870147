package observability

import "time"

// EventEnvelope is the wire shape of service events on the topic exchange.
// Stream groups related routing keys (conversation_events, ws_events);
// consumers filter on it together with the routing key.
type EventEnvelope struct {
	SchemaVersion   int       `json:"schema_version"`
	Stream          string    `json:"stream"`
	Name            string    `json:"name"`
	Tenant          string    `json:"tenant,omitempty"`
	ConversationKey string    `json:"conversation_key,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
	Payload         any       `json:"payload"`
}

// NewEnvelope stamps a versioned envelope. Tenant and ConversationKey are
// set by the caller when the event is scoped to one.
func NewEnvelope(stream, name string, payload any) EventEnvelope {
	return EventEnvelope{
		SchemaVersion: 1,
		Stream:        stream,
		Name:          name,
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	}
}

// BuildHeaders carries request correlation ids as AMQP headers. Empty values
// are omitted.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["x-trace-id"] = traceID
	}
	return headers
}
