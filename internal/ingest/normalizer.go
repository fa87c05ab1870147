package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"conversation-service/internal/conversation"
	"conversation-service/internal/models"
	"conversation-service/internal/repositories"
)

var (
	// ErrMissingRequiredField aborts normalization of a single event; the
	// ingestion loop continues with subsequent events.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrUnsupportedMediaType is recorded on the result, not returned: the
	// message is still created with the document fallback type.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// RawMedia is one media descriptor attached to a raw gateway event.
type RawMedia struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// RawEvent is the tagged-union boundary type for upstream webhook payloads.
// Unknown timestamp shapes are coerced best-effort; unknown media types
// default explicitly rather than being probed ad hoc.
type RawEvent struct {
	ProviderID string          `json:"provider_id"`
	Tenant     string          `json:"tenant"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Direction  string          `json:"direction"`
	Content    string          `json:"content"`
	Media      []RawMedia      `json:"media"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// Result reports what normalization did.
type Result struct {
	Message         models.Message
	Conversation    models.Conversation
	NewConversation bool
	Duplicate       bool
	MediaWarning    error
}

// Normalizer turns raw gateway events into canonical message records. It is
// a pure transformation plus a duplicate check; persistence of conversation
// counters happens through the injected repositories.
type Normalizer struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(conversations repositories.ConversationRepository, messages repositories.MessageRepository) *Normalizer {
	return &Normalizer{conversations: conversations, messages: messages}
}

// Normalize canonicalizes one event. Replays of an already-seen provider id
// return the stored record with Duplicate=true and leave all counters
// untouched, which makes at-least-once delivery from the gateway safe.
func (n *Normalizer) Normalize(ctx context.Context, raw RawEvent) (Result, error) {
	if raw.ProviderID == "" || raw.From == "" || raw.To == "" {
		return Result{}, ErrMissingRequiredField
	}

	sender := conversation.NormalizeAddress(raw.From)
	recipient := conversation.NormalizeAddress(raw.To)
	key, err := conversation.ResolveKey(sender, recipient)
	if err != nil {
		return Result{}, err
	}
	participantA, participantB := sender, recipient
	if participantA > participantB {
		participantA, participantB = participantB, participantA
	}

	direction := models.DirectionInbound
	if raw.Direction == string(models.DirectionOutbound) {
		direction = models.DirectionOutbound
	}
	status := models.StatusReceived
	if direction == models.DirectionOutbound {
		status = models.StatusSent
	}

	msgType, mediaWarning := classifyType(raw.Media)

	conv, created, err := n.conversations.CreateOrGetConversation(ctx, raw.Tenant, key, participantA, participantB)
	if err != nil {
		return Result{}, fmt.Errorf("resolve conversation: %w", err)
	}

	msg := models.Message{
		ID:              raw.ProviderID,
		ConversationKey: key,
		Sender:          sender,
		Recipient:       recipient,
		Direction:       direction,
		Type:            msgType,
		MediaRefs:       mediaRefs(raw.Media),
		Status:          status,
		ProviderTime:    ParseProviderTime(raw.Timestamp),
	}
	if raw.Content != "" {
		content := raw.Content
		msg.Content = &content
	}

	stored, inserted, err := n.messages.CreateIfAbsent(ctx, msg)
	if err != nil {
		return Result{}, fmt.Errorf("persist message: %w", err)
	}
	if !inserted {
		return Result{
			Message:         stored,
			Conversation:    conv,
			NewConversation: created,
			Duplicate:       true,
			MediaWarning:    mediaWarning,
		}, nil
	}

	conv, err = n.conversations.ApplyMessage(ctx, key, direction == models.DirectionInbound, stored.ProviderTime)
	if err != nil {
		return Result{}, fmt.Errorf("apply message counters: %w", err)
	}

	return Result{
		Message:         stored,
		Conversation:    conv,
		NewConversation: created,
		MediaWarning:    mediaWarning,
	}, nil
}

// classifyType derives the message type from the first media descriptor.
// Messages without media are text. Recognized document MIME families fall
// back to document silently; anything else falls back too but carries the
// non-fatal unsupported-media warning.
func classifyType(media []RawMedia) (models.MessageType, error) {
	if len(media) == 0 {
		return models.TypeText, nil
	}
	mime := strings.ToLower(strings.TrimSpace(media[0].MimeType))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.TypeImage, nil
	case strings.HasPrefix(mime, "video/"):
		return models.TypeVideo, nil
	case strings.HasPrefix(mime, "audio/"):
		return models.TypeAudio, nil
	case strings.HasPrefix(mime, "application/"), strings.HasPrefix(mime, "text/"):
		return models.TypeDocument, nil
	default:
		return models.TypeDocument, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, media[0].MimeType)
	}
}

func mediaRefs(media []RawMedia) models.MediaRefs {
	if len(media) == 0 {
		return nil
	}
	refs := make(models.MediaRefs, 0, len(media))
	for _, m := range media {
		refs = append(refs, models.MediaRef{URL: m.URL, MimeType: m.MimeType, Size: m.Size})
	}
	return refs
}
