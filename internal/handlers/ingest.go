package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"conversation-service/internal/conversation"
	"conversation-service/internal/ingest"
	"conversation-service/internal/models"
	"conversation-service/internal/observability"
	"conversation-service/internal/realtime"
	"conversation-service/internal/repositories"
)

// IngestHandler receives gateway webhook callbacks: inbound message events
// and delivery-status updates.
type IngestHandler struct {
	normalizer *ingest.Normalizer
	messages   repositories.MessageRepository
	hub        *realtime.Hub
}

// NewIngestHandler builds an IngestHandler.
func NewIngestHandler(normalizer *ingest.Normalizer, messages repositories.MessageRepository, hub *realtime.Hub) *IngestHandler {
	return &IngestHandler{normalizer: normalizer, messages: messages, hub: hub}
}

// HandleMessageEvent normalizes one gateway event and fans the result out.
// Validation failures reject this event only; the gateway keeps delivering
// subsequent ones. Replays of an already-seen provider id are acknowledged
// without re-emitting downstream.
func (h *IngestHandler) HandleMessageEvent(c *gin.Context) {
	ctx, span := otel.Tracer("conversation-service/ingest").Start(c.Request.Context(), "ingest.normalize")
	defer span.End()

	var raw ingest.RawEvent
	if err := c.ShouldBindJSON(&raw); err != nil {
		observability.IncIngestEvent("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.normalizer.Normalize(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrMissingRequiredField), errors.Is(err, conversation.ErrInvalidAddress):
			observability.IncIngestEvent("invalid")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			observability.IncIngestEvent("error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		}
		return
	}
	if res.MediaWarning != nil {
		log.Printf("ingest media warning for message %s: %v", res.Message.ID, res.MediaWarning)
	}

	if res.Duplicate {
		observability.IncIngestEvent("duplicate")
		c.JSON(http.StatusOK, gin.H{"duplicate": true, "message": res.Message})
		return
	}
	observability.IncIngestEvent("created")

	event := models.RoomEvent{
		Type:         "message",
		EventID:      res.Message.ID,
		Message:      &res.Message,
		Conversation: &res.Conversation,
	}
	h.hub.Publish(res.Message.ConversationKey, event)
	h.hub.Publish("tenant:"+res.Conversation.Tenant, event)

	if res.NewConversation {
		h.hub.Publish("tenant:"+res.Conversation.Tenant, models.RoomEvent{
			Type:         "conversation_created",
			EventID:      "conversation:" + res.Conversation.Key,
			Conversation: &res.Conversation,
		})
	}

	envelope := observability.NewEnvelope("conversation_events", "message_created", res.Message)
	envelope.Tenant = res.Conversation.Tenant
	envelope.ConversationKey = res.Conversation.Key
	_ = observability.PublishEvent(ctx, "conversations.message_created", envelope, observability.BuildHeaders(requestIDFromContext(c), span.SpanContext().TraceID().String()))

	c.JSON(http.StatusCreated, res.Message)
}

// HandleStatusEvent applies a delivery-status callback to a stored message.
func (h *IngestHandler) HandleStatusEvent(c *gin.Context) {
	var req struct {
		ProviderID string `json:"provider_id" binding:"required"`
		Status     string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.MessageStatus(req.Status)
	switch status {
	case models.StatusSent, models.StatusDelivered, models.StatusRead, models.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), req.ProviderID)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": "message not found"})
		return
	}

	if err := h.messages.UpdateStatus(c.Request.Context(), req.ProviderID, status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		return
	}
	msg.Status = status

	h.hub.Publish(msg.ConversationKey, models.RoomEvent{
		Type:    "message_status",
		EventID: msg.ID + ":" + string(status),
		Message: &msg,
	})

	c.Status(http.StatusNoContent)
}
