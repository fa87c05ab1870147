package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"conversation-service/internal/conversation"
	"conversation-service/internal/gateway"
	"conversation-service/internal/ingest"
	"conversation-service/internal/models"
	"conversation-service/internal/realtime"
	"conversation-service/internal/repositories"
)

// ConversationHandler manages the agent-facing conversation endpoints.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	normalizer    *ingest.Normalizer
	gateway       gateway.Client
	hub           *realtime.Hub
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, normalizer *ingest.Normalizer, gw gateway.Client, hub *realtime.Hub) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		normalizer:    normalizer,
		gateway:       gw,
		hub:           hub,
	}
}

// ListConversations returns the tenant's conversations.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	convs, err := h.conversations.ListConversations(c.Request.Context(), tenantFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetConversationMessages returns a conversation's messages in order.
func (h *ConversationHandler) GetConversationMessages(c *gin.Context) {
	conv, ok := h.tenantConversation(c)
	if !ok {
		return
	}

	msgs, err := h.messages.ListByConversation(c.Request.Context(), conv.Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage persists an outbound message through the normalization
// pipeline, transmits it via the gateway, and fans it out.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	conv, ok := h.tenantConversation(c)
	if !ok {
		return
	}

	var req struct {
		Sender   string            `json:"sender" binding:"required"`
		Content  string            `json:"content"`
		Media    []ingest.RawMedia `json:"media"`
		ClientID string            `json:"client_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" && len(req.Media) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message needs content or media"})
		return
	}

	sender := conversation.NormalizeAddress(req.Sender)
	if !conv.HasParticipant(sender) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender is not a conversation participant"})
		return
	}

	providerID := req.ClientID
	if providerID == "" {
		providerID = uuid.NewString()
	}

	res, err := h.normalizer.Normalize(c.Request.Context(), ingest.RawEvent{
		ProviderID: providerID,
		Tenant:     conv.Tenant,
		From:       sender,
		To:         conv.PeerOf(sender),
		Direction:  string(models.DirectionOutbound),
		Content:    req.Content,
		Media:      req.Media,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	if res.Duplicate {
		c.JSON(http.StatusOK, gin.H{"duplicate": true, "message": res.Message})
		return
	}

	if err := h.gateway.Send(c.Request.Context(), res.Message); err != nil {
		log.Printf("gateway send failed for message %s: %v", res.Message.ID, err)
		if updateErr := h.messages.UpdateStatus(c.Request.Context(), res.Message.ID, models.StatusFailed); updateErr != nil {
			log.Printf("mark message %s failed: %v", res.Message.ID, updateErr)
		}
		res.Message.Status = models.StatusFailed
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway transmission failed", "message": res.Message})
		return
	}

	event := models.RoomEvent{
		Type:         "message",
		EventID:      res.Message.ID,
		Message:      &res.Message,
		Conversation: &res.Conversation,
	}
	h.hub.Publish(res.Message.ConversationKey, event)
	h.hub.Publish("tenant:"+res.Conversation.Tenant, event)

	c.JSON(http.StatusCreated, res.Message)
}

// SetAssignee sets or clears the conversation's single owner.
func (h *ConversationHandler) SetAssignee(c *gin.Context) {
	conv, ok := h.tenantConversation(c)
	if !ok {
		return
	}

	var req struct {
		Assignee *string `json:"assignee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.conversations.SetAssignee(c.Request.Context(), conv.Key, req.Assignee); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update assignee"})
		return
	}
	conv.Assignee = req.Assignee
	h.publishConversationUpdate(conv)

	c.JSON(http.StatusOK, conv)
}

// SetStatus updates the conversation status.
func (h *ConversationHandler) SetStatus(c *gin.Context) {
	conv, ok := h.tenantConversation(c)
	if !ok {
		return
	}

	var req struct {
		Status models.ConversationStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case models.ConversationOpen, models.ConversationClosed, models.ConversationPending:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	if err := h.conversations.SetStatus(c.Request.Context(), conv.Key, req.Status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		return
	}
	conv.Status = req.Status
	h.publishConversationUpdate(conv)

	c.JSON(http.StatusOK, conv)
}

// MarkRead resets the unread counter.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conv, ok := h.tenantConversation(c)
	if !ok {
		return
	}

	if err := h.conversations.MarkRead(c.Request.Context(), conv.Key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	conv.UnreadCount = 0
	h.publishConversationUpdate(conv)

	c.Status(http.StatusNoContent)
}

// tenantConversation loads the conversation and enforces tenant scoping.
// Foreign-tenant keys read as not found.
func (h *ConversationHandler) tenantConversation(c *gin.Context) (models.Conversation, bool) {
	key := c.Param("key")
	conv, err := h.conversations.GetConversation(c.Request.Context(), key)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			statusCode = http.StatusNotFound
		}
		c.JSON(statusCode, gin.H{"error": "conversation not found"})
		return models.Conversation{}, false
	}
	if conv.Tenant != tenantFromContext(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return models.Conversation{}, false
	}
	return conv, true
}

func (h *ConversationHandler) publishConversationUpdate(conv models.Conversation) {
	h.hub.Publish("tenant:"+conv.Tenant, models.RoomEvent{
		Type:         "conversation_updated",
		EventID:      uuid.NewString(),
		Conversation: &conv,
	})
}
