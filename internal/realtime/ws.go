package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"conversation-service/internal/auth"
	"conversation-service/internal/models"
	"conversation-service/internal/observability"
	"conversation-service/internal/repositories"
)

// WebSocketHandler authenticates and registers live connections.
type WebSocketHandler struct {
	hub           *Hub
	credentials   *auth.Service
	conversations repositories.ConversationRepository
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(hub *Hub, credentials *auth.Service, conversations repositories.ConversationRepository) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, credentials: credentials, conversations: conversations}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is what connected clients may send upstream.
type clientFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// Handle validates the presented credential, resolves the subject's room
// set, and upgrades the connection. A failed credential always rejects the
// handshake; there is no anonymous fallback.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("conversation-service/realtime").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}

	cred, err := h.credentials.Validate(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": credentialErrorCode(err)})
		return
	}

	rooms := []string{"tenant:" + cred.Tenant}
	assigned, err := h.conversations.ListKeysForAssignee(ctx, cred.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve rooms"})
		return
	}
	rooms = append(rooms, assigned...)

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := NewConn(uuid.NewString(), cred.Subject, cred.Tenant, wsConn, h.hub.cfg.QueueSize)
	h.hub.Register(conn, rooms)

	info := observability.ClientInfoFromRequest(c.Request)
	envelope := observability.NewEnvelope("ws_events", "ws_connect", map[string]any{
		"conn_id":   conn.ID,
		"subject":   cred.Subject,
		"device_id": info.DeviceID,
		"ip":        info.IP,
	})
	envelope.Tenant = cred.Tenant
	traceID := span.SpanContext().TraceID().String()
	_ = observability.PublishEvent(ctx, "ws_events.connections", envelope, observability.BuildHeaders(info.RequestID, traceID))

	go h.readLoop(conn, wsConn)
}

// readLoop drains client frames. Transport errors are isolated to this
// connection: it is unsubscribed and torn down, the room stays untouched.
func (h *WebSocketHandler) readLoop(conn *Conn, wsConn *websocket.Conn) {
	defer h.hub.Unregister(conn)

	wsConn.SetReadLimit(8 * 1024)
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := wsConn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("connection %s transport error: %v", conn.ID, err)
				observability.IncWSEvent("ws_error")
			}
			return
		}

		h.hub.Touch(conn)

		var frame clientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		h.handleFrame(conn, frame)
	}
}

func (h *WebSocketHandler) handleFrame(conn *Conn, frame clientFrame) {
	switch frame.Type {
	case "typing":
		if !h.hub.InRoom(conn, frame.Room) {
			return
		}
		if !h.hub.AllowClientEvent(conn, "typing") {
			return
		}
		h.hub.PublishExcept(frame.Room, models.RoomEvent{
			Type:    "typing",
			EventID: uuid.NewString(),
			Subject: conn.Subject,
		}, conn)
	default:
		// Unknown frame types are dropped; messages travel over the REST
		// surface, not the socket.
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		if len(header) > 7 && header[:7] == "Bearer " {
			return header[7:]
		}
		return ""
	}
	return c.Query("token")
}

func credentialErrorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "credential_expired"
	case errors.Is(err, auth.ErrRevoked):
		return "credential_revoked"
	case errors.Is(err, auth.ErrUsesExceeded):
		return "credential_uses_exceeded"
	default:
		return "invalid_credential"
	}
}
