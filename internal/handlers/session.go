package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"conversation-service/internal/auth"
	"conversation-service/internal/telemetry"
)

// SessionHandler exposes the credential rotation operations. Issuance trusts
// the upstream identity check; this service owns only the session security
// layer.
type SessionHandler struct {
	credentials *auth.Service
	tokens      *auth.TokenIssuer
	audit       *telemetry.AuditEmitter
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(credentials *auth.Service, tokens *auth.TokenIssuer, audit *telemetry.AuditEmitter) *SessionHandler {
	return &SessionHandler{credentials: credentials, tokens: tokens, audit: audit}
}

type sessionResponse struct {
	CredentialID string    `json:"credential_id"`
	FamilyID     string    `json:"family_id"`
	RefreshToken string    `json:"refresh_token"`
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CreateSession issues a fresh credential family for an authenticated
// subject.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req struct {
		Subject  string `json:"subject" binding:"required"`
		Tenant   string `json:"tenant" binding:"required"`
		DeviceID string `json:"device_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issued, err := h.credentials.Issue(c.Request.Context(), req.Subject, req.Tenant, req.DeviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue credential"})
		return
	}

	access, err := h.tokens.Sign(req.Subject, req.Tenant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign access token"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "session issued", requestIDFromContext(c), &req.Subject)
	c.JSON(http.StatusCreated, sessionResponse{
		CredentialID: issued.Credential.ID,
		FamilyID:     issued.Credential.FamilyID,
		RefreshToken: issued.Token,
		AccessToken:  access,
		ExpiresAt:    issued.Credential.ExpiresAt,
	})
}

// RefreshSession rotates the presented credential. A dead token rejects the
// call and has already revoked its whole family by the time the response is
// written.
func (h *SessionHandler) RefreshSession(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issued, err := h.credentials.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate credential"})
		return
	}

	access, err := h.tokens.Sign(issued.Credential.Subject, issued.Credential.Tenant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign access token"})
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		CredentialID: issued.Credential.ID,
		FamilyID:     issued.Credential.FamilyID,
		RefreshToken: issued.Token,
		AccessToken:  access,
		ExpiresAt:    issued.Credential.ExpiresAt,
	})
}

// DeleteSession revokes a single credential (logout). Idempotent.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	credentialID := c.Param("credential_id")
	if err := h.credentials.Revoke(c.Request.Context(), credentialID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke credential"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllSessions is the global sign-out for a subject.
func (h *SessionHandler) DeleteAllSessions(c *gin.Context) {
	subject := c.Param("subject")
	if err := h.credentials.RevokeAllForSubject(c.Request.Context(), subject); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke credentials"})
		return
	}
	h.audit.Emit(c.Request.Context(), "WARN", "global sign-out", requestIDFromContext(c), &subject)
	c.Status(http.StatusNoContent)
}
