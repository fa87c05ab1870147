package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func subjectFromContext(c *gin.Context) *string {
	if val, ok := c.Get("subject"); ok {
		if subject, ok := val.(string); ok && subject != "" {
			return &subject
		}
	}
	return nil
}

func tenantFromContext(c *gin.Context) string {
	if val, ok := c.Get("tenant"); ok {
		if tenant, ok := val.(string); ok {
			return tenant
		}
	}
	return ""
}
