package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/internal/service"
	"ai-voice-chat/backend/pkg/errors"
)

// SessionController exposes a session's message log and context record
type SessionController struct {
	messages *service.MessageStore
	contexts *service.ContextStore
}

// NewSessionController creates a new session controller
func NewSessionController(messages *service.MessageStore, contexts *service.ContextStore) *SessionController {
	return &SessionController{
		messages: messages,
		contexts: contexts,
	}
}

// AppendMessageRequest is the body of POST /api/sessions/:sessionId/messages
type AppendMessageRequest struct {
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"`
}

// RegisterRoutes registers the routes for the session controller
func (c *SessionController) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions/:sessionId")
	sessions.Use(sessionParam())
	{
		sessions.GET("/messages", c.ListMessages)
		sessions.POST("/messages", c.AppendMessage)
		sessions.GET("/context", c.GetContext)
		sessions.PUT("/context", c.UpdateContext)
	}
}

// sessionParam makes the path session visible to the request logger
func sessionParam() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("sessionID", ctx.Param("sessionId"))
		ctx.Next()
	}
}

// ListMessages returns the session log, oldest first
func (c *SessionController) ListMessages(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")

	messages, err := c.messages.List(ctx.Request.Context(), sessionID)
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": sessionID,
		"messages":  messages,
	})
}

// AppendMessage stores one message in the session log
func (c *SessionController) AppendMessage(ctx *gin.Context) {
	var req AppendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		_ = ctx.Error(errors.InvalidInput("Invalid request body"))
		return
	}

	msg, err := c.messages.Append(ctx.Request.Context(), ctx.Param("sessionId"), models.Message{
		Role:      req.Role,
		Content:   req.Content,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": msg,
	})
}

// GetContext returns the session's context record, or the default one
func (c *SessionController) GetContext(ctx *gin.Context) {
	record, err := c.contexts.Get(ctx.Request.Context(), ctx.Param("sessionId"))
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"context": record,
	})
}

// UpdateContext shallow-merges the body onto the session's context record
func (c *SessionController) UpdateContext(ctx *gin.Context) {
	var patch models.ContextPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		_ = ctx.Error(errors.InvalidInput("Invalid request body"))
		return
	}

	record, err := c.contexts.Update(ctx.Request.Context(), ctx.Param("sessionId"), patch)
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"context": record,
	})
}
