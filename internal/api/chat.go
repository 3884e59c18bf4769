package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-voice-chat/backend/internal/service"
	"ai-voice-chat/backend/pkg/errors"
)

// SessionHeader echoes the session a request was handled under
const SessionHeader = "X-Session-ID"

// ChatController handles the text chat endpoint
type ChatController struct {
	orchestrator *service.Orchestrator
}

// NewChatController creates a new chat controller
func NewChatController(orchestrator *service.Orchestrator) *ChatController {
	return &ChatController{orchestrator: orchestrator}
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatResponse is returned for a handled chat message
type ChatResponse struct {
	Success   bool   `json:"success"`
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Fallback  string `json:"fallback,omitempty"`
}

// RegisterRoutes registers the routes for the chat controller
func (c *ChatController) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/chat", c.Chat)
}

// Chat runs one conversational turn and returns the assistant reply
func (c *ChatController) Chat(ctx *gin.Context) {
	var req ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		_ = ctx.Error(errors.InvalidInput("Invalid request body"))
		return
	}

	if req.SessionID != "" {
		ctx.Set("sessionID", req.SessionID)
	}

	reply, err := c.orchestrator.HandleMessage(ctx.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	ctx.Set("sessionID", reply.SessionID)
	ctx.Header(SessionHeader, reply.SessionID)
	ctx.JSON(http.StatusOK, ChatResponse{
		Success:   true,
		Response:  reply.Response,
		SessionID: reply.SessionID,
		Timestamp: reply.Timestamp,
		Fallback:  reply.Fallback,
	})
}
