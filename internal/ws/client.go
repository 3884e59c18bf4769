package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/pkg/audio"
	"ai-voice-chat/backend/pkg/errors"
	"ai-voice-chat/backend/pkg/logger"
)

// Frame types
const (
	TypeChat       = "chat"
	TypeAudio      = "audio"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeTyping     = "typing"
	TypeTranscript = "transcript"
	TypeSession    = "session"
	TypeHistory    = "history"
	TypeError      = "error"
)

// Frame is the envelope of every websocket message in both directions
type Frame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// ChatContent is the content of an inbound chat frame
type ChatContent struct {
	Message string `json:"message"`
}

// AudioContent is the content of an inbound audio frame. Data is base64.
type AudioContent struct {
	Data       string `json:"data"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// ReplyContent is the content of an outbound chat frame
type ReplyContent struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Fallback  string `json:"fallback,omitempty"`
}

// ErrorContent is the content of an outbound error frame
type ErrorContent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client is one websocket connection bound to a session
type Client struct {
	id        string
	sessionID string
	hub       *Hub
	conn      *websocket.Conn
	log       *logger.Logger

	send  chan []byte
	inbox chan Frame

	mu     sync.Mutex
	closed bool
}

// ServeWs upgrades the request and starts the client's pumps. The session
// comes from the sessionId query parameter or is assigned here.
func ServeWs(hub *Hub, c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("WebSocket upgrade failed", "error", err.Error())
		return
	}

	client := &Client{
		id:        uuid.NewString(),
		sessionID: sessionID,
		hub:       hub,
		conn:      conn,
		log:       hub.log.WithSessionID(sessionID),
		send:      make(chan []byte, 256),
		inbox:     make(chan Frame, inboxSize),
	}

	if !hub.add(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client.sendFrame(TypeSession, map[string]string{"sessionId": sessionID})
	client.sendHistory(c.Request.Context())

	ctx, cancel := context.WithCancel(context.Background())
	go client.writePump()
	go client.work(ctx)
	go client.readPump(cancel)
}

func (c *Client) sendHistory(ctx context.Context) {
	if c.hub.history == nil {
		return
	}
	messages, err := c.hub.history.List(ctx, c.sessionID)
	if err != nil {
		c.log.LogError(err, "Failed to load session history")
		return
	}
	if len(messages) > 0 {
		c.sendFrame(TypeHistory, map[string][]models.Message{"messages": messages})
	}
}

// readPump queues inbound frames for work and answers pings inline
func (c *Client) readPump(cancel context.CancelFunc) {
	defer func() {
		cancel()
		close(c.inbox)
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("WebSocket read failed", "error", err.Error())
			}
			return
		}

		var frame Frame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			c.sendError(errors.InvalidInput("Malformed frame"))
			continue
		}

		switch frame.Type {
		case TypePing:
			c.sendFrame(TypePong, nil)
		case TypeChat, TypeAudio:
			select {
			case c.inbox <- frame:
			default:
				c.sendError(errors.NewTooManyRequestsError("Too many pending messages"))
			}
		default:
			c.sendError(errors.InvalidInput("Unknown frame type " + frame.Type))
		}
	}
}

// work handles chat and audio frames one at a time so turns stay ordered
func (c *Client) work(ctx context.Context) {
	for frame := range c.inbox {
		turnCtx, cancel := context.WithTimeout(ctx, c.hub.turnTimeout)
		turnCtx = logger.ContextWithSessionID(turnCtx, c.sessionID)

		switch frame.Type {
		case TypeChat:
			var content ChatContent
			if err := sonic.Unmarshal(frame.Content, &content); err != nil {
				c.sendError(errors.InvalidInput("Malformed chat content"))
				break
			}
			c.chat(turnCtx, content.Message)
		case TypeAudio:
			c.audio(turnCtx, frame.Content)
		}
		cancel()
	}
}

func (c *Client) chat(ctx context.Context, text string) {
	if c.hub.chat == nil {
		c.sendError(errors.CollaboratorUnavailable(nil, "Chat is not available"))
		return
	}

	c.sendFrame(TypeTyping, map[string]bool{"isTyping": true})

	reply, err := c.hub.chat.HandleMessage(ctx, c.sessionID, text)
	if err != nil {
		c.sendError(err)
		return
	}

	c.sendFrame(TypeChat, ReplyContent{
		SessionID: reply.SessionID,
		Role:      string(models.RoleAssistant),
		Content:   reply.Response,
		Timestamp: reply.Timestamp,
		Fallback:  reply.Fallback,
	})
}

// audio transcribes a clip and, when it yields speech, runs it as a chat turn
func (c *Client) audio(ctx context.Context, raw json.RawMessage) {
	if c.hub.transcriber == nil {
		c.sendError(errors.CollaboratorUnavailable(nil, "Transcription is not available"))
		return
	}

	var content AudioContent
	if err := sonic.Unmarshal(raw, &content); err != nil {
		c.sendError(errors.InvalidInput("Malformed audio content"))
		return
	}
	data, err := base64.StdEncoding.DecodeString(content.Data)
	if err != nil {
		c.sendError(errors.InvalidInput("Audio data must be base64"))
		return
	}
	enc, err := audio.ParseEncoding(content.Encoding)
	if err != nil {
		c.sendError(errors.InvalidInput(err.Error()))
		return
	}

	transcript, err := c.hub.transcriber.Transcribe(ctx, data, enc, content.SampleRate)
	if err != nil {
		c.sendError(err)
		return
	}
	c.sendFrame(TypeTranscript, transcript)

	if transcript.Fallback || transcript.Text == "" {
		return
	}
	c.chat(ctx, transcript.Text)
}

func (c *Client) sendError(err error) {
	appErr := errors.FromError(err)
	if appErr.StatusCode >= 500 {
		c.log.LogError(err, "WebSocket turn failed")
	}
	c.sendFrame(TypeError, ErrorContent{Code: appErr.Code, Message: appErr.Message})
}

func (c *Client) sendFrame(frameType string, content any) {
	frame := Frame{Type: frameType}
	if content != nil {
		raw, err := sonic.Marshal(content)
		if err != nil {
			c.log.LogError(err, "Failed to encode frame", "type", frameType)
			return
		}
		frame.Content = raw
	}

	data, err := sonic.Marshal(frame)
	if err != nil {
		c.log.LogError(err, "Failed to encode frame", "type", frameType)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("Dropping frame for slow client", "type", frameType)
	}
}

// close stops writePump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
