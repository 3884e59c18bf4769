package ws

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/internal/service"
	"ai-voice-chat/backend/pkg/audio"
	"ai-voice-chat/backend/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer, large enough for a base64 voice clip
	maxMessageSize = 8 << 20

	// Frames queued per client before the reader blocks
	inboxSize = 16
)

// ChatHandler runs one conversational turn
type ChatHandler interface {
	HandleMessage(ctx context.Context, sessionID, text string) (service.Reply, error)
}

// HistoryLoader returns a session's stored messages
type HistoryLoader interface {
	List(ctx context.Context, sessionID string) ([]models.Message, error)
}

// Transcriber turns an uploaded recording into text
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, enc audio.Encoding, sampleRate int) (service.Transcript, error)
}

// HubConfig wires a Hub to the chat services
type HubConfig struct {
	Chat           ChatHandler
	History        HistoryLoader
	Transcriber    Transcriber
	Logger         *logger.Logger
	AllowedOrigins []string
	// TurnTimeout bounds a single chat or audio frame
	TurnTimeout time.Duration
}

// Hub tracks connected clients
type Hub struct {
	chat        ChatHandler
	history     HistoryLoader
	transcriber Transcriber
	log         *logger.Logger
	turnTimeout time.Duration
	upgrader    websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	stopped bool
}

// NewHub creates a hub. Run closes its connections on shutdown.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobal()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 90 * time.Second
	}

	h := &Hub{
		chat:        cfg.Chat,
		history:     cfg.History,
		transcriber: cfg.Transcriber,
		log:         cfg.Logger,
		turnTimeout: cfg.TurnTimeout,
		clients:     make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      originChecker(cfg.AllowedOrigins),
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	return h
}

// Run blocks until ctx is done, then closes every remaining connection
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
	h.log.Info("WebSocket hub stopped")
}

// ActiveConnections returns the number of registered clients
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add registers client. It reports false once the hub has stopped.
func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[client] = struct{}{}
	h.log.Debug("Client registered", "client_id", client.id, "session_id", client.sessionID)
	return true
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
		h.log.Debug("Client unregistered", "client_id", client.id)
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
