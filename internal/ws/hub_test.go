package ws

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/internal/service"
	"ai-voice-chat/backend/pkg/audio"
	"ai-voice-chat/backend/pkg/logger"
)

type fakeChat struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeChat) HandleMessage(_ context.Context, sessionID, text string) (service.Reply, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return service.Reply{SessionID: sessionID, Response: "echo: " + text, Timestamp: 42}, nil
}

type fakeHistory struct {
	messages []models.Message
}

func (f fakeHistory) List(context.Context, string) ([]models.Message, error) {
	return f.messages, nil
}

type fakeTranscriber struct {
	transcript service.Transcript
	mu         sync.Mutex
	got        []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, data []byte, _ audio.Encoding, _ int) (service.Transcript, error) {
	f.mu.Lock()
	f.got = data
	f.mu.Unlock()
	return f.transcript, nil
}

func (f *fakeTranscriber) received() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func startHub(t *testing.T, cfg HubConfig) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg.Logger = logger.Discard()
	hub := NewHub(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	engine := gin.New()
	engine.GET("/ws", func(c *gin.Context) { ServeWs(hub, c) })
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame Frame
	require.NoError(t, sonic.Unmarshal(data, &frame))
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, frameType string, content any) {
	t.Helper()
	frame := Frame{Type: frameType}
	if content != nil {
		raw, err := sonic.Marshal(content)
		require.NoError(t, err)
		frame.Content = raw
	}
	data, err := sonic.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestServeWs_AssignsSessionAndAnswersChat(t *testing.T) {
	chat := &fakeChat{}
	_, url := startHub(t, HubConfig{Chat: chat})
	conn := dial(t, url)

	session := readFrame(t, conn)
	require.Equal(t, TypeSession, session.Type)
	var assigned map[string]string
	require.NoError(t, sonic.Unmarshal(session.Content, &assigned))
	assert.NotEmpty(t, assigned["sessionId"])

	writeFrame(t, conn, TypeChat, ChatContent{Message: "hi"})

	assert.Equal(t, TypeTyping, readFrame(t, conn).Type)

	reply := readFrame(t, conn)
	require.Equal(t, TypeChat, reply.Type)
	var content ReplyContent
	require.NoError(t, sonic.Unmarshal(reply.Content, &content))
	assert.Equal(t, "echo: hi", content.Content)
	assert.Equal(t, assigned["sessionId"], content.SessionID)
	assert.Equal(t, "assistant", content.Role)
}

func TestServeWs_PingPong(t *testing.T) {
	_, url := startHub(t, HubConfig{Chat: &fakeChat{}})
	conn := dial(t, url)
	readFrame(t, conn) // session

	writeFrame(t, conn, TypePing, nil)
	assert.Equal(t, TypePong, readFrame(t, conn).Type)
}

func TestServeWs_SendsHistoryForKnownSession(t *testing.T) {
	history := fakeHistory{messages: []models.Message{
		{Role: models.RoleUser, Content: "earlier", Timestamp: 1},
	}}
	_, url := startHub(t, HubConfig{Chat: &fakeChat{}, History: history})
	conn := dial(t, url+"?sessionId=s1")

	session := readFrame(t, conn)
	assert.Contains(t, string(session.Content), "s1")

	frame := readFrame(t, conn)
	require.Equal(t, TypeHistory, frame.Type)
	var got map[string][]models.Message
	require.NoError(t, sonic.Unmarshal(frame.Content, &got))
	assert.Equal(t, history.messages, got["messages"])
}

func TestServeWs_UnknownFrameIsAnError(t *testing.T) {
	_, url := startHub(t, HubConfig{Chat: &fakeChat{}})
	conn := dial(t, url)
	readFrame(t, conn)

	writeFrame(t, conn, "dance", nil)

	frame := readFrame(t, conn)
	require.Equal(t, TypeError, frame.Type)
	var content ErrorContent
	require.NoError(t, sonic.Unmarshal(frame.Content, &content))
	assert.Equal(t, "INVALID_INPUT", content.Code)
}

func TestServeWs_AudioFrameRunsTranscriptAsChat(t *testing.T) {
	chat := &fakeChat{}
	transcriber := &fakeTranscriber{transcript: service.Transcript{Text: "hello there"}}
	_, url := startHub(t, HubConfig{Chat: chat, Transcriber: transcriber})
	conn := dial(t, url)
	readFrame(t, conn)

	clip := []byte("RIFF....WAVEdata")
	writeFrame(t, conn, TypeAudio, AudioContent{Data: base64.StdEncoding.EncodeToString(clip), Encoding: "wav"})

	frame := readFrame(t, conn)
	require.Equal(t, TypeTranscript, frame.Type)
	assert.Contains(t, string(frame.Content), "hello there")
	assert.Equal(t, clip, transcriber.received())

	assert.Equal(t, TypeTyping, readFrame(t, conn).Type)
	reply := readFrame(t, conn)
	require.Equal(t, TypeChat, reply.Type)
	assert.Contains(t, string(reply.Content), "echo: hello there")
}

func TestServeWs_FallbackTranscriptIsNotSentAsChat(t *testing.T) {
	chat := &fakeChat{}
	transcriber := &fakeTranscriber{transcript: service.Transcript{Text: service.TranscriptFailed, Fallback: true}}
	_, url := startHub(t, HubConfig{Chat: chat, Transcriber: transcriber})
	conn := dial(t, url)
	readFrame(t, conn)

	writeFrame(t, conn, TypeAudio, AudioContent{Data: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})})
	assert.Equal(t, TypeTranscript, readFrame(t, conn).Type)

	writeFrame(t, conn, TypePing, nil)
	assert.Equal(t, TypePong, readFrame(t, conn).Type)

	chat.mu.Lock()
	defer chat.mu.Unlock()
	assert.Empty(t, chat.texts)
}

func TestHub_TracksAndClosesConnections(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(HubConfig{Chat: &fakeChat{}, Logger: logger.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	engine := gin.New()
	engine.GET("/ws", func(c *gin.Context) { ServeWs(hub, c) })
	server := httptest.NewServer(engine)
	defer server.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(server.URL, "http")+"/ws")
	readFrame(t, conn)
	assert.Equal(t, 1, hub.ActiveConnections())

	cancel()
	<-stopped
	assert.Equal(t, 0, hub.ActiveConnections())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	allowAll := originChecker([]string{"*"})
	restricted := originChecker([]string{"https://chat.example.com"})

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.True(t, allowAll(req))
	assert.False(t, restricted(req))

	req.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, restricted(req))
}
