package api

import (
	"bytes"
	"context"
	stderrors "errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-voice-chat/backend/ai"
	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/internal/prompt"
	"ai-voice-chat/backend/internal/repository"
	"ai-voice-chat/backend/internal/service"
	"ai-voice-chat/backend/pkg/errors"
	"ai-voice-chat/backend/pkg/health"
	"ai-voice-chat/backend/pkg/logger"
)

type stubGenerator struct {
	reply string
	turns []models.Turn
}

func (g *stubGenerator) Generate(_ context.Context, turns []models.Turn, _ models.SamplingParams) (string, error) {
	g.turns = turns
	return g.reply, nil
}

type stubTranscriber struct {
	text     string
	err      error
	filename string
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ []byte, filename string) (string, error) {
	s.filename = filename
	return s.text, s.err
}

type stubSynthesizer struct {
	err error
}

func (s stubSynthesizer) Synthesize(context.Context, string, string) (ai.Speech, error) {
	if s.err != nil {
		return ai.Speech{}, s.err
	}
	return ai.Speech{Audio: []byte("ID3fake"), ContentType: "audio/mpeg"}, nil
}

type testServer struct {
	engine   *gin.Engine
	messages *service.MessageStore
	contexts *service.ContextStore
}

func newTestServer(t *testing.T, gen service.Generator, voice service.VoiceConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	kv := repository.NewMemoryKV()
	catalog := prompt.DefaultCatalog()
	messages := service.NewMessageStore(kv)
	contexts := service.NewContextStore(kv, nil, catalog)
	orchestrator := service.NewOrchestrator(service.OrchestratorConfig{
		Messages:  messages,
		Contexts:  contexts,
		Builder:   prompt.NewBuilder(catalog),
		Generator: gen,
		Logger:    log,
	})
	voice.Logger = log
	voice.MaxAudioSize = 1024

	engine := gin.New()
	engine.Use(logger.Middleware(log), errors.ErrorHandler(), errors.RecoveryWithLogger())

	group := engine.Group("/api")
	NewChatController(orchestrator).RegisterRoutes(group)
	NewSessionController(messages, contexts).RegisterRoutes(group)
	NewVoiceController(service.NewVoiceService(voice), voice.MaxAudioSize).RegisterRoutes(group)

	return &testServer{engine: engine, messages: messages, contexts: contexts}
}

func (s *testServer) do(method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "error object missing: %s", w.Body.String())
	return errBody["code"].(string)
}

func TestChat_ReturnsReplyAndStoresTurns(t *testing.T) {
	gen := &stubGenerator{reply: "Hey! How's it going?"}
	srv := newTestServer(t, gen, service.VoiceConfig{})

	w := srv.do(http.MethodPost, "/api/chat", `{"message":"hi","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ChatResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Hey! How's it going?", resp.Response)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Empty(t, resp.Fallback)
	assert.Equal(t, "s1", w.Header().Get(SessionHeader))

	require.Len(t, gen.turns, 2)
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "hi"}, gen.turns[1])

	log, err := srv.messages.List(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, models.RoleUser, log[0].Role)
	assert.Equal(t, models.RoleAssistant, log[1].Role)
}

func TestChat_AssignsSessionWhenMissing(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{reply: "ok"}, service.VoiceConfig{})

	w := srv.do(http.MethodPost, "/api/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.NotEmpty(t, body["sessionId"])
	assert.Equal(t, body["sessionId"], w.Header().Get(SessionHeader))
}

func TestChat_EmptyMessageIsRejected(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{reply: "ok"}, service.VoiceConfig{})

	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `not json`} {
		w := srv.do(http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, errors.CodeInvalidInput, errorCode(t, w), body)
	}
}

func TestChat_UnconfiguredGeneratorFallsBack(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{})

	w := srv.do(http.MethodPost, "/api/chat", `{"message":"hi","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ChatResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.FallbackUnavailable, resp.Fallback)
	assert.Contains(t, service.DefaultFallbacks().Unavailable, resp.Response)
}

func TestSessions_MessagesRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{})

	w := srv.do(http.MethodGet, "/api/sessions/fresh/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["messages"])

	w = srv.do(http.MethodPost, "/api/sessions/s1/messages", `{"role":"user","content":"m1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = srv.do(http.MethodPost, "/api/sessions/s1/messages", `{"role":"assistant","content":"m2","timestamp":7}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = srv.do(http.MethodGet, "/api/sessions/s1/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	messages := decode(t, w)["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].(map[string]any)["content"])
	assert.Equal(t, float64(7), messages[1].(map[string]any)["timestamp"])
}

func TestSessions_AppendRejectsBadRole(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{})

	w := srv.do(http.MethodPost, "/api/sessions/s1/messages", `{"role":"system","content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeInvalidInput, errorCode(t, w))
}

func TestSessions_ContextDefaultAndMerge(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{})

	w := srv.do(http.MethodGet, "/api/sessions/s1/context", "")
	require.Equal(t, http.StatusOK, w.Code)
	record := decode(t, w)["context"].(map[string]any)
	assert.Nil(t, record["userName"])
	assert.Equal(t, models.DefaultPersonality, record["personality"])
	assert.Equal(t, []any{}, record["topics"])

	w = srv.do(http.MethodPut, "/api/sessions/s1/context", `{"userName":"Sam"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = srv.do(http.MethodPut, "/api/sessions/s1/context", `{"topics":["music"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	record = decode(t, w)["context"].(map[string]any)
	assert.Equal(t, "Sam", record["userName"])
	assert.Equal(t, []any{"music"}, record["topics"])
	assert.NotZero(t, record["lastUpdated"])
}

func TestSessions_ContextRejectsUnknownPersonality(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{})

	w := srv.do(http.MethodPut, "/api/sessions/s1/context", `{"personality":"grumpy_robot"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeInvalidInput, errorCode(t, w))
}

func multipartAudio(t *testing.T, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		part, err := mw.CreateFormFile("audio", "clip.webm")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestTranscribe_Multipart(t *testing.T) {
	transcriber := &stubTranscriber{text: "hello there"}
	srv := newTestServer(t, nil, service.VoiceConfig{Transcriber: transcriber})

	body, contentType := multipartAudio(t, []byte{0x1a, 0x45, 0xdf, 0xa3, 0x01}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp TranscribeResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hello there", resp.Text)
	assert.False(t, resp.Fallback)
	assert.Equal(t, "audio.webm", transcriber.filename)
}

func TestTranscribe_RawMulawBodyIsWrappedAsWAV(t *testing.T) {
	transcriber := &stubTranscriber{text: "hi"}
	srv := newTestServer(t, nil, service.VoiceConfig{Transcriber: transcriber})

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe?encoding=mulaw&sampleRate=8000",
		bytes.NewReader(bytes.Repeat([]byte{0xff}, 160)))
	req.Header.Set("Content-Type", "application/octet-stream")
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "audio.wav", transcriber.filename)
}

func TestTranscribe_MissingAudioIsRejected(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{Transcriber: &stubTranscriber{}})

	body, contentType := multipartAudio(t, nil, map[string]string{"encoding": "webm"})
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeInvalidInput, errorCode(t, w))
}

func TestTranscribe_OversizedAudioIsRejected(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{Transcriber: &stubTranscriber{}})

	body, contentType := multipartAudio(t, bytes.Repeat([]byte{1}, 4096), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscribe_FailureYieldsSentinel(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{Transcriber: &stubTranscriber{err: stderrors.New("boom")}})

	body, contentType := multipartAudio(t, []byte("some audio bytes"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp TranscribeResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.TranscriptFailed, resp.Text)
	assert.True(t, resp.Fallback)
}

func TestTranscribe_BadEncodingIsRejected(t *testing.T) {
	srv := newTestServer(t, nil, service.VoiceConfig{Transcriber: &stubTranscriber{}})

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe?encoding=midi", strings.NewReader("abc"))
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSynthesize(t *testing.T) {
	t.Run("returns audio", func(t *testing.T) {
		srv := newTestServer(t, nil, service.VoiceConfig{Synthesizer: stubSynthesizer{}})

		w := srv.do(http.MethodPost, "/api/synthesize", `{"text":"hello","voice":"warm"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
		assert.Equal(t, "ID3fake", w.Body.String())
	})

	t.Run("failure is 503", func(t *testing.T) {
		srv := newTestServer(t, nil, service.VoiceConfig{Synthesizer: stubSynthesizer{err: stderrors.New("down")}})

		w := srv.do(http.MethodPost, "/api/synthesize", `{"text":"hello"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, errors.CodeCollaboratorUnavailable, errorCode(t, w))
	})

	t.Run("empty text is 400", func(t *testing.T) {
		srv := newTestServer(t, nil, service.VoiceConfig{Synthesizer: stubSynthesizer{}})

		w := srv.do(http.MethodPost, "/api/synthesize", `{"text":""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := health.NewChecker(logger.Discard(), 0)
	down := true
	checker.RegisterStorageCheck(func(context.Context) error {
		if down {
			return stderrors.New("unreachable")
		}
		return nil
	})

	engine := gin.New()
	NewHealthHandler(checker, "1.2.3", func() int { return 3 }).RegisterHealthRoutes(engine)

	checker.RunChecks(context.Background())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	down = false
	checker.RunChecks(context.Background())
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, 3, resp.WebSocket["active_connections"])
	require.Contains(t, resp.Components, "storage")
	assert.Equal(t, health.StatusUp, resp.Components["storage"].Status)
}
