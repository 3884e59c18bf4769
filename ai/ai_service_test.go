package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-voice-chat/backend/internal/models"
)

func testConfig(srv *httptest.Server, model string) ClientConfig {
	return ClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Model:   model,
		Timeout: 5 * time.Second,
	}
}

func TestGenerator_SendsTurnsAndSampling(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		TopP        float32 `json:"top_p"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"  hey there  "}}]}`)
	}))
	defer srv.Close()

	gen := NewGenerator(testConfig(srv, "test-model"))
	require.True(t, gen.Configured())

	reply, err := gen.Generate(context.Background(), []models.Turn{
		{Role: models.RoleSystem, Content: "be nice"},
		{Role: models.RoleUser, Content: "hi"},
	}, models.DefaultSamplingParams())

	require.NoError(t, err)
	assert.Equal(t, "hey there", reply)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	assert.InDelta(t, 0.9, got.TopP, 0.001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hi", got.Messages[1].Content)
}

func TestGenerator_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	reply, err := NewGenerator(testConfig(srv, "m")).Generate(context.Background(), nil, models.DefaultSamplingParams())
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestGenerator_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	_, err := NewGenerator(testConfig(srv, "m")).Generate(context.Background(), nil, models.DefaultSamplingParams())
	assert.Error(t, err)
}

func TestClients_NotConfigured(t *testing.T) {
	ctx := context.Background()

	gen := NewGenerator(ClientConfig{})
	assert.False(t, gen.Configured())
	_, err := gen.Generate(ctx, nil, models.DefaultSamplingParams())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTranscriber(ClientConfig{}, "").Transcribe(ctx, []byte{1}, "a.webm")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewSynthesizer(ClientConfig{}, "alloy").Synthesize(ctx, "hi", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTranscriber_UploadsAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "clip.wav", header.Filename)
		assert.Equal(t, []byte("RIFF"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" hello world "}`)
	}))
	defer srv.Close()

	text, err := NewTranscriber(testConfig(srv, "whisper-1"), "").Transcribe(context.Background(), []byte("RIFF"), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestTranscriber_EmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	_, err := NewTranscriber(testConfig(srv, "whisper-1"), "").Transcribe(context.Background(), nil, "a.webm")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestSynthesizer_ReturnsAudio(t *testing.T) {
	var got struct {
		Model string `json:"model"`
		Input string `json:"input"`
		Voice string `json:"voice"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	synth := NewSynthesizer(testConfig(srv, "tts-1"), "alloy")
	speech, err := synth.Synthesize(context.Background(), "hello", "warm")
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3fake"), speech.Audio)
	assert.Equal(t, "audio/mpeg", speech.ContentType)
	assert.Equal(t, "tts-1", got.Model)
	assert.Equal(t, "hello", got.Input)
	assert.Equal(t, "nova", got.Voice)
}

func TestSynthesizer_VoiceFor(t *testing.T) {
	s := NewSynthesizer(ClientConfig{}, "echo")

	assert.Equal(t, "echo", s.voiceFor(""))
	assert.Equal(t, "alloy", s.voiceFor("Natural"))
	assert.Equal(t, "fable", s.voiceFor("fable"))
}
