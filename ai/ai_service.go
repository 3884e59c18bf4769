// Package ai wraps the OpenAI-compatible services the relay delegates to:
// chat completion, speech-to-text and text-to-speech.
package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"ai-voice-chat/backend/internal/models"
)

func newClient(cfg ClientConfig) *openai.Client {
	if cfg.APIKey == "" {
		return nil
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return openai.NewClientWithConfig(clientCfg)
}

// Generator produces chat replies
type Generator struct {
	client *openai.Client
	model  string
}

// NewGenerator creates a chat completion client
func NewGenerator(cfg ClientConfig) *Generator {
	return &Generator{client: newClient(cfg), model: cfg.Model}
}

// Configured reports whether an API key was provided
func (g *Generator) Configured() bool {
	return g.client != nil
}

// Generate submits turns and returns the first choice's text, which may be empty
func (g *Generator) Generate(ctx context.Context, turns []models.Turn, params models.SamplingParams) (string, error) {
	if g.client == nil {
		return "", ErrNotConfigured
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcriber converts recorded audio to text
type Transcriber struct {
	client   *openai.Client
	model    string
	language string
}

// NewTranscriber creates a speech-to-text client. language may be empty for auto-detection.
func NewTranscriber(cfg ClientConfig, language string) *Transcriber {
	return &Transcriber{client: newClient(cfg), model: cfg.Model, language: language}
}

// Configured reports whether an API key was provided
func (t *Transcriber) Configured() bool {
	return t.client != nil
}

// Transcribe uploads audio under filename. The extension tells the service the container format.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if t.client == nil {
		return "", ErrNotConfigured
	}
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	if filename == "" {
		filename = "audio.webm"
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: t.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Synthesizer turns reply text into speech
type Synthesizer struct {
	client       *openai.Client
	model        string
	defaultVoice string
}

// NewSynthesizer creates a text-to-speech client speaking with defaultVoice
func NewSynthesizer(cfg ClientConfig, defaultVoice string) *Synthesizer {
	return &Synthesizer{client: newClient(cfg), model: cfg.Model, defaultVoice: defaultVoice}
}

// Configured reports whether an API key was provided
func (s *Synthesizer) Configured() bool {
	return s.client != nil
}

// Synthesize returns mp3 audio for text
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (Speech, error) {
	if s.client == nil {
		return Speech{}, ErrNotConfigured
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voiceFor(voice)),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return Speech{}, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return Speech{}, fmt.Errorf("error reading speech audio: %w", err)
	}
	return Speech{Audio: audio, ContentType: "audio/mpeg"}, nil
}

// voiceFor maps the browser's voice styles onto provider voices.
// Provider voice names are passed through.
func (s *Synthesizer) voiceFor(voice string) string {
	switch strings.ToLower(voice) {
	case "":
		return s.defaultVoice
	case "natural":
		return string(openai.VoiceAlloy)
	case "warm":
		return string(openai.VoiceNova)
	case "bright":
		return string(openai.VoiceShimmer)
	case "deep":
		return string(openai.VoiceOnyx)
	default:
		return voice
	}
}
