package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"ai-voice-chat/backend/ai"
	"ai-voice-chat/backend/pkg/audio"
	"ai-voice-chat/backend/pkg/errors"
	"ai-voice-chat/backend/pkg/logger"
	"ai-voice-chat/backend/pkg/observability"
	"ai-voice-chat/backend/pkg/resilience"
)

// Sentinel transcripts returned instead of errors
const (
	TranscriptUnavailable = "Audio transcription not available"
	TranscriptFailed      = "Could not transcribe audio"
)

// Transcriber converts audio to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer converts text to audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (ai.Speech, error)
}

// VoiceConfig holds the collaborators of a VoiceService
type VoiceConfig struct {
	Transcriber       Transcriber
	Synthesizer       Synthesizer
	TranscribeBreaker *resilience.CircuitBreaker
	SpeechBreaker     *resilience.CircuitBreaker
	MaxAudioSize      int64
	Metrics           *observability.Metrics
	Logger            *logger.Logger
}

// Transcript is the result of a transcription request
type Transcript struct {
	Text string `json:"text"`
	// Fallback is set when Text is a sentinel rather than what was said
	Fallback bool `json:"fallback,omitempty"`
}

// VoiceService handles speech-to-text and text-to-speech, independently of the chat procedure
type VoiceService struct {
	transcriber       Transcriber
	synthesizer       Synthesizer
	transcribeBreaker *resilience.CircuitBreaker
	speechBreaker     *resilience.CircuitBreaker
	maxAudioSize      int64
	metrics           *observability.Metrics
	log               *logger.Logger
}

// NewVoiceService creates a voice service
func NewVoiceService(cfg VoiceConfig) *VoiceService {
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobal()
	}
	if cfg.TranscribeBreaker == nil {
		cfg.TranscribeBreaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("transcription"), cfg.Logger)
	}
	if cfg.SpeechBreaker == nil {
		cfg.SpeechBreaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("speech"), cfg.Logger)
	}

	return &VoiceService{
		transcriber:       cfg.Transcriber,
		synthesizer:       cfg.Synthesizer,
		transcribeBreaker: cfg.TranscribeBreaker,
		speechBreaker:     cfg.SpeechBreaker,
		maxAudioSize:      cfg.MaxAudioSize,
		metrics:           cfg.Metrics,
		log:               cfg.Logger,
	}
}

// Transcribe returns what was said in data. Collaborator failures yield a
// sentinel transcript; only unusable input is an error.
func (s *VoiceService) Transcribe(ctx context.Context, data []byte, enc audio.Encoding, sampleRate int) (Transcript, error) {
	if len(data) == 0 {
		return Transcript{}, errors.InvalidInput("Audio data is required")
	}
	if s.maxAudioSize > 0 && int64(len(data)) > s.maxAudioSize {
		return Transcript{}, errors.InvalidInput(fmt.Sprintf("Audio exceeds the %d byte limit", s.maxAudioSize))
	}

	normalized, filename, err := audio.Normalize(data, enc, sampleRate)
	if err != nil {
		return Transcript{}, errors.InvalidInput(err.Error())
	}

	log := s.log.WithContext(ctx)

	if s.transcriber == nil || !isConfigured(s.transcriber) {
		s.metrics.TranscriptionDone(ctx, "unavailable")
		return Transcript{Text: TranscriptUnavailable, Fallback: true}, nil
	}

	var text string
	err = s.transcribeBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		text, err = s.transcriber.Transcribe(ctx, normalized, filename)
		return err
	})
	switch {
	case stderrors.Is(err, ai.ErrNotConfigured):
		s.metrics.TranscriptionDone(ctx, "unavailable")
		return Transcript{Text: TranscriptUnavailable, Fallback: true}, nil
	case err != nil:
		log.LogError(err, "Transcription failed", "bytes", len(data), "filename", filename)
		s.metrics.TranscriptionDone(ctx, "failure")
		return Transcript{Text: TranscriptFailed, Fallback: true}, nil
	}

	s.metrics.TranscriptionDone(ctx, "ok")
	return Transcript{Text: text}, nil
}

// Synthesize speaks text. Failure is reported so the client can fall back to local speech.
func (s *VoiceService) Synthesize(ctx context.Context, text, voice string) (ai.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return ai.Speech{}, errors.InvalidInput("Text is required")
	}
	if s.synthesizer == nil || !isConfigured(s.synthesizer) {
		return ai.Speech{}, errors.CollaboratorUnavailable(ai.ErrNotConfigured, "Speech synthesis not available")
	}

	var speech ai.Speech
	err := s.speechBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		speech, err = s.synthesizer.Synthesize(ctx, text, voice)
		return err
	})
	if err != nil {
		s.log.WithContext(ctx).LogError(err, "Speech synthesis failed")
		return ai.Speech{}, errors.CollaboratorUnavailable(err, "Speech synthesis not available")
	}
	return speech, nil
}

// TranscriptionConfigured reports whether speech-to-text credentials are present
func (s *VoiceService) TranscriptionConfigured() bool {
	return s.transcriber != nil && isConfigured(s.transcriber)
}

// SpeechConfigured reports whether text-to-speech credentials are present
func (s *VoiceService) SpeechConfigured() bool {
	return s.synthesizer != nil && isConfigured(s.synthesizer)
}

func isConfigured(v any) bool {
	c, ok := v.(configurable)
	return !ok || c.Configured()
}
