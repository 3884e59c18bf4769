package ai

import (
	"errors"
	"time"
)

// ErrNotConfigured is returned by every call of a client built without an API key
var ErrNotConfigured = errors.New("ai: collaborator not configured")

// ErrEmptyAudio is returned by Transcribe when there is nothing to send
var ErrEmptyAudio = errors.New("ai: audio data cannot be empty")

// ClientConfig describes one OpenAI-compatible endpoint
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Speech is synthesized audio and its MIME type
type Speech struct {
	Audio       []byte
	ContentType string
}
