package secrets

import (
	"context"
	"sync"

	"ai-voice-chat/backend/pkg/config"
	"ai-voice-chat/backend/pkg/logger"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

var (
	defaultManager Manager
	managerOnce    sync.Once
)

// Init initializes the default secrets manager
func Init(log *logger.Logger, enabled bool) error {
	var err error
	managerOnce.Do(func() {
		manager, initErr := NewVaultManager(log, VaultConfigFromEnv(enabled))
		if initErr != nil {
			err = initErr
			return
		}
		defaultManager = manager
	})
	return err
}

// GetSecret retrieves a secret from the default manager
func GetSecret(ctx context.Context, key string) (string, error) {
	if defaultManager == nil {
		return "", ErrManagerNotInitialized
	}
	return defaultManager.GetSecret(ctx, key)
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	if defaultManager == nil {
		return defaultValue
	}
	return defaultManager.GetSecretWithDefault(ctx, key, defaultValue)
}

// Default returns the manager installed by Init or SetManager, or nil
func Default() Manager {
	return defaultManager
}

// SetManager replaces the default secrets manager
func SetManager(manager Manager) {
	defaultManager = manager
}

// ApplyAPIKeys overrides the collaborator API keys in cfg with values held by m.
// Keys missing from m keep their configured value.
func ApplyAPIKeys(ctx context.Context, m Manager, cfg *config.Config) {
	cfg.Generation.APIKey = m.GetSecretWithDefault(ctx, "generation_api_key", cfg.Generation.APIKey)
	cfg.Transcription.APIKey = m.GetSecretWithDefault(ctx, "transcription_api_key", cfg.Transcription.APIKey)
	cfg.Speech.APIKey = m.GetSecretWithDefault(ctx, "speech_api_key", cfg.Speech.APIKey)
}

// Common errors
var (
	ErrManagerNotInitialized = NewError("secrets manager not initialized")
)

// Error represents a secrets management error
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

// NewError creates a new Error
func NewError(text string) Error {
	return Error(text)
}
