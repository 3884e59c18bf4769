package di

import (
	"context"
	"fmt"
	"time"

	"ai-voice-chat/backend/ai"
	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/internal/prompt"
	"ai-voice-chat/backend/internal/repository"
	"ai-voice-chat/backend/internal/service"
	"ai-voice-chat/backend/pkg/cache"
	"ai-voice-chat/backend/pkg/config"
	"ai-voice-chat/backend/pkg/health"
	"ai-voice-chat/backend/pkg/logger"
	"ai-voice-chat/backend/pkg/observability"
	"ai-voice-chat/backend/pkg/resilience"
)

// Container holds all the dependencies for the application
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	Store        repository.KV
	Catalog      *prompt.Catalog
	Messages     *service.MessageStore
	Contexts     *service.ContextStore
	Orchestrator *service.Orchestrator
	Voice        *service.VoiceService
	Generator    *ai.Generator
	Health       *health.Checker
	Metrics      *observability.Metrics
}

// New opens the configured storage backend and builds the container on it
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	store, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	c, err := NewWithStore(cfg, log, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return c, nil
}

// NewWithStore builds the container on an already opened store
func NewWithStore(cfg *config.Config, log *logger.Logger, store repository.KV) (*Container, error) {
	catalog := prompt.DefaultCatalog()
	if cfg.Assets.PersonasFile != "" {
		loaded, err := prompt.LoadCatalog(cfg.Assets.PersonasFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load personas: %w", err)
		}
		catalog = loaded
	}

	// Instruments bind to the global meter provider, a no-op until SetupMetrics runs
	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	var recordCache *cache.Cache[models.ContextRecord]
	if cfg.Cache.Enabled {
		recordCache = cache.New[models.ContextRecord](cfg.Cache.TTL, cfg.Cache.PurgeWindow)
	}

	messages := service.NewMessageStore(store)
	contexts := service.NewContextStore(store, recordCache, catalog)

	generator := ai.NewGenerator(ai.ClientConfig{
		APIKey:  cfg.Generation.APIKey,
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
	})
	transcriber := ai.NewTranscriber(ai.ClientConfig{
		APIKey:  cfg.Transcription.APIKey,
		BaseURL: cfg.Transcription.BaseURL,
		Model:   cfg.Transcription.Model,
		Timeout: cfg.Transcription.Timeout,
	}, cfg.Transcription.Language)
	synthesizer := ai.NewSynthesizer(ai.ClientConfig{
		APIKey:  cfg.Speech.APIKey,
		BaseURL: cfg.Speech.BaseURL,
		Model:   cfg.Speech.Model,
		Timeout: cfg.Speech.Timeout,
	}, cfg.Speech.Voice)

	orchestrator := service.NewOrchestrator(service.OrchestratorConfig{
		Messages:  messages,
		Contexts:  contexts,
		Builder:   prompt.NewBuilder(catalog),
		Generator: generator,
		Breaker:   newBreaker("generation", cfg.Generation.Timeout, log),
		Params: models.SamplingParams{
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
			TopP:        cfg.Generation.TopP,
		},
		Metrics: metrics,
		Logger:  log,
	})

	voice := service.NewVoiceService(service.VoiceConfig{
		Transcriber:       transcriber,
		Synthesizer:       synthesizer,
		TranscribeBreaker: newBreaker("transcription", cfg.Transcription.Timeout, log),
		SpeechBreaker:     newBreaker("speech", cfg.Speech.Timeout, log),
		MaxAudioSize:      cfg.Transcription.MaxAudioSize,
		Metrics:           metrics,
		Logger:            log,
	})

	checker := health.NewChecker(log, 30*time.Second)
	checker.RegisterStorageCheck(store.Ping)
	checker.RegisterCollaboratorCheck("generation", generator.Configured)
	checker.RegisterCollaboratorCheck("transcription", voice.TranscriptionConfigured)
	checker.RegisterCollaboratorCheck("speech", voice.SpeechConfigured)

	return &Container{
		Config:       cfg,
		Logger:       log,
		Store:        store,
		Catalog:      catalog,
		Messages:     messages,
		Contexts:     contexts,
		Orchestrator: orchestrator,
		Voice:        voice,
		Generator:    generator,
		Health:       checker,
		Metrics:      metrics,
	}, nil
}

// newBreaker trips after repeated collaborator failures; timeout bounds each call
func newBreaker(name string, timeout time.Duration, log *logger.Logger) *resilience.CircuitBreaker {
	breakerCfg := resilience.DefaultCircuitBreakerConfig(name)
	breakerCfg.Timeout = timeout
	return resilience.NewCircuitBreaker(breakerCfg, log)
}

// Close releases the storage backend
func (c *Container) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
