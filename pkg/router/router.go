package router

import (
	"context"

	"ai-voice-chat/backend/internal/api"
	"ai-voice-chat/backend/internal/ws"
	"ai-voice-chat/backend/pkg/config"
	"ai-voice-chat/backend/pkg/di"
	"ai-voice-chat/backend/pkg/errors"
	"ai-voice-chat/backend/pkg/logger"
	"ai-voice-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Hub       *ws.Hub
	Config    *config.Config

	limiter *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Request IDs first so every later log line carries one
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	limiterOpts := middleware.DefaultRateLimiterOptions()
	limiterOpts.Limit = rate.Limit(cfg.Security.RateLimit)
	limiterOpts.Burst = cfg.Security.RateLimitBurst
	limiter := middleware.NewRateLimiter(container.Logger, limiterOpts)
	engine.Use(limiter.Middleware())

	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))

	hub := ws.NewHub(ws.HubConfig{
		Chat:           container.Orchestrator,
		History:        container.Messages,
		Transcriber:    container.Voice,
		Logger:         container.Logger,
		AllowedOrigins: cfg.Security.AllowedOrigins,
		TurnTimeout:    cfg.Server.Timeout,
	})

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Hub:       hub,
		Config:    cfg,
		limiter:   limiter,
	}
}

// Start runs the websocket hub and the limiter cleanup until ctx is done
func (r *Router) Start(ctx context.Context) {
	go r.Hub.Run(ctx)
	go r.limiter.RunCleanup(ctx)
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.setupHealthRoutes()

	apiGroup := r.Engine.Group("/api")
	apiGroup.Use(middleware.BodyLimit(r.Config.Security.MaxBodySize))
	if r.Config.Assets.OpenAPISchemaPath != "" {
		r.AddOpenAPIValidation(apiGroup, r.Config.Assets.OpenAPISchemaPath)
	}

	api.NewChatController(r.Container.Orchestrator).RegisterRoutes(apiGroup)
	api.NewVoiceController(r.Container.Voice, r.Config.Transcription.MaxAudioSize).RegisterRoutes(apiGroup)
	api.NewSessionController(r.Container.Messages, r.Container.Contexts).RegisterRoutes(apiGroup)

	r.Engine.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(r.Hub, c)
	})
}
