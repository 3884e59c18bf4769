package router

import (
	"ai-voice-chat/backend/internal/api"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupHealthRoutes registers health check and metrics endpoints
func (r *Router) setupHealthRoutes() {
	healthHandler := api.NewHealthHandler(r.Container.Health, r.Config.Server.Version, r.Hub.ActiveConnections)
	healthHandler.RegisterHealthRoutes(r.Engine)

	if r.Config.Observability.MetricsEnabled {
		r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}
