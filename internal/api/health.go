package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"ai-voice-chat/backend/pkg/health"
)

// HealthHandler reports component health alongside process details
type HealthHandler struct {
	checker     *health.Checker
	version     string
	startedAt   time.Time
	connections func() int
}

// NewHealthHandler creates a health handler. connections may be nil when
// no websocket hub is running.
func NewHealthHandler(checker *health.Checker, version string, connections func() int) *HealthHandler {
	return &HealthHandler{
		checker:     checker,
		version:     version,
		startedAt:   time.Now(),
		connections: connections,
	}
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status     string                       `json:"status"`
	Version    string                       `json:"version"`
	Timestamp  time.Time                    `json:"timestamp"`
	Uptime     string                       `json:"uptime"`
	Components map[string]*health.Component `json:"components"`
	WebSocket  map[string]int               `json:"websocket"`
	Memory     map[string]uint64            `json:"memory"`
}

// Health returns 200 while every critical component is up, 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if !h.checker.IsSystemHealthy() {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	active := 0
	if h.connections != nil {
		active = h.connections()
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.JSON(code, HealthResponse{
		Status:     status,
		Version:    h.version,
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Components: h.checker.GetStatus(),
		WebSocket:  map[string]int{"active_connections": active},
		Memory: map[string]uint64{
			"alloc_mb":  memStats.Alloc / 1024 / 1024,
			"sys_mb":    memStats.Sys / 1024 / 1024,
			"gc_cycles": uint64(memStats.NumGC),
		},
	})
}

// RegisterHealthRoutes registers both health paths for compatibility
func (h *HealthHandler) RegisterHealthRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/api/health", h.Health)
}
