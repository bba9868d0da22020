package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
)

// Pinger проверка доступности базы. *sqlx.DB подходит.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler предоставляет endpoint для проверки здоровья сервиса.
type HealthHandler struct {
	db      Pinger
	stats   func() PoolStats
	timeout time.Duration
}

// PoolStats состояние пула соединений.
type PoolStats struct {
	OpenConnections    int   `json:"open_connections"`
	InUse              int   `json:"in_use"`
	Idle               int   `json:"idle"`
	MaxOpenConnections int   `json:"max_open_connections"`
	WaitCount          int64 `json:"wait_count"`
}

// NewHealthHandler создаёт новый health handler. stats может быть nil.
func NewHealthHandler(db Pinger, stats func() PoolStats) *HealthHandler {
	return &HealthHandler{db: db, stats: stats, timeout: 3 * time.Second}
}

// HealthResponse представляет ответ health check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Pool      *PoolStats        `json:"pool,omitempty"`
}

// Health обрабатывает GET /api/health.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err.Error()}).Error("health: база недоступна")
		resp.Checks["database"] = "unhealthy"
		resp.Status = "unhealthy"
	} else {
		resp.Checks["database"] = "healthy"
	}

	if h.stats != nil {
		stats := h.stats()
		resp.Pool = &stats
		resp.Checks["connection_pool"] = "healthy"
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			resp.Checks["connection_pool"] = "saturated"
		}
	}

	statusCode := http.StatusOK
	if resp.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, resp)
}
