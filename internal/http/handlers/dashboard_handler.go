package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/errands-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// DashboardHandler сводка заказчика и уровень пользователя.
type DashboardHandler struct {
	metrics *service.MetricsService
}

// NewDashboardHandler создаёт хэндлер.
func NewDashboardHandler(metrics *service.MetricsService) *DashboardHandler {
	return &DashboardHandler{metrics: metrics}
}

// Metrics GET /dashboard/metrics
func (h *DashboardHandler) Metrics(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	dashboard, err := h.metrics.Dashboard(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// Tier GET /dashboard/tier
func (h *DashboardHandler) Tier(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	tier, err := h.metrics.Tier(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tier)
}
