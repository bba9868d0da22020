package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errands-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// ApplicationHandler отклики исполнителей.
type ApplicationHandler struct {
	apps *service.ApplicationService
}

// NewApplicationHandler создаёт хэндлер.
func NewApplicationHandler(apps *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{apps: apps}
}

// Apply POST /tasks/:id/applications
func (h *ApplicationHandler) Apply(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Message     string           `json:"message"`
		OfferAmount *decimal.Decimal `json:"offer_amount"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	app, err := h.apps.Apply(c.Request.Context(), actor, taskID, service.ApplyInput{
		Message:     req.Message,
		OfferAmount: req.OfferAmount,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// ListForTask GET /tasks/:id/applications
func (h *ApplicationHandler) ListForTask(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	apps, err := h.apps.ListForTask(c.Request.Context(), actor, taskID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// ListMine GET /applications/mine?status=
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	apps, err := h.apps.ListMine(c.Request.Context(), actor, c.Query("status"), limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps})
}

// Decide PUT /applications/:id/status
func (h *ApplicationHandler) Decide(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.apps.Decide(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunnerDetails GET /applications/:id/runner
func (h *ApplicationHandler) RunnerDetails(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	details, err := h.apps.RunnerDetails(c.Request.Context(), actor, id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}
