package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errands-backend/internal/authz"
	"github.com/ignatzorin/errands-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// TaskHandler публикация задач и переходы их жизненного цикла.
type TaskHandler struct {
	tasks  *service.TaskService
	images *service.TaskImageService
}

// NewTaskHandler создаёт хэндлер.
func NewTaskHandler(tasks *service.TaskService, images *service.TaskImageService) *TaskHandler {
	return &TaskHandler{tasks: tasks, images: images}
}

type createTaskRequest struct {
	Title             string          `json:"title" binding:"required"`
	Description       string          `json:"description" binding:"required"`
	Category          string          `json:"category" binding:"required"`
	Location          string          `json:"location" binding:"required"`
	PriceMin          decimal.Decimal `json:"price_min"`
	PriceMax          decimal.Decimal `json:"price_max"`
	Deadline          *time.Time      `json:"deadline"`
	EstimatedDuration *string         `json:"estimated_duration"`
	Details           json.RawMessage `json:"details"`
}

// Create POST /tasks
func (h *TaskHandler) Create(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req createTaskRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), actor, service.CreateTaskInput{
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Location:          req.Location,
		PriceMin:          req.PriceMin,
		PriceMax:          req.PriceMax,
		Deadline:          req.Deadline,
		EstimatedDuration: req.EstimatedDuration,
		Details:           req.Details,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// ListMine GET /tasks/mine?status=
func (h *TaskHandler) ListMine(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	tasks, err := h.tasks.ListMine(c.Request.Context(), actor, models.TaskFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// ListAvailable GET /tasks/available?category=&location=&search=&sort=
func (h *TaskHandler) ListAvailable(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	tasks, err := h.tasks.ListAvailable(c.Request.Context(), actor, models.TaskFilter{
		Category: c.Query("category"),
		Location: c.Query("location"),
		Search:   c.Query("search"),
		Sort:     c.Query("sort"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Journey GET /tasks/journey
func (h *TaskHandler) Journey(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	journey, err := h.tasks.Journey(c.Request.Context(), actor)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, journey)
}

// UploadImage POST /tasks/:id/images (multipart: image)
func (h *TaskHandler) UploadImage(c *gin.Context) {
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

	file, closeFile, err := openUpload(c, "image", pictureUpload)
	if err != nil {
		common.Fail(c, err)
		return
	}
	defer closeFile()

	img, err := h.images.Upload(c.Request.Context(), actor, id, file)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, img)
}

// ListImages GET /tasks/:id/images
func (h *TaskHandler) ListImages(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	images, err := h.images.List(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

// Get GET /tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
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

	task, err := h.tasks.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Fund POST /tasks/:id/fund
func (h *TaskHandler) Fund(c *gin.Context) { h.transition(c, h.tasks.Fund) }

// Start POST /tasks/:id/start
func (h *TaskHandler) Start(c *gin.Context) { h.transition(c, h.tasks.Start) }

// Complete POST /tasks/:id/complete
func (h *TaskHandler) Complete(c *gin.Context) { h.transition(c, h.tasks.Complete) }

// Cancel POST /tasks/:id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) { h.transition(c, h.tasks.Cancel) }

type transitionFunc func(ctx context.Context, actor authz.Actor, taskID uuid.UUID) (*repository.TaskTransition, error)

func (h *TaskHandler) transition(c *gin.Context, fn transitionFunc) {
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

	tr, err := fn(c.Request.Context(), actor, id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	resp := gin.H{"task": tr.Task}
	if tr.Escrow != nil {
		resp["escrow"] = tr.Escrow
	}
	c.JSON(http.StatusOK, resp)
}
