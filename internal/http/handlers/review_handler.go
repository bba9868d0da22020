package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/errands-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errands-backend/internal/service"
)

type ReviewHandler struct {
	reviews *service.ReviewService
}

func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// CreateReview POST /applications/:id/review
func (h *ReviewHandler) CreateReview(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	applicationID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Rating  int     `json:"rating"`
		Comment *string `json:"comment"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	review, err := h.reviews.CreateReview(c.Request.Context(), actor, applicationID, req.Rating, req.Comment)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// GetReview GET /reviews/:id
func (h *ReviewHandler) GetReview(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	review, err := h.reviews.GetReview(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// ListRunnerReviews GET /users/:id/reviews
func (h *ReviewHandler) ListRunnerReviews(c *gin.Context) {
	runnerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	res, err := h.reviews.ListRunnerReviews(c.Request.Context(), runnerID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
