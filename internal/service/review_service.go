package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/authz"
	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/validation"
)

// ReviewRepository хранилище отзывов об исполнителях.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review, guard repository.TaskGuard) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error)
	ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) ([]models.Review, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
}

// RunnerReviews рейтинг исполнителя и страница отзывов.
type RunnerReviews struct {
	Profile *models.UserProfile `json:"profile"`
	Reviews []models.Review     `json:"reviews"`
}

type ReviewService struct {
	repo     ReviewRepository
	notifier Notifier
}

func NewReviewService(repo ReviewRepository, notifier Notifier) *ReviewService {
	return &ReviewService{repo: repo, notifier: notifier}
}

// CreateReview оставляет отзыв по завершённому отклику. Отзыв пишет автор задачи, один на отклик.
func (s *ReviewService) CreateReview(ctx context.Context, actor authz.Actor, applicationID uuid.UUID, rating int, comment *string) (*models.Review, error) {
	if err := validation.ValidateRating(rating); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if comment != nil {
		trimmed := strings.TrimSpace(*comment)
		if err := validation.ValidateLength("комментарий", trimmed, 0, validation.MaxReviewCommentLength); err != nil {
			return nil, apperror.Validation(err.Error())
		}
		if trimmed == "" {
			comment = nil
		} else {
			comment = &trimmed
		}
	}

	review := &models.Review{
		ApplicationID: applicationID,
		ReviewerID:    actor.ID,
		Rating:        rating,
		Comment:       comment,
	}
	if err := s.repo.Create(ctx, review, guardFor(actor, authz.ActionReviewCreate)); err != nil {
		return nil, mapError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"review_id": review.ID,
		"runner_id": review.RunnerID,
		"rating":    rating,
	}).Info("review service: отзыв создан")

	if s.notifier != nil {
		s.notifier.Notify(ctx, review.RunnerID, models.EventReviewReceived, map[string]any{
			"review_id": review.ID,
			"task_id":   review.TaskID,
			"rating":    rating,
		})
	}
	return review, nil
}

// GetReview возвращает отзыв по ID.
func (s *ReviewService) GetReview(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return review, nil
}

// ListRunnerReviews возвращает рейтинг исполнителя и его отзывы.
func (s *ReviewService) ListRunnerReviews(ctx context.Context, runnerID uuid.UUID, limit, offset int) (*RunnerReviews, error) {
	limit, offset = normalizePage(limit, offset)

	profile, err := s.repo.GetProfile(ctx, runnerID)
	if err != nil {
		return nil, mapError(err)
	}
	reviews, err := s.repo.ListByRunner(ctx, runnerID, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	return &RunnerReviews{Profile: profile, Reviews: reviews}, nil
}
