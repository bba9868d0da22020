package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/errands-backend/internal/authz"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
)

type mockReviewRepo struct {
	mock.Mock
	task     *models.Task
	runnerID uuid.UUID
}

func (m *mockReviewRepo) Create(ctx context.Context, review *models.Review, guard repository.TaskGuard) error {
	if m.task != nil && guard != nil {
		if err := guard(m.task); err != nil {
			return err
		}
	}
	args := m.Called(ctx, review)
	if args.Error(0) == nil {
		review.ID = uuid.New()
		review.RunnerID = m.runnerID
		if m.task != nil {
			review.TaskID = m.task.ID
		}
	}
	return args.Error(0)
}

func (m *mockReviewRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Review), args.Error(1)
}

func (m *mockReviewRepo) ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) ([]models.Review, error) {
	args := m.Called(ctx, runnerID, limit, offset)
	return args.Get(0).([]models.Review), args.Error(1)
}

func (m *mockReviewRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func TestReviewService_CreateReview(t *testing.T) {
	posterID, runnerID := uuid.New(), uuid.New()
	task := &models.Task{ID: uuid.New(), PosterID: posterID, WorkerID: &runnerID, Status: models.TaskStatusCompleted}
	repo := &mockReviewRepo{task: task, runnerID: runnerID}
	notifier := new(mockNotifier)
	svc := NewReviewService(repo, notifier)
	comment := "  Всё быстро и аккуратно  "

	repo.On("Create", mock.Anything, mock.MatchedBy(func(r *models.Review) bool {
		return r.ReviewerID == posterID && r.Rating == 5 && *r.Comment == "Всё быстро и аккуратно"
	})).Return(nil)
	notifier.On("Notify", mock.Anything, runnerID, models.EventReviewReceived, mock.Anything).Return()

	review, err := svc.CreateReview(context.Background(), authz.Actor{ID: posterID}, uuid.New(), 5, &comment)

	require.NoError(t, err)
	assert.Equal(t, runnerID, review.RunnerID)
	assert.Equal(t, task.ID, review.TaskID)
	notifier.AssertExpectations(t)
}

func TestReviewService_CreateReview_InvalidRating(t *testing.T) {
	repo := new(mockReviewRepo)
	svc := NewReviewService(repo, nil)

	for _, rating := range []int{0, 6} {
		_, err := svc.CreateReview(context.Background(), authz.Actor{ID: uuid.New()}, uuid.New(), rating, nil)
		assert.True(t, apperror.IsValidation(err), rating)
	}
	repo.AssertNumberOfCalls(t, "Create", 0)
}

func TestReviewService_CreateReview_OnlyPoster(t *testing.T) {
	runnerID := uuid.New()
	task := &models.Task{ID: uuid.New(), PosterID: uuid.New(), WorkerID: &runnerID}
	repo := &mockReviewRepo{task: task, runnerID: runnerID}

	_, err := NewReviewService(repo, nil).CreateReview(context.Background(), authz.Actor{ID: runnerID}, uuid.New(), 4, nil)

	assert.True(t, apperror.IsForbidden(err))
}

func TestReviewService_CreateReview_StateErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"duplicate", repository.ErrReviewExists},
		{"not completed", repository.ErrApplicationNotCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posterID := uuid.New()
			repo := &mockReviewRepo{task: &models.Task{ID: uuid.New(), PosterID: posterID}}
			repo.On("Create", mock.Anything, mock.Anything).Return(tt.err)
			notifier := new(mockNotifier)

			_, err := NewReviewService(repo, notifier).CreateReview(context.Background(), authz.Actor{ID: posterID}, uuid.New(), 3, nil)

			assert.True(t, apperror.IsStateConflict(err))
			notifier.AssertNumberOfCalls(t, "Notify", 0)
		})
	}
}

func TestReviewService_ListRunnerReviews(t *testing.T) {
	repo := new(mockReviewRepo)
	runnerID := uuid.New()
	repo.On("GetProfile", mock.Anything, runnerID).Return(&models.UserProfile{UserID: runnerID, Rating: dec("4.5"), ReviewsCount: 2}, nil)
	repo.On("ListByRunner", mock.Anything, runnerID, DefaultPageSize, 0).Return([]models.Review{{Rating: 4}, {Rating: 5}}, nil)

	res, err := NewReviewService(repo, nil).ListRunnerReviews(context.Background(), runnerID, 0, 0)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Profile.ReviewsCount)
	assert.Len(t, res.Reviews, 2)
}

func TestReviewService_GetReview_NotFound(t *testing.T) {
	repo := &mockReviewRepo{}
	svc := NewReviewService(repo, new(mockNotifier))
	id := uuid.New()

	repo.On("GetByID", mock.Anything, id).Return(nil, repository.ErrReviewNotFound)

	_, err := svc.GetReview(context.Background(), id)

	assert.True(t, apperror.IsNotFound(err))
}
