package service

import (
	"context"
	"strings"
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

type mockTaskImageStore struct {
	mock.Mock
}

func (m *mockTaskImageStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	args := m.Called(ctx, id)
	if t, ok := args.Get(0).(*models.Task); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTaskImageStore) AddImage(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, img *models.TaskImage, limit int) error {
	args := m.Called(ctx, taskID, img, limit)
	if args.Error(0) == nil {
		img.ID = uuid.New()
		img.TaskID = taskID
	}
	return args.Error(0)
}

func (m *mockTaskImageStore) ListImages(ctx context.Context, taskID uuid.UUID) ([]models.TaskImage, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).([]models.TaskImage), args.Error(1)
}

func openImageTask(posterID uuid.UUID) *models.Task {
	return &models.Task{ID: uuid.New(), PosterID: posterID, Status: models.TaskStatusOpen}
}

func TestTaskImageService_Upload(t *testing.T) {
	poster := authz.Actor{ID: uuid.New(), Role: models.RoleRequester}
	task := openImageTask(poster.ID)
	store, files := new(mockTaskImageStore), new(mockFileStorage)
	svc := NewTaskImageService(store, files)

	store.On("GetByID", mock.Anything, task.ID).Return(task, nil)
	files.On("Save", mock.Anything, poster.ID, folderTaskImages, "list.jpg").
		Return("https://cdn.example.com/list.jpg", 1024, nil)
	store.On("AddImage", mock.Anything, task.ID, mock.MatchedBy(func(img *models.TaskImage) bool {
		return img.URL == "https://cdn.example.com/list.jpg" && img.UploaderID == poster.ID
	}), models.MaxTaskImages).Return(nil)

	img, err := svc.Upload(context.Background(), poster, task.ID, Upload{Filename: "list.jpg", Reader: strings.NewReader("jpeg")})

	require.NoError(t, err)
	assert.Equal(t, task.ID, img.TaskID)
	files.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestTaskImageService_Upload_OnlyPoster(t *testing.T) {
	task := openImageTask(uuid.New())
	store, files := new(mockTaskImageStore), new(mockFileStorage)
	svc := NewTaskImageService(store, files)
	store.On("GetByID", mock.Anything, task.ID).Return(task, nil)

	_, err := svc.Upload(context.Background(), authz.Actor{ID: uuid.New()}, task.ID, Upload{Filename: "a.jpg", Reader: strings.NewReader("x")})

	assert.True(t, apperror.IsForbidden(err))
	files.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskImageService_Upload_ClosedTask(t *testing.T) {
	poster := authz.Actor{ID: uuid.New()}
	task := openImageTask(poster.ID)
	task.Status = models.TaskStatusCompleted
	store, files := new(mockTaskImageStore), new(mockFileStorage)
	svc := NewTaskImageService(store, files)
	store.On("GetByID", mock.Anything, task.ID).Return(task, nil)

	_, err := svc.Upload(context.Background(), poster, task.ID, Upload{Filename: "a.jpg", Reader: strings.NewReader("x")})

	assert.True(t, apperror.IsStateConflict(err))
	files.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskImageService_Upload_LimitDiscardsFile(t *testing.T) {
	poster := authz.Actor{ID: uuid.New()}
	task := openImageTask(poster.ID)
	store, files := new(mockTaskImageStore), new(mockFileStorage)
	svc := NewTaskImageService(store, files)

	store.On("GetByID", mock.Anything, task.ID).Return(task, nil)
	files.On("Save", mock.Anything, poster.ID, folderTaskImages, "sixth.jpg").
		Return("https://cdn.example.com/sixth.jpg", 10, nil)
	store.On("AddImage", mock.Anything, task.ID, mock.Anything, models.MaxTaskImages).
		Return(repository.ErrTaskImageLimit)
	files.On("Delete", mock.Anything, "https://cdn.example.com/sixth.jpg").Return(nil)

	_, err := svc.Upload(context.Background(), poster, task.ID, Upload{Filename: "sixth.jpg", Reader: strings.NewReader("x")})

	assert.True(t, apperror.IsValidation(err))
	files.AssertExpectations(t)
}

func TestTaskImageService_Upload_MissingFile(t *testing.T) {
	poster := authz.Actor{ID: uuid.New()}
	task := openImageTask(poster.ID)
	store, files := new(mockTaskImageStore), new(mockFileStorage)
	store.On("GetByID", mock.Anything, task.ID).Return(task, nil)

	_, err := NewTaskImageService(store, files).Upload(context.Background(), poster, task.ID, Upload{})

	assert.True(t, apperror.IsValidation(err))
}

func TestTaskImageService_List_UnknownTask(t *testing.T) {
	store := new(mockTaskImageStore)
	id := uuid.New()
	store.On("GetByID", mock.Anything, id).Return(nil, repository.ErrTaskNotFound)

	_, err := NewTaskImageService(store, new(mockFileStorage)).List(context.Background(), id)

	assert.True(t, apperror.IsNotFound(err))
}
