package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/authz"
	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/storage"
)

const folderTaskImages = "task-images"

// TaskImageStore фото задач.
type TaskImageStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	AddImage(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, img *models.TaskImage, limit int) error
	ListImages(ctx context.Context, taskID uuid.UUID) ([]models.TaskImage, error)
}

// TaskImageService фото, которые автор прикладывает к поручению.
type TaskImageService struct {
	repo  TaskImageStore
	files storage.FileStorage
}

func NewTaskImageService(repo TaskImageStore, files storage.FileStorage) *TaskImageService {
	return &TaskImageService{repo: repo, files: files}
}

// Upload сохраняет фото и прикрепляет его к задаче actor.
// Если запись не сохранилась, файл удаляется из хранилища.
func (s *TaskImageService) Upload(ctx context.Context, actor authz.Actor, taskID uuid.UUID, file Upload) (*models.TaskImage, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapError(err)
	}
	if err := authz.Authorize(actor, authz.ActionTaskEdit, authz.TaskResource(task)); err != nil {
		return nil, err
	}
	if task.IsTerminal() {
		return nil, mapError(repository.ErrTaskClosed)
	}

	url, err := storeUpload(ctx, s.files, actor.ID, folderTaskImages, file)
	if err != nil {
		return nil, err
	}

	img := &models.TaskImage{UploaderID: actor.ID, URL: url}
	if err := s.repo.AddImage(ctx, taskID, guardFor(actor, authz.ActionTaskEdit), img, models.MaxTaskImages); err != nil {
		discardUpload(ctx, s.files, url)
		return nil, mapError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":  taskID,
		"image_id": img.ID,
	}).Info("task image service: фото прикреплено")
	return img, nil
}

// List возвращает фото задачи.
func (s *TaskImageService) List(ctx context.Context, taskID uuid.UUID) ([]models.TaskImage, error) {
	if _, err := s.repo.GetByID(ctx, taskID); err != nil {
		return nil, mapError(err)
	}
	images, err := s.repo.ListImages(ctx, taskID)
	if err != nil {
		return nil, mapError(err)
	}
	return images, nil
}
