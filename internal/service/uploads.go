package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/storage"
)

// storeUpload сохраняет проверенный файл в папку пользователя и возвращает URL.
func storeUpload(ctx context.Context, files storage.FileStorage, userID uuid.UUID, folder string, file Upload) (string, error) {
	if file.Reader == nil {
		return "", apperror.Validation("файл обязателен")
	}
	url, _, err := files.Save(ctx, userID, folder, file.Filename, file.Reader)
	if err != nil {
		if errors.Is(err, storage.ErrFileTooLarge) {
			return "", apperror.Validation("файл слишком большой")
		}
		return "", apperror.Internal(err)
	}
	return url, nil
}

// discardUpload удаляет файл, который не удалось привязать к записи.
func discardUpload(ctx context.Context, files storage.FileStorage, url string) {
	if err := files.Delete(ctx, url); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"url":   url,
			"error": err.Error(),
		}).Warn("service: не удалось удалить файл")
	}
}
