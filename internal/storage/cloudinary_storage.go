package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
	"github.com/google/uuid"
)

const cloudinaryRootFolder = "errands"

// CloudinaryStorage хранит файлы в Cloudinary.
type CloudinaryStorage struct {
	uploader       *uploader.API
	maxUploadBytes int64
}

// NewCloudinaryStorage создаёт хранилище по ключам аккаунта.
func NewCloudinaryStorage(cloudName, apiKey, apiSecret string, maxUploadMB int64) (*CloudinaryStorage, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("storage: cloudinary config: %w", err)
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: cloudinary uploader: %w", err)
	}
	return &CloudinaryStorage{uploader: up, maxUploadBytes: maxUploadMB * 1024 * 1024}, nil
}

// Save загружает файл в папку errands/<folder> и возвращает https URL.
func (s *CloudinaryStorage) Save(ctx context.Context, userID uuid.UUID, folder, _ string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxUploadBytes+1))
	if err != nil {
		return "", 0, fmt.Errorf("storage: ошибка чтения файла: %w", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return "", 0, ErrFileTooLarge
	}

	result, err := s.uploader.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:   cloudinaryRootFolder + "/" + sanitizeFilename(folder),
		PublicID: fmt.Sprintf("%s_%d", userID.String(), time.Now().UnixNano()),
	})
	if err != nil {
		return "", 0, fmt.Errorf("storage: cloudinary upload: %w", err)
	}
	if result.Error.Message != "" {
		return "", 0, fmt.Errorf("storage: cloudinary upload: %s", result.Error.Message)
	}

	return result.SecureURL, int64(len(data)), nil
}

// Delete удаляет ресурс по URL вида .../upload/v123/errands/folder/id.ext.
func (s *CloudinaryStorage) Delete(ctx context.Context, url string) error {
	publicID := publicIDFromURL(url)
	if publicID == "" {
		return fmt.Errorf("storage: не удалось определить public_id из %q", url)
	}
	if _, err := s.uploader.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("storage: cloudinary destroy: %w", err)
	}
	return nil
}

func publicIDFromURL(url string) string {
	idx := strings.Index(url, "/"+cloudinaryRootFolder+"/")
	if idx < 0 {
		return ""
	}
	id := url[idx+1:]
	if dot := strings.LastIndex(id, "."); dot > strings.LastIndex(id, "/") {
		id = id[:dot]
	}
	return id
}
