package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/goroutine"
	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/models"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, filter models.NotificationFilter) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Pusher доставляет событие подключённым клиентам пользователя.
type Pusher interface {
	Push(userID uuid.UUID, eventType string, data any) error
}

// NotificationService содержит бизнес-логику работы с уведомлениями.
type NotificationService struct {
	repo   NotificationRepository
	pusher Pusher
	async  func(ctx context.Context, fn func(context.Context))
}

// NewNotificationService создаёт новый сервис уведомлений. pusher может быть nil.
func NewNotificationService(repo NotificationRepository, pusher Pusher) *NotificationService {
	return &NotificationService{
		repo:   repo,
		pusher: pusher,
		async:  goroutine.SafeGoWithContext,
	}
}

// Notify сохраняет уведомление и отправляет его по WebSocket в фоне.
// Вызывается после фиксации транзакции, ошибки только логируются.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, event string, data any) {
	s.async(ctx, func(ctx context.Context) {
		if _, err := s.CreateNotification(ctx, userID, event, data); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id": userID,
				"event":   event,
				"error":   err.Error(),
			}).Warn("notification service: не удалось доставить уведомление")
		}
	})
}

// CreateNotification сохраняет уведомление и отправляет его подключённым клиентам.
func (s *NotificationService) CreateNotification(ctx context.Context, userID uuid.UUID, event string, data any) (*models.Notification, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal payload %w", err)
	}

	notification := &models.Notification{
		UserID:  userID,
		Event:   event,
		Payload: payload,
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	if s.pusher != nil {
		if err := s.pusher.Push(userID, event, notification); err != nil {
			return notification, fmt.Errorf("notification service: push %w", err)
		}
	}

	return notification, nil
}

// ListNotifications возвращает ленту уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, filter models.NotificationFilter) ([]models.Notification, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	filter.Event = strings.TrimSpace(filter.Event)
	list, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, mapError(err)
	}
	return list, nil
}

// MarkAsRead отмечает уведомление как прочитанное. Чужое уведомление не найдено.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	return mapError(s.repo.MarkAsRead(ctx, id, userID))
}

// MarkAllAsRead отмечает все уведомления пользователя как прочитанные.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// DeleteNotification удаляет уведомление пользователя.
func (s *NotificationService) DeleteNotification(ctx context.Context, id, userID uuid.UUID) error {
	return mapError(s.repo.Delete(ctx, id, userID))
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}
