package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errands-backend/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository хранит ленту уведомлений пользователей.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет уведомление и заполняет id и created_at.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	payload := n.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO notifications (user_id, event, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		n.UserID, n.Event, payload,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("notification repository: create %w", err)
	}
	return nil
}

// List возвращает ленту пользователя, новые сверху.
func (r *NotificationRepository) List(ctx context.Context, userID uuid.UUID, filter models.NotificationFilter) ([]models.Notification, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{userID}

	if filter.UnreadOnly {
		where = append(where, "read_at IS NULL")
	}
	if filter.Event != "" {
		args = append(args, filter.Event)
		where = append(where, fmt.Sprintf("event = $%d", len(args)))
	}

	query := "SELECT id, user_id, event, payload, read_at, created_at FROM notifications WHERE " +
		strings.Join(where, " AND ") + " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	notifications := []models.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("notification repository: list %w", err)
	}
	return notifications, nil
}

// MarkAsRead проставляет read_at. Повторная отметка сохраняет первое время прочтения,
// чужое уведомление считается ненайденным.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("notification repository: mark as read %w", err)
	}
	return notificationAffected(res.RowsAffected())
}

// MarkAllAsRead отмечает непрочитанные уведомления и возвращает их число.
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("notification repository: mark all as read %w", err)
	}
	return res.RowsAffected()
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("notification repository: delete %w", err)
	}
	return notificationAffected(res.RowsAffected())
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("notification repository: count unread %w", err)
	}
	return count, nil
}

func notificationAffected(n int64, err error) error {
	if err != nil {
		return fmt.Errorf("notification repository: rows affected %w", err)
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
