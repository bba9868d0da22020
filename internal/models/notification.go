package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// События, о которых уведомляются пользователи
const (
	EventApplicationReceived = "application.received"
	EventApplicationAccepted = "application.accepted"
	EventApplicationRejected = "application.rejected"
	EventTaskStarted         = "task.started"
	EventTaskCompleted       = "task.completed"
	EventTaskCancelled       = "task.cancelled"
	EventEscrowReleased      = "escrow.released"
	EventEscrowRefunded      = "escrow.refunded"
	EventWalletFunded        = "wallet.funded"
	EventReviewReceived      = "review.received"
)

// Notification уведомление пользователя. Payload хранит данные события.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Event     string          `db:"event" json:"event"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	ReadAt    *time.Time      `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// IsRead сообщает, что уведомление прочитано.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// NotificationFilter условия выборки ленты уведомлений.
type NotificationFilter struct {
	UnreadOnly bool
	Event      string
	Limit      int
	Offset     int
}
