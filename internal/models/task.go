package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Task описывает поручение, размещённое заказчиком.
type Task struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	PosterID          uuid.UUID       `db:"poster_id" json:"poster_id"`
	WorkerID          *uuid.UUID      `db:"worker_id" json:"worker_id,omitempty"`
	Title             string          `db:"title" json:"title"`
	Description       string          `db:"description" json:"description"`
	Category          string          `db:"category" json:"category"`
	Location          string          `db:"location" json:"location"`
	PriceMin          decimal.Decimal `db:"price_min" json:"price_min"`
	PriceMax          decimal.Decimal `db:"price_max" json:"price_max"`
	Deadline          *time.Time      `db:"deadline" json:"deadline,omitempty"`
	EstimatedDuration *string         `db:"estimated_duration" json:"estimated_duration,omitempty"`
	Details           json.RawMessage `db:"details" json:"details,omitempty"`
	Status            string          `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt       *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// IsTerminal сообщает, что задача завершена или отменена.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}

func (t *Task) invalid(to string) error {
	return fmt.Errorf("%w: task %s -> %s", ErrInvalidTransition, t.Status, to)
}

// AssignWorker назначает исполнителя. Допустимо только из open.
func (t *Task) AssignWorker(workerID uuid.UUID, now time.Time) error {
	if t.Status != TaskStatusOpen {
		return t.invalid(TaskStatusAssigned)
	}
	t.WorkerID = &workerID
	t.Status = TaskStatusAssigned
	t.UpdatedAt = now
	return nil
}

// Start переводит assigned -> in_progress.
func (t *Task) Start(now time.Time) error {
	if t.Status != TaskStatusAssigned {
		return t.invalid(TaskStatusInProgress)
	}
	t.Status = TaskStatusInProgress
	t.UpdatedAt = now
	return nil
}

// MarkCompleted завершает задачу из assigned или in_progress.
func (t *Task) MarkCompleted(now time.Time) error {
	if t.Status != TaskStatusAssigned && t.Status != TaskStatusInProgress {
		return t.invalid(TaskStatusCompleted)
	}
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// Cancel отменяет задачу из любого незавершённого статуса.
func (t *Task) Cancel(now time.Time) error {
	if t.IsTerminal() {
		return t.invalid(TaskStatusCancelled)
	}
	t.Status = TaskStatusCancelled
	t.CancelledAt = &now
	t.UpdatedAt = now
	return nil
}

// PriceRange возвращает диапазон цены для отображения.
func (t *Task) PriceRange() string {
	if t.PriceMin.Equal(t.PriceMax) {
		return "₦" + t.PriceMin.StringFixed(2)
	}
	return fmt.Sprintf("₦%s - ₦%s", t.PriceMin.StringFixed(2), t.PriceMax.StringFixed(2))
}

// IsOverdue сообщает, что дедлайн прошёл, а задача ещё не закрыта.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Deadline != nil && now.After(*t.Deadline) && !t.IsTerminal()
}

// TaskView задача с вычисляемыми полями для ответа API.
type TaskView struct {
	*Task
	PriceRange        string `json:"price_range"`
	IsOverdue         bool   `json:"is_overdue"`
	ApplicationsCount int    `json:"applications_count"`
}

// NewTaskView собирает представление задачи.
func NewTaskView(t *Task, applications int, now time.Time) TaskView {
	return TaskView{
		Task:              t,
		PriceRange:        t.PriceRange(),
		IsOverdue:         t.IsOverdue(now),
		ApplicationsCount: applications,
	}
}

// MaxTaskImages сколько фото можно прикрепить к одной задаче.
const MaxTaskImages = 5

// TaskImage фото, прикреплённое автором к задаче.
type TaskImage struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TaskID     uuid.UUID `db:"task_id" json:"task_id"`
	UploaderID uuid.UUID `db:"uploader_id" json:"uploader_id"`
	URL        string    `db:"url" json:"image_url"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// TaskFilter параметры выборки задач.
type TaskFilter struct {
	Status   string
	Category string
	Location string
	Search   string
	Sort     string
	Limit    int
	Offset   int
}

// Варианты сортировки списка задач
const (
	TaskSortRecent    = "recent"
	TaskSortHighPrice = "high_price"
	TaskSortLowPrice  = "low_price"
)

// TaskApplication отклик исполнителя на задачу, уникален для пары (task, runner).
type TaskApplication struct {
	ID          uuid.UUID           `db:"id" json:"id"`
	TaskID      uuid.UUID           `db:"task_id" json:"task_id"`
	RunnerID    uuid.UUID           `db:"runner_id" json:"runner_id"`
	Message     string              `db:"message" json:"message"`
	OfferAmount decimal.NullDecimal `db:"offer_amount" json:"offer_amount"`
	Status      string              `db:"status" json:"status"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// Decide переводит pending в accepted или rejected.
func (a *TaskApplication) Decide(status string, now time.Time) error {
	if status != ApplicationStatusAccepted && status != ApplicationStatusRejected {
		return fmt.Errorf("%w: %s", ErrInvalidDecision, status)
	}
	if a.Status != ApplicationStatusPending {
		return fmt.Errorf("%w: application %s -> %s", ErrInvalidTransition, a.Status, status)
	}
	a.Status = status
	a.UpdatedAt = now
	return nil
}

// Complete переводит accepted -> completed, после чего доступен отзыв.
func (a *TaskApplication) Complete(now time.Time) error {
	if a.Status != ApplicationStatusAccepted {
		return fmt.Errorf("%w: application %s -> %s", ErrInvalidTransition, a.Status, ApplicationStatusCompleted)
	}
	a.Status = ApplicationStatusCompleted
	a.UpdatedAt = now
	return nil
}

// AgreedAmount сумма, которую заказчик удерживает при принятии отклика.
func (a *TaskApplication) AgreedAmount(t *Task) decimal.Decimal {
	if a.OfferAmount.Valid && a.OfferAmount.Decimal.IsPositive() {
		return a.OfferAmount.Decimal
	}
	return t.PriceMax
}
