package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/authz"
	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/metrics"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/validation"
)

// ApplicationStore хранилище откликов.
type ApplicationStore interface {
	Create(ctx context.Context, app *models.TaskApplication) error
	Exists(ctx context.Context, taskID, runnerID uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.TaskApplication, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]repository.ApplicationWithRunner, error)
	ListByRunner(ctx context.Context, runnerID uuid.UUID, status string, limit, offset int) ([]repository.ApplicationWithTask, error)
	Reject(ctx context.Context, id uuid.UUID, guard repository.TaskGuard, now time.Time) (*models.TaskApplication, error)
	RunnerDetails(ctx context.Context, runnerID uuid.UUID) (*models.RunnerDetails, error)
}

// ApplyInput отклик исполнителя.
type ApplyInput struct {
	Message     string
	OfferAmount *decimal.Decimal
}

// DecisionResult итог решения по отклику.
type DecisionResult struct {
	Application *models.TaskApplication `json:"application"`
	Task        *models.Task            `json:"task,omitempty"`
	Escrow      *models.Escrow          `json:"escrow,omitempty"`
}

// ApplicationService отклики исполнителей и решения заказчика.
type ApplicationService struct {
	apps     ApplicationStore
	tasks    TaskStore
	notifier Notifier
	now      func() time.Time
}

// NewApplicationService создаёт сервис откликов.
func NewApplicationService(apps ApplicationStore, tasks TaskStore, notifier Notifier) *ApplicationService {
	return &ApplicationService{apps: apps, tasks: tasks, notifier: notifier, now: time.Now}
}

// Apply создаёт отклик actor на открытую задачу.
func (s *ApplicationService) Apply(ctx context.Context, actor authz.Actor, taskID uuid.UUID, in ApplyInput) (*models.TaskApplication, error) {
	message := strings.TrimSpace(in.Message)
	if err := validation.ValidateLength("сообщение", message, 0, validation.MaxApplicationMessageLength); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	offer := decimal.NullDecimal{}
	if in.OfferAmount != nil {
		if err := validation.ValidateAmount("предложенная сумма", *in.OfferAmount); err != nil {
			return nil, apperror.Validation(err.Error())
		}
		offer = decimal.NewNullDecimal(*in.OfferAmount)
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapError(err)
	}
	if err := authz.Authorize(actor, authz.ActionTaskApply, authz.TaskResource(task)); err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusOpen {
		return nil, apperror.StateConflict("задача больше не принимает отклики")
	}

	exists, err := s.apps.Exists(ctx, taskID, actor.ID)
	if err != nil {
		return nil, mapError(err)
	}
	if exists {
		return nil, mapError(repository.ErrDuplicateApplication)
	}

	app := &models.TaskApplication{
		TaskID:      taskID,
		RunnerID:    actor.ID,
		Message:     message,
		OfferAmount: offer,
	}
	// уникальный индекс ловит гонку двух одновременных откликов
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, mapError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"application_id": app.ID,
		"task_id":        taskID,
		"runner_id":      actor.ID,
	}).Info("application service: отклик создан")

	s.notify(ctx, task.PosterID, models.EventApplicationReceived, map[string]any{
		"task_id":        taskID,
		"application_id": app.ID,
		"title":          task.Title,
	})
	return app, nil
}

// Decide принимает или отклоняет отклик. Принятие назначает исполнителя,
// отклоняет остальные отклики и удерживает escrow.
func (s *ApplicationService) Decide(ctx context.Context, actor authz.Actor, applicationID uuid.UUID, status string) (*DecisionResult, error) {
	guard := guardFor(actor, authz.ActionApplicationDecide)

	switch status {
	case models.ApplicationStatusAccepted:
		tr, err := s.tasks.AcceptApplication(ctx, applicationID, guard, s.now())
		if err != nil {
			if errors.Is(err, models.ErrInsufficientBalance) {
				metrics.LedgerRejectedTotal.WithLabelValues("insufficient_balance").Inc()
			}
			return nil, mapError(err)
		}
		metrics.TaskTransitionsTotal.WithLabelValues(tr.Task.Status).Inc()
		recordEscrow(tr.Escrow, models.TransactionTypeDebit)

		logger.Log.WithFields(logrus.Fields{
			"application_id": applicationID,
			"task_id":        tr.Task.ID,
			"runner_id":      tr.Application.RunnerID,
			"rejected":       len(tr.RejectedRunners),
		}).Info("application service: отклик принят")

		data := map[string]any{"task_id": tr.Task.ID, "title": tr.Task.Title}
		s.notify(ctx, tr.Application.RunnerID, models.EventApplicationAccepted, data)
		for _, runnerID := range tr.RejectedRunners {
			s.notify(ctx, runnerID, models.EventApplicationRejected, data)
		}
		return &DecisionResult{Application: tr.Application, Task: tr.Task, Escrow: tr.Escrow}, nil

	case models.ApplicationStatusRejected:
		app, err := s.apps.Reject(ctx, applicationID, guard, s.now())
		if err != nil {
			return nil, mapError(err)
		}
		s.notify(ctx, app.RunnerID, models.EventApplicationRejected, map[string]any{"task_id": app.TaskID})
		return &DecisionResult{Application: app}, nil
	}

	return nil, mapError(models.ErrInvalidDecision)
}

// ListForTask возвращает отклики на задачу. Доступно автору задачи.
func (s *ApplicationService) ListForTask(ctx context.Context, actor authz.Actor, taskID uuid.UUID) ([]repository.ApplicationWithRunner, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, mapError(err)
	}
	if err := authz.Authorize(actor, authz.ActionTaskViewApplications, authz.TaskResource(task)); err != nil {
		return nil, err
	}

	apps, err := s.apps.ListByTask(ctx, taskID)
	if err != nil {
		return nil, mapError(err)
	}
	return apps, nil
}

// ListMine возвращает отклики actor с кратким описанием задач.
func (s *ApplicationService) ListMine(ctx context.Context, actor authz.Actor, status string, limit, offset int) ([]repository.ApplicationWithTask, error) {
	switch status {
	case "", models.ApplicationStatusPending, models.ApplicationStatusAccepted,
		models.ApplicationStatusRejected, models.ApplicationStatusCompleted:
	default:
		return nil, apperror.Validation("неизвестный статус отклика")
	}
	limit, offset = normalizePage(limit, offset)

	apps, err := s.apps.ListByRunner(ctx, actor.ID, status, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	return apps, nil
}

// RunnerDetails возвращает карточку исполнителя, откликнувшегося на задачу actor.
func (s *ApplicationService) RunnerDetails(ctx context.Context, actor authz.Actor, applicationID uuid.UUID) (*models.RunnerDetails, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, mapError(err)
	}
	task, err := s.tasks.GetByID(ctx, app.TaskID)
	if err != nil {
		return nil, mapError(err)
	}
	if err := authz.Authorize(actor, authz.ActionApplicationViewRunner, authz.TaskResource(task)); err != nil {
		return nil, err
	}

	details, err := s.apps.RunnerDetails(ctx, app.RunnerID)
	if err != nil {
		return nil, mapError(err)
	}
	return details, nil
}

func (s *ApplicationService) notify(ctx context.Context, userID uuid.UUID, event string, data any) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, event, data)
	}
}
