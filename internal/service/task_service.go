package service

import (
	"context"
	"encoding/json"
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

// TaskStore хранилище задач и переходов их жизненного цикла.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetWithCount(ctx context.Context, id uuid.UUID) (*repository.TaskWithCount, error)
	GetEscrow(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error)
	ListByPoster(ctx context.Context, posterID uuid.UUID, filter models.TaskFilter) ([]repository.TaskWithCount, error)
	ListAvailable(ctx context.Context, userID uuid.UUID, filter models.TaskFilter) ([]repository.TaskWithCount, error)
	AcceptApplication(ctx context.Context, applicationID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error)
	FundTask(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error)
	StartTask(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error)
	CancelTask(ctx context.Context, taskID uuid.UUID, guard repository.TaskGuard, now time.Time) (*repository.TaskTransition, error)
}

// CreateTaskInput данные новой задачи.
type CreateTaskInput struct {
	Title             string
	Description       string
	Category          string
	Location          string
	PriceMin          decimal.Decimal
	PriceMax          decimal.Decimal
	Deadline          *time.Time
	EstimatedDuration *string
	Details           json.RawMessage
}

// TaskDetail задача с escrow. Escrow виден только участникам задачи.
type TaskDetail struct {
	models.TaskView
	Escrow *models.Escrow `json:"escrow,omitempty"`
}

// TaskService жизненный цикл задач и движение средств escrow.
type TaskService struct {
	repo     TaskStore
	notifier Notifier
	now      func() time.Time
}

// NewTaskService создаёт сервис задач. notifier может быть nil.
func NewTaskService(repo TaskStore, notifier Notifier) *TaskService {
	return &TaskService{repo: repo, notifier: notifier, now: time.Now}
}

// Create размещает задачу от имени actor.
func (s *TaskService) Create(ctx context.Context, actor authz.Actor, in CreateTaskInput) (*models.TaskView, error) {
	if err := validateTaskInput(in, s.now()); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	task := &models.Task{
		PosterID:          actor.ID,
		Title:             strings.TrimSpace(in.Title),
		Description:       strings.TrimSpace(in.Description),
		Category:          in.Category,
		Location:          strings.TrimSpace(in.Location),
		PriceMin:          in.PriceMin,
		PriceMax:          in.PriceMax,
		Deadline:          in.Deadline,
		EstimatedDuration: in.EstimatedDuration,
		Details:           in.Details,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, mapError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"poster_id": actor.ID,
		"category":  task.Category,
	}).Info("task service: задача создана")

	view := models.NewTaskView(task, 0, s.now())
	return &view, nil
}

func validateTaskInput(in CreateTaskInput, now time.Time) error {
	if err := validation.ValidateTaskTitle(in.Title); err != nil {
		return err
	}
	if err := validation.ValidateTaskDescription(in.Description); err != nil {
		return err
	}
	if _, ok := models.ValidCategories[in.Category]; !ok {
		return errors.New("неизвестная категория")
	}
	if err := validation.ValidateLocation(in.Location); err != nil {
		return err
	}
	if err := validation.ValidatePriceRange(in.PriceMin, in.PriceMax); err != nil {
		return err
	}
	if in.Deadline != nil && !in.Deadline.After(now) {
		return errors.New("дедлайн должен быть в будущем")
	}
	return validation.ValidateTaskDetails(in.Category, in.Details)
}

// TaskJourney стартовый экран заказчика: последняя задача или приглашение разместить первую.
type TaskJourney struct {
	HasTasks bool             `json:"has_tasks"`
	Message  string           `json:"message"`
	Action   string           `json:"action,omitempty"`
	Task     *models.TaskView `json:"task,omitempty"`
}

// Journey возвращает последнюю размещённую actor задачу.
func (s *TaskService) Journey(ctx context.Context, actor authz.Actor) (*TaskJourney, error) {
	rows, err := s.repo.ListByPoster(ctx, actor.ID, models.TaskFilter{Limit: 1})
	if err != nil {
		return nil, mapError(err)
	}
	if len(rows) == 0 {
		return &TaskJourney{
			Message: "Вы ещё не разместили ни одной задачи",
			Action:  "Нажмите «Разместить задачу», чтобы создать первую",
		}, nil
	}

	view := models.NewTaskView(&rows[0].Task, rows[0].ApplicationsCount, s.now())
	return &TaskJourney{
		HasTasks: true,
		Message:  "У вас уже есть размещённые задачи",
		Task:     &view,
	}, nil
}

// Get возвращает задачу. Escrow включается для автора, исполнителя и администратора.
func (s *TaskService) Get(ctx context.Context, actor authz.Actor, id uuid.UUID) (*TaskDetail, error) {
	row, err := s.repo.GetWithCount(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}

	task := row.Task
	detail := &TaskDetail{TaskView: models.NewTaskView(&task, row.ApplicationsCount, s.now())}

	if isParticipant(actor, &task) {
		escrow, err := s.repo.GetEscrow(ctx, id)
		switch {
		case err == nil:
			detail.Escrow = escrow
		case errors.Is(err, repository.ErrEscrowNotFound):
		default:
			return nil, mapError(err)
		}
	}
	return detail, nil
}

func isParticipant(actor authz.Actor, t *models.Task) bool {
	if actor.Role == models.RoleAdmin || actor.ID == t.PosterID {
		return true
	}
	return t.WorkerID != nil && *t.WorkerID == actor.ID
}

// ListMine возвращает задачи, размещённые actor.
func (s *TaskService) ListMine(ctx context.Context, actor authz.Actor, filter models.TaskFilter) ([]models.TaskView, error) {
	if filter.Status != "" {
		if _, ok := models.ValidTaskStatuses[filter.Status]; !ok {
			return nil, apperror.Validation("неизвестный статус задачи")
		}
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	rows, err := s.repo.ListByPoster(ctx, actor.ID, filter)
	if err != nil {
		return nil, mapError(err)
	}
	return s.views(rows), nil
}

// ListAvailable возвращает открытые задачи других пользователей.
func (s *TaskService) ListAvailable(ctx context.Context, actor authz.Actor, filter models.TaskFilter) ([]models.TaskView, error) {
	if filter.Category != "" {
		if _, ok := models.ValidCategories[filter.Category]; !ok {
			return nil, apperror.Validation("неизвестная категория")
		}
	}
	switch filter.Sort {
	case "":
		filter.Sort = models.TaskSortRecent
	case models.TaskSortRecent, models.TaskSortHighPrice, models.TaskSortLowPrice:
	default:
		return nil, apperror.Validation("сортировка может быть recent, high_price или low_price")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Location = strings.TrimSpace(filter.Location)
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	rows, err := s.repo.ListAvailable(ctx, actor.ID, filter)
	if err != nil {
		return nil, mapError(err)
	}
	return s.views(rows), nil
}

func (s *TaskService) views(rows []repository.TaskWithCount) []models.TaskView {
	now := s.now()
	views := make([]models.TaskView, 0, len(rows))
	for i := range rows {
		views = append(views, models.NewTaskView(&rows[i].Task, rows[i].ApplicationsCount, now))
	}
	return views
}

// Fund удерживает escrow назначенной задачи со счёта автора.
func (s *TaskService) Fund(ctx context.Context, actor authz.Actor, taskID uuid.UUID) (*repository.TaskTransition, error) {
	tr, err := s.repo.FundTask(ctx, taskID, guardFor(actor, authz.ActionTaskFund), s.now())
	if err != nil {
		s.recordRejection(err)
		return nil, mapError(err)
	}
	recordEscrow(tr.Escrow, models.TransactionTypeDebit)
	s.logTransition("fund", actor, tr)
	return tr, nil
}

// Start переводит задачу в работу.
func (s *TaskService) Start(ctx context.Context, actor authz.Actor, taskID uuid.UUID) (*repository.TaskTransition, error) {
	tr, err := s.repo.StartTask(ctx, taskID, guardFor(actor, authz.ActionTaskStart), s.now())
	if err != nil {
		return nil, mapError(err)
	}
	metrics.TaskTransitionsTotal.WithLabelValues(tr.Task.Status).Inc()
	s.logTransition("start", actor, tr)

	data := map[string]any{"task_id": tr.Task.ID, "title": tr.Task.Title}
	for _, userID := range counterparties(actor, tr.Task) {
		s.notify(ctx, userID, models.EventTaskStarted, data)
	}
	return tr, nil
}

// Complete завершает задачу и выплачивает удержанный escrow исполнителю.
func (s *TaskService) Complete(ctx context.Context, actor authz.Actor, taskID uuid.UUID) (*repository.TaskTransition, error) {
	tr, err := s.repo.CompleteTask(ctx, taskID, guardFor(actor, authz.ActionTaskComplete), s.now())
	if err != nil {
		return nil, mapError(err)
	}
	metrics.TaskTransitionsTotal.WithLabelValues(tr.Task.Status).Inc()
	recordEscrow(tr.Escrow, models.TransactionTypeCredit)
	s.logTransition("complete", actor, tr)

	if tr.Task.WorkerID != nil {
		workerID := *tr.Task.WorkerID
		s.notify(ctx, workerID, models.EventTaskCompleted, map[string]any{"task_id": tr.Task.ID, "title": tr.Task.Title})
		if tr.Escrow != nil {
			s.notify(ctx, workerID, models.EventEscrowReleased, map[string]any{
				"task_id": tr.Task.ID,
				"amount":  tr.Escrow.Amount,
			})
		}
	}
	return tr, nil
}

// Cancel отменяет задачу, отклоняет ожидающие отклики и возвращает удержанный escrow автору.
func (s *TaskService) Cancel(ctx context.Context, actor authz.Actor, taskID uuid.UUID) (*repository.TaskTransition, error) {
	tr, err := s.repo.CancelTask(ctx, taskID, guardFor(actor, authz.ActionTaskCancel), s.now())
	if err != nil {
		return nil, mapError(err)
	}
	metrics.TaskTransitionsTotal.WithLabelValues(tr.Task.Status).Inc()
	recordEscrow(tr.Escrow, models.TransactionTypeCredit)
	s.logTransition("cancel", actor, tr)

	data := map[string]any{"task_id": tr.Task.ID, "title": tr.Task.Title}
	for _, runnerID := range tr.RejectedRunners {
		s.notify(ctx, runnerID, models.EventTaskCancelled, data)
	}
	if tr.Task.WorkerID != nil && *tr.Task.WorkerID != actor.ID {
		s.notify(ctx, *tr.Task.WorkerID, models.EventTaskCancelled, data)
	}
	if tr.Escrow != nil {
		s.notify(ctx, tr.Escrow.PosterID, models.EventEscrowRefunded, map[string]any{
			"task_id": tr.Task.ID,
			"amount":  tr.Escrow.Amount,
		})
	}
	return tr, nil
}

func guardFor(actor authz.Actor, action authz.Action) repository.TaskGuard {
	return func(task *models.Task) error {
		return authz.Authorize(actor, action, authz.TaskResource(task))
	}
}

// counterparties участники задачи, кроме actor.
func counterparties(actor authz.Actor, t *models.Task) []uuid.UUID {
	var ids []uuid.UUID
	if t.PosterID != actor.ID {
		ids = append(ids, t.PosterID)
	}
	if t.WorkerID != nil && *t.WorkerID != actor.ID {
		ids = append(ids, *t.WorkerID)
	}
	return ids
}

func recordEscrow(escrow *models.Escrow, entryType string) {
	if escrow == nil {
		return
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(escrow.Status).Inc()
	metrics.LedgerEntriesTotal.WithLabelValues(entryType).Inc()
}

func (s *TaskService) recordRejection(err error) {
	if errors.Is(err, models.ErrInsufficientBalance) {
		metrics.LedgerRejectedTotal.WithLabelValues("insufficient_balance").Inc()
	}
}

func (s *TaskService) notify(ctx context.Context, userID uuid.UUID, event string, data any) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, userID, event, data)
	}
}

func (s *TaskService) logTransition(op string, actor authz.Actor, tr *repository.TaskTransition) {
	fields := logrus.Fields{
		"op":       op,
		"task_id":  tr.Task.ID,
		"status":   tr.Task.Status,
		"actor_id": actor.ID,
	}
	if tr.Escrow != nil {
		fields["escrow_status"] = tr.Escrow.Status
		fields["escrow_amount"] = tr.Escrow.Amount.String()
	}
	logger.Log.WithFields(fields).Info("task service: переход задачи")
}
