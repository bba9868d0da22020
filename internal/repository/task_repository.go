package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository/common"
)

var (
	// ErrTaskNotFound возвращается, когда задача не найдена.
	ErrTaskNotFound = errors.New("task not found")
	// ErrEscrowNotFound возвращается, когда у задачи нет escrow.
	ErrEscrowNotFound = errors.New("escrow not found")
	// ErrTaskNotAssigned возвращается при попытке профинансировать задачу без исполнителя.
	ErrTaskNotAssigned = errors.New("task has no assigned runner")
	// ErrTaskClosed задача завершена или отменена и больше не меняется.
	ErrTaskClosed = errors.New("task is closed")
	// ErrTaskImageLimit у задачи уже максимум фото.
	ErrTaskImageLimit = errors.New("task image limit reached")
)

// TaskGuard вызывается после блокировки строки задачи внутри транзакции.
// Ошибка guard откатывает транзакцию.
type TaskGuard func(task *models.Task) error

// TaskTransition результат изменения жизненного цикла задачи.
type TaskTransition struct {
	Task        *models.Task
	Application *models.TaskApplication
	Escrow      *models.Escrow
	// RejectedRunners исполнители, чьи отклики отклонены автоматически.
	RejectedRunners []uuid.UUID
}

// TaskWithCount строка задачи с числом откликов.
type TaskWithCount struct {
	models.Task
	ApplicationsCount int `db:"applications_count"`
}

// TaskRepository хранит задачи, отклики и escrow.
// Все движения средств escrow проводятся через ledger в той же транзакции.
type TaskRepository struct {
	db            *sqlx.DB
	ledger        *WalletRepository
	escrowEnabled bool
}

// NewTaskRepository создаёт экземпляр репозитория.
func NewTaskRepository(db *sqlx.DB, ledger *WalletRepository, escrowEnabled bool) *TaskRepository {
	return &TaskRepository{db: db, ledger: ledger, escrowEnabled: escrowEnabled}
}

// Create сохраняет задачу и, если escrow включён, создаёт для неё escrow в статусе pending.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if len(task.Details) == 0 {
		task.Details = []byte("{}")
	}

	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO tasks (poster_id, title, description, category, location, price_min, price_max, deadline, estimated_duration, details)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING *
		`
		if err := tx.GetContext(ctx, task, query,
			task.PosterID, task.Title, task.Description, task.Category, task.Location,
			task.PriceMin, task.PriceMax, task.Deadline, task.EstimatedDuration, task.Details,
		); err != nil {
			return fmt.Errorf("task repository: create %w", err)
		}

		if !r.escrowEnabled {
			return nil
		}
		if _, err := r.ensureEscrow(ctx, tx, task); err != nil {
			return err
		}
		return nil
	})
}

// GetByID возвращает задачу по идентификатору.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return common.GetByID[models.Task](ctx, r.db, "tasks", id, ErrTaskNotFound)
}

// GetWithCount возвращает задачу вместе с числом откликов.
func (r *TaskRepository) GetWithCount(ctx context.Context, id uuid.UUID) (*TaskWithCount, error) {
	var row TaskWithCount
	query := `
		SELECT t.*, (SELECT COUNT(*) FROM task_applications a WHERE a.task_id = t.id) AS applications_count
		FROM tasks t
		WHERE t.id = $1
	`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("task repository: get with count %w", err)
	}
	return &row, nil
}

// GetEscrow возвращает escrow задачи.
func (r *TaskRepository) GetEscrow(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	return common.GetByField[models.Escrow](ctx, r.db, "escrows", "task_id", taskID, ErrEscrowNotFound)
}

// ListByPoster возвращает задачи заказчика, новые первыми.
func (r *TaskRepository) ListByPoster(ctx context.Context, posterID uuid.UUID, filter models.TaskFilter) ([]TaskWithCount, error) {
	conditions := []string{"t.poster_id = $1"}
	args := []interface{}{posterID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", len(args)))
	}

	return r.list(ctx, conditions, args, models.TaskSortRecent, filter.Limit, filter.Offset)
}

// ListAvailable возвращает открытые задачи других пользователей.
func (r *TaskRepository) ListAvailable(ctx context.Context, userID uuid.UUID, filter models.TaskFilter) ([]TaskWithCount, error) {
	conditions := []string{"t.status = 'open'", "t.poster_id <> $1"}
	args := []interface{}{userID}

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("t.category = $%d", len(args)))
	}
	if filter.Location != "" {
		args = append(args, "%"+filter.Location+"%")
		conditions = append(conditions, fmt.Sprintf("t.location ILIKE $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(t.title ILIKE $%d OR t.description ILIKE $%d)", len(args), len(args)))
	}

	return r.list(ctx, conditions, args, filter.Sort, filter.Limit, filter.Offset)
}

func (r *TaskRepository) list(ctx context.Context, conditions []string, args []interface{}, sort string, limit, offset int) ([]TaskWithCount, error) {
	orderBy := "t.created_at DESC"
	switch sort {
	case models.TaskSortHighPrice:
		orderBy = "t.price_max DESC, t.created_at DESC"
	case models.TaskSortLowPrice:
		orderBy = "t.price_min ASC, t.created_at DESC"
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT t.*, (SELECT COUNT(*) FROM task_applications a WHERE a.task_id = t.id) AS applications_count
		FROM tasks t
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, strings.Join(conditions, " AND "), orderBy, len(args)-1, len(args))

	tasks := []TaskWithCount{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("task repository: list %w", err)
	}
	return tasks, nil
}

// AcceptApplication принимает отклик: назначает исполнителя, отклоняет остальные
// ожидающие отклики и удерживает escrow. Всё в одной транзакции.
func (r *TaskRepository) AcceptApplication(ctx context.Context, applicationID uuid.UUID, guard TaskGuard, now time.Time) (*TaskTransition, error) {
	result := &TaskTransition{}

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		// Строка задачи блокируется первой, как и в остальных переходах.
		var taskID uuid.UUID
		if err := tx.GetContext(ctx, &taskID, `SELECT task_id FROM task_applications WHERE id = $1`, applicationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrApplicationNotFound
			}
			return fmt.Errorf("task repository: get application task %w", err)
		}
		task, err := r.lockTask(ctx, tx, taskID, guard)
		if err != nil {
			return err
		}
		app, err := common.GetForUpdate[models.TaskApplication](ctx, tx, "task_applications", applicationID, ErrApplicationNotFound)
		if err != nil {
			return err
		}

		if err := app.Decide(models.ApplicationStatusAccepted, now); err != nil {
			return err
		}
		if err := task.AssignWorker(app.RunnerID, now); err != nil {
			return err
		}
		if err := r.saveTask(ctx, tx, task); err != nil {
			return err
		}
		if err := saveApplication(ctx, tx, app); err != nil {
			return err
		}

		var rejected []uuid.UUID
		if err := tx.SelectContext(ctx, &rejected, `
			UPDATE task_applications
			SET status = 'rejected', updated_at = $3
			WHERE task_id = $1 AND id <> $2 AND status = 'pending'
			RETURNING runner_id
		`, task.ID, app.ID, now); err != nil {
			return fmt.Errorf("task repository: reject other applications %w", err)
		}

		if r.escrowEnabled {
			escrow, err := r.holdEscrow(ctx, tx, task, app.AgreedAmount(task), now)
			if err != nil {
				return err
			}
			result.Escrow = escrow
		}

		result.Task = task
		result.Application = app
		result.RejectedRunners = rejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FundTask удерживает escrow назначенной задачи, если он ещё не удержан.
func (r *TaskRepository) FundTask(ctx context.Context, taskID uuid.UUID, guard TaskGuard, now time.Time) (*TaskTransition, error) {
	result := &TaskTransition{}

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := r.lockTask(ctx, tx, taskID, guard)
		if err != nil {
			return err
		}
		if task.WorkerID == nil || task.IsTerminal() {
			return ErrTaskNotAssigned
		}

		var app models.TaskApplication
		if err := tx.GetContext(ctx, &app, `
			SELECT * FROM task_applications
			WHERE task_id = $1 AND runner_id = $2 AND status IN ('accepted', 'completed')
		`, task.ID, *task.WorkerID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrApplicationNotFound
			}
			return fmt.Errorf("task repository: get accepted application %w", err)
		}

		escrow, err := r.holdEscrow(ctx, tx, task, app.AgreedAmount(task), now)
		if err != nil {
			return err
		}

		result.Task = task
		result.Application = &app
		result.Escrow = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StartTask переводит задачу assigned -> in_progress.
func (r *TaskRepository) StartTask(ctx context.Context, taskID uuid.UUID, guard TaskGuard, now time.Time) (*TaskTransition, error) {
	result := &TaskTransition{}

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := r.lockTask(ctx, tx, taskID, guard)
		if err != nil {
			return err
		}
		if err := task.Start(now); err != nil {
			return err
		}
		if err := r.saveTask(ctx, tx, task); err != nil {
			return err
		}
		result.Task = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteTask завершает задачу, переводит принятый отклик в completed
// и выплачивает удержанный escrow исполнителю.
func (r *TaskRepository) CompleteTask(ctx context.Context, taskID uuid.UUID, guard TaskGuard, now time.Time) (*TaskTransition, error) {
	result := &TaskTransition{}

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := r.lockTask(ctx, tx, taskID, guard)
		if err != nil {
			return err
		}
		if err := task.MarkCompleted(now); err != nil {
			return err
		}
		if err := r.saveTask(ctx, tx, task); err != nil {
			return err
		}

		var app models.TaskApplication
		err = tx.GetContext(ctx, &app, `
			SELECT * FROM task_applications
			WHERE task_id = $1 AND status = 'accepted'
			FOR UPDATE
		`, task.ID)
		switch {
		case err == nil:
			if err := app.Complete(now); err != nil {
				return err
			}
			if err := saveApplication(ctx, tx, &app); err != nil {
				return err
			}
			result.Application = &app
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("task repository: get accepted application %w", err)
		}

		escrow, err := r.lockEscrow(ctx, tx, task.ID)
		if err != nil && !errors.Is(err, ErrEscrowNotFound) {
			return err
		}
		if escrow != nil && escrow.Status == models.EscrowStatusHeld {
			if err := escrow.Release(now); err != nil {
				return err
			}
			if _, err := r.ledger.PostEntry(ctx, tx, *escrow.WorkerID, models.TransactionTypeCredit, escrow.Amount,
				fmt.Sprintf("Оплата за задачу «%s»", task.Title), "escrow-release-"+escrow.ID.String()); err != nil {
				return err
			}
			if err := saveEscrow(ctx, tx, escrow); err != nil {
				return err
			}
			result.Escrow = escrow
		}

		result.Task = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelTask отменяет задачу, отклоняет ожидающие отклики и возвращает
// удержанный escrow заказчику. Escrow в статусе pending не меняется.
// Принятый отклик остаётся accepted: исполнитель виден по task.worker_id,
// а отзыв по нему невозможен, пока отклик не completed.
func (r *TaskRepository) CancelTask(ctx context.Context, taskID uuid.UUID, guard TaskGuard, now time.Time) (*TaskTransition, error) {
	result := &TaskTransition{}

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := r.lockTask(ctx, tx, taskID, guard)
		if err != nil {
			return err
		}
		if err := task.Cancel(now); err != nil {
			return err
		}
		if err := r.saveTask(ctx, tx, task); err != nil {
			return err
		}

		var rejected []uuid.UUID
		if err := tx.SelectContext(ctx, &rejected, `
			UPDATE task_applications
			SET status = 'rejected', updated_at = $2
			WHERE task_id = $1 AND status = 'pending'
			RETURNING runner_id
		`, task.ID, now); err != nil {
			return fmt.Errorf("task repository: reject applications %w", err)
		}

		escrow, err := r.lockEscrow(ctx, tx, task.ID)
		if err != nil && !errors.Is(err, ErrEscrowNotFound) {
			return err
		}
		if escrow != nil && escrow.Status == models.EscrowStatusHeld {
			if err := escrow.Refund(now); err != nil {
				return err
			}
			if _, err := r.ledger.PostEntry(ctx, tx, escrow.PosterID, models.TransactionTypeCredit, escrow.Amount,
				fmt.Sprintf("Возврат по задаче «%s»", task.Title), "escrow-refund-"+escrow.ID.String()); err != nil {
				return err
			}
			if err := saveEscrow(ctx, tx, escrow); err != nil {
				return err
			}
			result.Escrow = escrow
		}

		result.Task = task
		result.RejectedRunners = rejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddImage прикрепляет фото к открытой задаче. Строка задачи блокируется,
// поэтому параллельные загрузки не превышают limit.
func (r *TaskRepository) AddImage(ctx context.Context, taskID uuid.UUID, guard TaskGuard, img *models.TaskImage, limit int) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		task, err := r.lockTask(ctx, tx, taskID, guard)
		if err != nil {
			return err
		}
		if task.IsTerminal() {
			return ErrTaskClosed
		}

		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM task_images WHERE task_id = $1`, task.ID); err != nil {
			return fmt.Errorf("task repository: count images %w", err)
		}
		if count >= limit {
			return ErrTaskImageLimit
		}

		if err := tx.GetContext(ctx, img, `
			INSERT INTO task_images (task_id, uploader_id, url)
			VALUES ($1, $2, $3)
			RETURNING *
		`, task.ID, img.UploaderID, img.URL); err != nil {
			return fmt.Errorf("task repository: insert image %w", err)
		}
		return nil
	})
}

// ListImages возвращает фото задачи в порядке загрузки.
func (r *TaskRepository) ListImages(ctx context.Context, taskID uuid.UUID) ([]models.TaskImage, error) {
	images := []models.TaskImage{}
	if err := r.db.SelectContext(ctx, &images, `
		SELECT * FROM task_images WHERE task_id = $1 ORDER BY created_at
	`, taskID); err != nil {
		return nil, fmt.Errorf("task repository: list images %w", err)
	}
	return images, nil
}

// MetricsRows возвращает задачи заказчика с согласованной суммой escrow.
func (r *TaskRepository) MetricsRows(ctx context.Context, posterID uuid.UUID) ([]models.TaskMetricsRow, error) {
	rows := []models.TaskMetricsRow{}
	query := `
		SELECT t.id, t.category, t.status, t.price_max, e.amount AS agreed_amount, t.worker_id
		FROM tasks t
		LEFT JOIN escrows e ON e.task_id = t.id
		WHERE t.poster_id = $1
	`
	if err := r.db.SelectContext(ctx, &rows, query, posterID); err != nil {
		return nil, fmt.Errorf("task repository: metrics rows %w", err)
	}
	return rows, nil
}

// CountCompleted считает завершённые задачи, где пользователь заказчик или исполнитель.
func (r *TaskRepository) CountCompleted(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM tasks
		WHERE status = 'completed' AND (poster_id = $1 OR worker_id = $1)
	`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("task repository: count completed %w", err)
	}
	return count, nil
}

func (r *TaskRepository) lockTask(ctx context.Context, tx *sqlx.Tx, taskID uuid.UUID, guard TaskGuard) (*models.Task, error) {
	task, err := common.GetForUpdate[models.Task](ctx, tx, "tasks", taskID, ErrTaskNotFound)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(task); err != nil {
			return nil, err
		}
	}
	return task, nil
}

func (r *TaskRepository) lockEscrow(ctx context.Context, tx *sqlx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	if err := tx.GetContext(ctx, &escrow, `SELECT * FROM escrows WHERE task_id = $1 FOR UPDATE`, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, fmt.Errorf("task repository: lock escrow %w", err)
	}
	return &escrow, nil
}

func (r *TaskRepository) ensureEscrow(ctx context.Context, tx *sqlx.Tx, task *models.Task) (*models.Escrow, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO escrows (task_id, poster_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO NOTHING
	`, task.ID, task.PosterID, task.PriceMax); err != nil {
		return nil, fmt.Errorf("task repository: create escrow %w", err)
	}
	return r.lockEscrow(ctx, tx, task.ID)
}

// holdEscrow списывает сумму с заказчика и переводит escrow в held.
func (r *TaskRepository) holdEscrow(ctx context.Context, tx *sqlx.Tx, task *models.Task, amount decimal.Decimal, now time.Time) (*models.Escrow, error) {
	escrow, err := r.ensureEscrow(ctx, tx, task)
	if err != nil {
		return nil, err
	}
	if err := escrow.Hold(*task.WorkerID, amount, now); err != nil {
		return nil, err
	}
	if _, err := r.ledger.PostEntry(ctx, tx, task.PosterID, models.TransactionTypeDebit, amount,
		fmt.Sprintf("Резерв по задаче «%s»", task.Title), "escrow-hold-"+escrow.ID.String()); err != nil {
		return nil, err
	}
	if err := saveEscrow(ctx, tx, escrow); err != nil {
		return nil, err
	}
	return escrow, nil
}

func (r *TaskRepository) saveTask(ctx context.Context, tx *sqlx.Tx, task *models.Task) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET worker_id = $2, status = $3, completed_at = $4, cancelled_at = $5, updated_at = $6
		WHERE id = $1
	`, task.ID, task.WorkerID, task.Status, task.CompletedAt, task.CancelledAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("task repository: update task %w", err)
	}
	return nil
}

func saveApplication(ctx context.Context, tx *sqlx.Tx, app *models.TaskApplication) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE task_applications SET status = $2, updated_at = $3 WHERE id = $1
	`, app.ID, app.Status, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("task repository: update application %w", err)
	}
	return nil
}

func saveEscrow(ctx context.Context, tx *sqlx.Tx, escrow *models.Escrow) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE escrows
		SET worker_id = $2, amount = $3, status = $4, held_at = $5, released_at = $6, refunded_at = $7, updated_at = $8
		WHERE id = $1
	`, escrow.ID, escrow.WorkerID, escrow.Amount, escrow.Status, escrow.HeldAt, escrow.ReleasedAt, escrow.RefundedAt, escrow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("task repository: update escrow %w", err)
	}
	return nil
}
