package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository/common"
)

var (
	// ErrApplicationNotFound возвращается, когда отклик не найден.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrDuplicateApplication возвращается при повторном отклике на ту же задачу.
	ErrDuplicateApplication = errors.New("application already exists")
)

// ApplicationWithTask отклик исполнителя вместе с кратким описанием задачи.
type ApplicationWithTask struct {
	models.TaskApplication
	TaskTitle  string `db:"task_title" json:"task_title"`
	TaskStatus string `db:"task_status" json:"task_status"`
}

// ApplicationWithRunner отклик вместе с данными исполнителя.
type ApplicationWithRunner struct {
	models.TaskApplication
	RunnerFirstName string  `db:"runner_first_name" json:"runner_first_name"`
	RunnerLastName  string  `db:"runner_last_name" json:"runner_last_name"`
	RunnerPicture   *string `db:"runner_picture_url" json:"runner_picture_url,omitempty"`
}

// ApplicationRepository работает с откликами на задачи.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository создаёт экземпляр репозитория.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create сохраняет отклик в статусе pending.
// Повторный отклик на ту же задачу отклоняется уникальным ограничением.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.TaskApplication) error {
	query := `
		INSERT INTO task_applications (task_id, runner_id, message, offer_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`
	if err := r.db.GetContext(ctx, app, query, app.TaskID, app.RunnerID, app.Message, app.OfferAmount); err != nil {
		if common.IsUniqueViolation(err, "uq_task_applications_task_runner") {
			return ErrDuplicateApplication
		}
		return fmt.Errorf("application repository: create %w", err)
	}
	return nil
}

// Exists проверяет, откликался ли исполнитель на задачу.
func (r *ApplicationRepository) Exists(ctx context.Context, taskID, runnerID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM task_applications WHERE task_id = $1 AND runner_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, taskID, runnerID); err != nil {
		return false, fmt.Errorf("application repository: exists %w", err)
	}
	return exists, nil
}

// GetByID возвращает отклик по идентификатору.
func (r *ApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TaskApplication, error) {
	return common.GetByID[models.TaskApplication](ctx, r.db, "task_applications", id, ErrApplicationNotFound)
}

// ListByTask возвращает отклики на задачу вместе с данными исполнителей.
func (r *ApplicationRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]ApplicationWithRunner, error) {
	apps := []ApplicationWithRunner{}
	query := `
		SELECT a.*, u.first_name AS runner_first_name, u.last_name AS runner_last_name, u.picture_url AS runner_picture_url
		FROM task_applications a
		JOIN users u ON u.id = a.runner_id
		WHERE a.task_id = $1
		ORDER BY a.created_at ASC
	`
	if err := r.db.SelectContext(ctx, &apps, query, taskID); err != nil {
		return nil, fmt.Errorf("application repository: list by task %w", err)
	}
	return apps, nil
}

// ListByRunner возвращает отклики исполнителя, новые первыми.
func (r *ApplicationRepository) ListByRunner(ctx context.Context, runnerID uuid.UUID, status string, limit, offset int) ([]ApplicationWithTask, error) {
	apps := []ApplicationWithTask{}
	query := `
		SELECT a.*, t.title AS task_title, t.status AS task_status
		FROM task_applications a
		JOIN tasks t ON t.id = a.task_id
		WHERE a.runner_id = $1 AND ($2::text = '' OR a.status = $2)
		ORDER BY a.created_at DESC
		LIMIT $3 OFFSET $4
	`
	if err := r.db.SelectContext(ctx, &apps, query, runnerID, status, limit, offset); err != nil {
		return nil, fmt.Errorf("application repository: list by runner %w", err)
	}
	return apps, nil
}

// Reject отклоняет ожидающий отклик. Проверка перехода выполняется под блокировкой строки.
func (r *ApplicationRepository) Reject(ctx context.Context, id uuid.UUID, guard TaskGuard, now time.Time) (*models.TaskApplication, error) {
	var app *models.TaskApplication
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		locked, err := common.GetForUpdate[models.TaskApplication](ctx, tx, "task_applications", id, ErrApplicationNotFound)
		if err != nil {
			return err
		}
		if guard != nil {
			task, err := common.GetByID[models.Task](ctx, tx, "tasks", locked.TaskID, ErrTaskNotFound)
			if err != nil {
				return err
			}
			if err := guard(task); err != nil {
				return err
			}
		}
		if err := locked.Decide(models.ApplicationStatusRejected, now); err != nil {
			return err
		}
		if err := saveApplication(ctx, tx, locked); err != nil {
			return err
		}
		app = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// RunnerDetails возвращает карточку исполнителя с рейтингом и числом выполненных поручений.
func (r *ApplicationRepository) RunnerDetails(ctx context.Context, runnerID uuid.UUID) (*models.RunnerDetails, error) {
	var details models.RunnerDetails
	query := `
		SELECT u.id, u.first_name, u.last_name, u.phone, u.picture_url, u.location_city, u.identity_verified,
			COALESCE(p.rating, 0) AS rating,
			COALESCE(p.reviews_count, 0) AS reviews_count,
			(SELECT COUNT(*) FROM tasks t WHERE t.worker_id = u.id AND t.status = 'completed') AS completed_errands
		FROM users u
		LEFT JOIN user_profiles p ON p.user_id = u.id
		WHERE u.id = $1
	`
	if err := r.db.GetContext(ctx, &details, query, runnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("application repository: runner details %w", err)
	}
	return &details, nil
}
