package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository/common"
)

var (
	ErrReviewNotFound = errors.New("review not found")
	// ErrReviewExists возвращается при повторном отзыве на тот же отклик.
	ErrReviewExists = errors.New("review already exists")
	// ErrApplicationNotCompleted возвращается, если отклик ещё не завершён.
	ErrApplicationNotCompleted = errors.New("application is not completed")
)

type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create создаёт отзыв по завершённому отклику и пересчитывает рейтинг исполнителя.
// guard получает задачу отклика до вставки и может запретить операцию.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review, guard TaskGuard) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		app, err := common.GetForUpdate[models.TaskApplication](ctx, tx, "task_applications", review.ApplicationID, ErrApplicationNotFound)
		if err != nil {
			return err
		}
		task, err := common.GetByID[models.Task](ctx, tx, "tasks", app.TaskID, ErrTaskNotFound)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(task); err != nil {
				return err
			}
		}
		if app.Status != models.ApplicationStatusCompleted {
			return ErrApplicationNotCompleted
		}

		review.TaskID = task.ID
		review.RunnerID = app.RunnerID

		query := `
			INSERT INTO reviews (application_id, task_id, reviewer_id, runner_id, rating, comment)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			review.ApplicationID, review.TaskID, review.ReviewerID, review.RunnerID, review.Rating, review.Comment,
		).Scan(&review.ID, &review.CreatedAt); err != nil {
			if common.IsUniqueViolation(err, "reviews_application_id_key") {
				return ErrReviewExists
			}
			return fmt.Errorf("review repository: create %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, rating, reviews_count, updated_at)
			SELECT $1, COALESCE(ROUND(AVG(rating)::numeric, 2), 0), COUNT(*), NOW()
			FROM reviews WHERE runner_id = $1
			ON CONFLICT (user_id) DO UPDATE
			SET rating = EXCLUDED.rating, reviews_count = EXCLUDED.reviews_count, updated_at = NOW()
		`, review.RunnerID)
		if err != nil {
			return fmt.Errorf("review repository: update rating %w", err)
		}
		return nil
	})
}

// GetByID возвращает отзыв по ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	return common.GetByID[models.Review](ctx, r.db, "reviews", id, ErrReviewNotFound)
}

// ListByRunner возвращает отзывы об исполнителе.
func (r *ReviewRepository) ListByRunner(ctx context.Context, runnerID uuid.UUID, limit, offset int) ([]models.Review, error) {
	reviews := []models.Review{}
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM reviews WHERE runner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, runnerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("review repository: list by runner %w", err)
	}
	return reviews, nil
}

// GetProfile возвращает агрегированный рейтинг исполнителя.
func (r *ReviewRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.GetContext(ctx, &profile, `
		SELECT user_id, rating, reviews_count, updated_at FROM user_profiles WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserProfile{UserID: userID}, nil
		}
		return nil, fmt.Errorf("review repository: get profile %w", err)
	}
	return &profile, nil
}
