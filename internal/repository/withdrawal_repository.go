package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository/common"
)

var (
	ErrWithdrawalMethodNotFound = errors.New("withdrawal method not found")
	// ErrWithdrawalMethodExists такие реквизиты уже добавлены.
	ErrWithdrawalMethodExists = errors.New("withdrawal method already exists")
)

type WithdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, m *models.WithdrawalMethod) error {
	err := r.db.GetContext(ctx, m, `
		INSERT INTO withdrawal_methods (user_id, method_type, bank_name, account_number, account_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, m.UserID, m.MethodType, m.BankName, m.AccountNumber, m.AccountName)
	if err != nil {
		if common.IsUniqueViolation(err, "") {
			return ErrWithdrawalMethodExists
		}
		return fmt.Errorf("withdrawal repository: create %w", err)
	}
	return nil
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalMethod, error) {
	methods := []models.WithdrawalMethod{}
	err := r.db.SelectContext(ctx, &methods, `
		SELECT * FROM withdrawal_methods WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("withdrawal repository: list %w", err)
	}
	return methods, nil
}

// Delete удаляет реквизиты только их владельца.
func (r *WithdrawalRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM withdrawal_methods WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("withdrawal repository: delete %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("withdrawal repository: delete rows affected %w", err)
	}
	if affected == 0 {
		return ErrWithdrawalMethodNotFound
	}
	return nil
}
