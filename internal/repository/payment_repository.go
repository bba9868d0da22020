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
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentAlreadyProcessed платёж уже зачислен, повторное зачисление запрещено.
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
)

// PaymentRepository хранит попытки пополнения кошелька через платёжный шлюз.
type PaymentRepository struct {
	db     *sqlx.DB
	ledger *WalletRepository
}

func NewPaymentRepository(db *sqlx.DB, ledger *WalletRepository) *PaymentRepository {
	return &PaymentRepository{db: db, ledger: ledger}
}

// Create сохраняет платёж в статусе pending.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (user_id, tx_ref, provider, amount, currency)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`
	if err := r.db.GetContext(ctx, payment, query,
		payment.UserID, payment.TxRef, payment.Provider, payment.Amount, payment.Currency,
	); err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// SetCheckoutURL сохраняет ссылку на страницу оплаты.
func (r *PaymentRepository) SetCheckoutURL(ctx context.Context, id uuid.UUID, url string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE payments SET checkout_url = $2, updated_at = NOW() WHERE id = $1
	`, id, url); err != nil {
		return fmt.Errorf("payment repository: set checkout url %w", err)
	}
	return nil
}

// GetByTxRef возвращает платёж по внутренней ссылке.
func (r *PaymentRepository) GetByTxRef(ctx context.Context, txRef string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "tx_ref", txRef, ErrPaymentNotFound)
}

// ListByUser возвращает платежи пользователя, новые первыми.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := r.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("payment repository: list %w", err)
	}
	return payments, nil
}

// Settle зачисляет подтверждённый платёж на кошелёк ровно один раз.
// Строка платежа блокируется, повторный вызов возвращает ErrPaymentAlreadyProcessed.
func (r *PaymentRepository) Settle(ctx context.Context, txRef, providerTxID string) (*models.Payment, *models.WalletTransaction, error) {
	var (
		payment models.Payment
		entry   *models.WalletTransaction
	)

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &payment, `SELECT * FROM payments WHERE tx_ref = $1 FOR UPDATE`, txRef); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("payment repository: lock payment %w", err)
		}
		if payment.Status == models.PaymentStatusSuccessful {
			return ErrPaymentAlreadyProcessed
		}

		var err error
		entry, err = r.ledger.PostEntry(ctx, tx, payment.UserID, models.TransactionTypeCredit, payment.Amount,
			"Пополнение кошелька", "payment-"+payment.TxRef)
		if err != nil {
			if errors.Is(err, ErrDuplicateReference) {
				return ErrPaymentAlreadyProcessed
			}
			return err
		}

		if err := tx.GetContext(ctx, &payment, `
			UPDATE payments
			SET status = 'successful', provider_transaction_id = $2, wallet_transaction_id = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`, payment.ID, providerTxID, entry.ID); err != nil {
			if common.IsUniqueViolation(err, "payments_provider_transaction_id_key") {
				return ErrPaymentAlreadyProcessed
			}
			return fmt.Errorf("payment repository: mark successful %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, entry, nil
}

// MarkFailed помечает ожидающий платёж неуспешным. Зачисленный платёж не меняется.
func (r *PaymentRepository) MarkFailed(ctx context.Context, txRef string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = 'failed', updated_at = NOW()
		WHERE tx_ref = $1 AND status = 'pending'
	`, txRef); err != nil {
		return fmt.Errorf("payment repository: mark failed %w", err)
	}
	return nil
}
