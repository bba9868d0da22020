package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/repository/common"
)

var (
	// ErrWalletNotFound возвращается, когда кошелёк пользователя не найден.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrDuplicateReference возвращается при повторной ссылке проводки.
	ErrDuplicateReference = errors.New("duplicate transaction reference")
)

// WalletRepository ведёт баланс кошельков и журнал проводок.
// Все изменения баланса проходят через PostEntry под блокировкой строки кошелька.
type WalletRepository struct {
	db       *sqlx.DB
	currency string
}

// NewWalletRepository создаёт экземпляр репозитория.
func NewWalletRepository(db *sqlx.DB, currency string) *WalletRepository {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &WalletRepository{db: db, currency: currency}
}

// EnsureWallet создаёт кошелёк, если его ещё нет.
func (r *WalletRepository) EnsureWallet(ctx context.Context, q sqlx.ExecerContext, userID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO wallets (user_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, r.currency)
	if err != nil {
		return fmt.Errorf("wallet repository: ensure wallet %w", err)
	}
	return nil
}

// GetByUserID возвращает кошелёк пользователя, создавая его при первом обращении.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if err := r.EnsureWallet(ctx, r.db, userID); err != nil {
		return nil, err
	}

	var wallet models.Wallet
	if err := r.db.GetContext(ctx, &wallet, `SELECT * FROM wallets WHERE user_id = $1`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet repository: get by user %w", err)
	}
	return &wallet, nil
}

// Credit зачисляет сумму на кошелёк в отдельной транзакции.
func (r *WalletRepository) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	return r.post(ctx, userID, models.TransactionTypeCredit, amount, description, reference)
}

// Debit списывает сумму с кошелька. При нехватке средств ничего не меняется.
func (r *WalletRepository) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	return r.post(ctx, userID, models.TransactionTypeDebit, amount, description, reference)
}

func (r *WalletRepository) post(ctx context.Context, userID uuid.UUID, entryType string, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		entry, err = r.PostEntry(ctx, tx, userID, entryType, amount, description, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PostEntry меняет баланс и пишет ровно одну проводку внутри транзакции tx.
// Строка кошелька блокируется SELECT ... FOR UPDATE, поэтому параллельные
// списания по одному кошельку выполняются последовательно.
func (r *WalletRepository) PostEntry(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, entryType string, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	if err := r.EnsureWallet(ctx, tx, userID); err != nil {
		return nil, err
	}

	var wallet models.Wallet
	if err := tx.GetContext(ctx, &wallet, `SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet repository: lock wallet %w", err)
	}

	if err := wallet.Apply(entryType, amount); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets SET balance = $2, updated_at = NOW() WHERE id = $1
	`, wallet.ID, wallet.Balance); err != nil {
		return nil, fmt.Errorf("wallet repository: update balance %w", err)
	}

	if reference == "" {
		reference = models.NewTransactionReference(entryType)
	}

	var entry models.WalletTransaction
	err := tx.GetContext(ctx, &entry, `
		INSERT INTO wallet_transactions (wallet_id, type, amount, balance_after, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, wallet.ID, entryType, amount, wallet.Balance, description, reference)
	if err != nil {
		if common.IsUniqueViolation(err, "wallet_transactions_reference_key") {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("wallet repository: insert transaction %w", err)
	}

	return &entry, nil
}

// ListTransactions возвращает журнал проводок пользователя, новые первыми.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	entries := []models.WalletTransaction{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT t.* FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: list transactions %w", err)
	}
	return entries, nil
}

// Summary сверяет баланс кошелька с суммой проводок.
func (r *WalletRepository) Summary(ctx context.Context, userID uuid.UUID) (models.LedgerSummary, error) {
	var row struct {
		Balance decimal.Decimal `db:"balance"`
		Credits decimal.Decimal `db:"credits"`
		Debits  decimal.Decimal `db:"debits"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT w.balance,
			COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'CREDIT'), 0) AS credits,
			COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'DEBIT'), 0) AS debits
		FROM wallets w
		LEFT JOIN wallet_transactions t ON t.wallet_id = w.id
		WHERE w.user_id = $1
		GROUP BY w.id, w.balance
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.LedgerSummary{}, ErrWalletNotFound
		}
		return models.LedgerSummary{}, fmt.Errorf("wallet repository: summary %w", err)
	}
	return models.NewLedgerSummary(row.Balance, row.Credits, row.Debits), nil
}
