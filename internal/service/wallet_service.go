package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/metrics"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/validation"
)

// Пагинация списков
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// LedgerRepository хранилище кошельков и журнала проводок.
type LedgerRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error)
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error)
	Summary(ctx context.Context, userID uuid.UUID) (models.LedgerSummary, error)
}

// WalletService операции с кошельком пользователя.
type WalletService struct {
	repo LedgerRepository
}

// NewWalletService создаёт сервис кошелька.
func NewWalletService(repo LedgerRepository) *WalletService {
	return &WalletService{repo: repo}
}

// Get возвращает кошелёк пользователя. Баланс кошелька единственный источник правды.
func (s *WalletService) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return wallet, nil
}

// Credit зачисляет amount на кошелёк.
func (s *WalletService) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	return s.post(ctx, models.TransactionTypeCredit, userID, amount, description, reference)
}

// Debit списывает amount с кошелька. При нехватке средств баланс не меняется.
func (s *WalletService) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	return s.post(ctx, models.TransactionTypeDebit, userID, amount, description, reference)
}

func (s *WalletService) post(ctx context.Context, entryType string, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	if err := validation.ValidateAmount("сумма", amount); err != nil {
		metrics.LedgerRejectedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, apperror.Validation(err.Error())
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = "Корректировка баланса"
	}

	var (
		entry *models.WalletTransaction
		err   error
	)
	if entryType == models.TransactionTypeCredit {
		entry, err = s.repo.Credit(ctx, userID, amount, description, reference)
	} else {
		entry, err = s.repo.Debit(ctx, userID, amount, description, reference)
	}
	if err != nil {
		if errors.Is(err, models.ErrInsufficientBalance) {
			metrics.LedgerRejectedTotal.WithLabelValues("insufficient_balance").Inc()
		}
		return nil, mapError(err)
	}

	metrics.LedgerEntriesTotal.WithLabelValues(entryType).Inc()
	return entry, nil
}

// Transactions возвращает страницу журнала, новые записи первыми.
func (s *WalletService) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	limit, offset = normalizePage(limit, offset)
	entries, err := s.repo.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	return entries, nil
}

// Reconcile сверяет баланс с журналом: credits - debits должно равняться балансу.
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) (models.LedgerSummary, error) {
	if _, err := s.repo.GetByUserID(ctx, userID); err != nil {
		return models.LedgerSummary{}, mapError(err)
	}

	summary, err := s.repo.Summary(ctx, userID)
	if err != nil {
		return models.LedgerSummary{}, mapError(err)
	}

	if !summary.Consistent {
		logger.Log.WithFields(logrus.Fields{
			"user_id": userID,
			"balance": summary.Balance.String(),
			"credits": summary.TotalCredits.String(),
			"debits":  summary.TotalDebits.String(),
		}).Error("wallet service: баланс не сходится с журналом")
	}

	return summary, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
