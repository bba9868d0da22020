package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Типы проводок по кошельку
const (
	TransactionTypeCredit = "CREDIT"
	TransactionTypeDebit  = "DEBIT"
)

// Wallet представляет кошелёк пользователя. Баланс меняется только через Apply.
type Wallet struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Currency  string          `db:"currency" json:"currency"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// WalletTransaction запись журнала кошелька, после создания не меняется.
type WalletTransaction struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	WalletID     uuid.UUID       `db:"wallet_id" json:"wallet_id"`
	Type         string          `db:"type" json:"type"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balance_after"`
	Description  string          `db:"description" json:"description"`
	Reference    string          `db:"reference" json:"reference"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Apply применяет проводку к балансу. При ошибке баланс не меняется.
func (w *Wallet) Apply(entryType string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	switch entryType {
	case TransactionTypeCredit:
		w.Balance = w.Balance.Add(amount)
	case TransactionTypeDebit:
		if amount.GreaterThan(w.Balance) {
			return ErrInsufficientBalance
		}
		w.Balance = w.Balance.Sub(amount)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTransactionType, entryType)
	}

	return nil
}

// LedgerSummary результат сверки журнала с балансом.
type LedgerSummary struct {
	Balance      decimal.Decimal `json:"balance"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	Consistent   bool            `json:"consistent"`
}

// NewLedgerSummary сверяет баланс с суммой проводок: credits - debits = balance.
func NewLedgerSummary(balance, credits, debits decimal.Decimal) LedgerSummary {
	return LedgerSummary{
		Balance:      balance,
		TotalCredits: credits,
		TotalDebits:  debits,
		Consistent:   credits.Sub(debits).Equal(balance),
	}
}

// NewTransactionReference формирует уникальную ссылку проводки.
func NewTransactionReference(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
