package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы платежа через платёжный шлюз
const (
	PaymentStatusPending    = "pending"
	PaymentStatusSuccessful = "successful"
	PaymentStatusFailed     = "failed"
)

// Payment попытка пополнения кошелька через внешний шлюз.
type Payment struct {
	ID                    uuid.UUID       `db:"id" json:"id"`
	UserID                uuid.UUID       `db:"user_id" json:"user_id"`
	TxRef                 string          `db:"tx_ref" json:"tx_ref"`
	Provider              string          `db:"provider" json:"provider"`
	ProviderTransactionID *string         `db:"provider_transaction_id" json:"provider_transaction_id,omitempty"`
	Amount                decimal.Decimal `db:"amount" json:"amount"`
	Currency              string          `db:"currency" json:"currency"`
	Status                string          `db:"status" json:"status"`
	CheckoutURL           *string         `db:"checkout_url" json:"checkout_url,omitempty"`
	WalletTransactionID   *uuid.UUID      `db:"wallet_transaction_id" json:"wallet_transaction_id,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}
