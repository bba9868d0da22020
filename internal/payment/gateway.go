package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Статус успешного списания у провайдера.
const StatusSuccessful = "successful"

var (
	// ErrChargeNotSuccessful провайдер не подтвердил списание.
	ErrChargeNotSuccessful = errors.New("charge is not successful")
	// ErrCurrencyMismatch валюта списания отличается от ожидаемой.
	ErrCurrencyMismatch = errors.New("charge currency mismatch")
	// ErrAmountTooLow списано меньше ожидаемого.
	ErrAmountTooLow = errors.New("charged amount is less than expected")
	// ErrReferenceMismatch ссылка списания не совпадает с платежом.
	ErrReferenceMismatch = errors.New("charge reference mismatch")
)

// Customer данные плательщика для страницы оплаты.
type Customer struct {
	Email string
	Phone string
	Name  string
}

// ChargeRequest запрос на создание страницы оплаты.
type ChargeRequest struct {
	TxRef       string
	Amount      decimal.Decimal
	Currency    string
	RedirectURL string
	Customer    Customer
	Title       string
}

// Checkout ссылка на страницу оплаты провайдера.
type Checkout struct {
	Link string
}

// VerifiedCharge результат проверки списания у провайдера.
type VerifiedCharge struct {
	ProviderTransactionID string
	TxRef                 string
	Amount                decimal.Decimal
	ChargedAmount         decimal.Decimal
	Currency              string
	Status                string
}

// Gateway внешний платёжный шлюз.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req ChargeRequest) (*Checkout, error)
	Verify(ctx context.Context, providerTxID string) (*VerifiedCharge, error)
}

// Validate сверяет подтверждённое списание с ожидаемым платежом.
func (c *VerifiedCharge) Validate(txRef string, expected decimal.Decimal, currency string) error {
	if c.Status != StatusSuccessful {
		return ErrChargeNotSuccessful
	}
	if c.TxRef != txRef {
		return ErrReferenceMismatch
	}
	if c.Currency != currency {
		return ErrCurrencyMismatch
	}
	if c.ChargedAmount.LessThan(expected) {
		return ErrAmountTooLow
	}
	return nil
}
