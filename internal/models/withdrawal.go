package models

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawalMethod реквизиты для вывода средств.
type WithdrawalMethod struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	MethodType    string    `db:"method_type" json:"method_type"`
	BankName      string    `db:"bank_name" json:"bank_name"`
	AccountNumber string    `db:"account_number" json:"account_number"`
	AccountName   string    `db:"account_name" json:"account_name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// MaskedAccountNumber скрывает все цифры номера счёта, кроме последних четырёх.
func (m *WithdrawalMethod) MaskedAccountNumber() string {
	n := len(m.AccountNumber)
	if n <= 4 {
		return m.AccountNumber
	}
	masked := make([]byte, n)
	for i := 0; i < n-4; i++ {
		masked[i] = '*'
	}
	copy(masked[n-4:], m.AccountNumber[n-4:])
	return string(masked)
}
