package repository

import (
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var mockNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

// sqlText экранирует фрагмент запроса для regexp-сопоставления sqlmock.
func sqlText(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

// decimalArg сравнивает аргумент запроса с суммой без учёта масштаба.
type decimalArg string

func (a decimalArg) Match(v driver.Value) bool {
	want := decimal.RequireFromString(string(a))
	switch val := v.(type) {
	case string:
		got, err := decimal.NewFromString(val)
		return err == nil && got.Equal(want)
	case []byte:
		got, err := decimal.NewFromString(string(val))
		return err == nil && got.Equal(want)
	}
	return false
}

var walletColumns = []string{"id", "user_id", "balance", "currency", "created_at", "updated_at"}

var ledgerColumns = []string{"id", "wallet_id", "type", "amount", "balance_after", "description", "reference", "created_at"}

// expectPostEntry ожидает запросы одной проводки: кошелёк, блокировку, баланс, журнал.
func expectPostEntry(mock sqlmock.Sqlmock, walletID, userID, entryType, balance, amount, balanceAfter, reference string) {
	mock.ExpectExec(sqlText("INSERT INTO wallets (user_id, currency)")).
		WithArgs(userID, "NGN").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sqlText("SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE")).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(walletColumns).
			AddRow(walletID, userID, balance, "NGN", mockNow, mockNow))
	mock.ExpectExec(sqlText("UPDATE wallets SET balance = $2")).
		WithArgs(walletID, decimalArg(balanceAfter)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(sqlText("INSERT INTO wallet_transactions")).
		WithArgs(walletID, entryType, decimalArg(amount), decimalArg(balanceAfter), sqlmock.AnyArg(), reference).
		WillReturnRows(sqlmock.NewRows(ledgerColumns).
			AddRow("5b0c9d52-7a3f-4a52-9d4c-6c1f3d2e8a10", walletID, entryType, amount, balanceAfter, "", reference, mockNow))
}
