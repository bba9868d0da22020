package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
)

// memoryLedger хранит кошельки в памяти и сериализует проводки мьютексом,
// как это делает блокировка строки в БД.
type memoryLedger struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
	entries map[uuid.UUID][]models.WalletTransaction
	refs    map[string]struct{}
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		wallets: make(map[uuid.UUID]*models.Wallet),
		entries: make(map[uuid.UUID][]models.WalletTransaction),
		refs:    make(map[string]struct{}),
	}
}

func (l *memoryLedger) wallet(userID uuid.UUID) *models.Wallet {
	w, ok := l.wallets[userID]
	if !ok {
		w = &models.Wallet{ID: uuid.New(), UserID: userID, Currency: models.DefaultCurrency}
		l.wallets[userID] = w
	}
	return w
}

func (l *memoryLedger) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := *l.wallet(userID)
	return &w, nil
}

func (l *memoryLedger) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	return l.post(userID, models.TransactionTypeCredit, amount, description, reference)
}

func (l *memoryLedger) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	return l.post(userID, models.TransactionTypeDebit, amount, description, reference)
}

func (l *memoryLedger) post(userID uuid.UUID, entryType string, amount decimal.Decimal, description, reference string) (*models.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if reference == "" {
		reference = models.NewTransactionReference(entryType)
	}
	if _, dup := l.refs[reference]; dup {
		return nil, repository.ErrDuplicateReference
	}

	w := l.wallet(userID)
	next := *w
	if err := next.Apply(entryType, amount); err != nil {
		return nil, err
	}
	*w = next
	l.refs[reference] = struct{}{}

	entry := models.WalletTransaction{
		ID:           uuid.New(),
		WalletID:     w.ID,
		Type:         entryType,
		Amount:       amount,
		BalanceAfter: w.Balance,
		Description:  description,
		Reference:    reference,
	}
	l.entries[userID] = append(l.entries[userID], entry)
	return &entry, nil
}

func (l *memoryLedger) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := l.entries[userID]
	if offset >= len(all) {
		return []models.WalletTransaction{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (l *memoryLedger) Summary(ctx context.Context, userID uuid.UUID) (models.LedgerSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	credits, debits := decimal.Zero, decimal.Zero
	for _, e := range l.entries[userID] {
		if e.Type == models.TransactionTypeCredit {
			credits = credits.Add(e.Amount)
		} else {
			debits = debits.Add(e.Amount)
		}
	}
	return models.NewLedgerSummary(l.wallet(userID).Balance, credits, debits), nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWalletService_CreditDebitSequence(t *testing.T) {
	ledger := newMemoryLedger()
	svc := NewWalletService(ledger)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Credit(ctx, userID, dec("100"), "Пополнение", "")
	require.NoError(t, err)
	entry, err := svc.Debit(ctx, userID, dec("30"), "Оплата", "")
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(dec("70")))

	wallet, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(dec("70")))

	entries, err := svc.Transactions(ctx, userID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	summary, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, summary.Consistent)
	assert.True(t, summary.TotalCredits.Equal(dec("100")))
	assert.True(t, summary.TotalDebits.Equal(dec("30")))
}

func TestWalletService_DebitInsufficientBalance(t *testing.T) {
	ledger := newMemoryLedger()
	svc := NewWalletService(ledger)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Credit(ctx, userID, dec("50"), "Пополнение", "")
	require.NoError(t, err)

	_, err = svc.Debit(ctx, userID, dec("50.01"), "Оплата", "")
	assert.True(t, apperror.IsInsufficientBalance(err))

	wallet, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(dec("50")), "баланс не должен измениться")
	assert.Len(t, ledger.entries[userID], 1)
}

func TestWalletService_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewWalletService(newMemoryLedger())

	for _, amount := range []string{"0", "-5"} {
		_, err := svc.Credit(context.Background(), uuid.New(), dec(amount), "x", "")
		assert.True(t, apperror.IsValidation(err), amount)
	}
}

func TestWalletService_DuplicateReference(t *testing.T) {
	svc := NewWalletService(newMemoryLedger())
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Credit(ctx, userID, dec("10"), "x", "payment-abc")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, userID, dec("10"), "x", "payment-abc")
	assert.True(t, apperror.IsStateConflict(err))
}

func TestWalletService_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ledger := newMemoryLedger()
	svc := NewWalletService(ledger)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Credit(ctx, userID, dec("100"), "Пополнение", "")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Debit(ctx, userID, dec("10"), "Оплата", ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	wallet, _ := svc.Get(ctx, userID)
	assert.True(t, wallet.Balance.IsZero())

	summary, err := svc.Reconcile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, summary.Consistent)
}

func TestNormalizePage(t *testing.T) {
	limit, offset := normalizePage(0, -1)
	assert.Equal(t, DefaultPageSize, limit)
	assert.Equal(t, 0, offset)

	limit, _ = normalizePage(500, 0)
	assert.Equal(t, MaxPageSize, limit)
}
