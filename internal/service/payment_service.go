package service

import (
	"context"
	"crypto/hmac"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/metrics"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/payment"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/repository"
	"github.com/ignatzorin/errands-backend/internal/validation"
)

// PaymentStore хранилище платежей через шлюз.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	SetCheckoutURL(ctx context.Context, id uuid.UUID, url string) error
	GetByTxRef(ctx context.Context, txRef string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error)
	Settle(ctx context.Context, txRef, providerTxID string) (*models.Payment, *models.WalletTransaction, error)
	MarkFailed(ctx context.Context, txRef string) error
}

// Notifier доставляет пользователю уведомление о событии.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data any)
}

// PaymentConfig параметры пополнения кошелька.
type PaymentConfig struct {
	Currency    string
	RedirectURL string
	WebhookHash string
}

// PaymentService пополнение кошелька через внешний платёжный шлюз.
type PaymentService struct {
	repo     PaymentStore
	users    UserLookup
	gateway  payment.Gateway
	notifier Notifier
	cfg      PaymentConfig
}

// FundingResult созданный платёж и ссылка на оплату.
type FundingResult struct {
	Payment     *models.Payment `json:"payment"`
	CheckoutURL string          `json:"checkout_url"`
}

// VerifyResult итог проверки платежа.
type VerifyResult struct {
	Payment *models.Payment `json:"payment"`
	// AlreadyProcessed true, если платёж был зачислен раньше и повторного зачисления не было.
	AlreadyProcessed bool `json:"already_processed"`
}

// NewPaymentService создаёт сервис платежей.
func NewPaymentService(repo PaymentStore, users UserLookup, gateway payment.Gateway, notifier Notifier, cfg PaymentConfig) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = models.DefaultCurrency
	}
	return &PaymentService{repo: repo, users: users, gateway: gateway, notifier: notifier, cfg: cfg}
}

// Initiate создаёт платёж и получает у шлюза ссылку на страницу оплаты.
func (s *PaymentService) Initiate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*FundingResult, error) {
	if err := validation.ValidateAmount("сумма пополнения", amount); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	p := &models.Payment{
		UserID:   userID,
		TxRef:    models.NewTransactionReference("fund"),
		Provider: s.gateway.Name(),
		Amount:   amount,
		Currency: s.cfg.Currency,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, mapError(err)
	}

	checkout, err := s.gateway.Initiate(ctx, payment.ChargeRequest{
		TxRef:       p.TxRef,
		Amount:      amount,
		Currency:    p.Currency,
		RedirectURL: s.cfg.RedirectURL,
		Title:       "Пополнение кошелька",
		Customer: payment.Customer{
			Email: user.Email,
			Phone: user.Phone,
			Name:  user.FullName(),
		},
	})
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, p.TxRef); markErr != nil {
			logger.Log.WithError(markErr).Warn("payment service: не удалось пометить платёж неуспешным")
		}
		metrics.PaymentsTotal.WithLabelValues("failed").Inc()
		return nil, apperror.Wrap(err, apperror.ErrCodeUpstream, "платёжный шлюз недоступен, попробуйте позже")
	}

	if err := s.repo.SetCheckoutURL(ctx, p.ID, checkout.Link); err != nil {
		return nil, mapError(err)
	}
	p.CheckoutURL = &checkout.Link

	metrics.PaymentsTotal.WithLabelValues("initiated").Inc()
	return &FundingResult{Payment: p, CheckoutURL: checkout.Link}, nil
}

// Verify проверяет платёж у шлюза и зачисляет его на кошелёк ровно один раз.
// Возвращает платёж владельца userID.
func (s *PaymentService) Verify(ctx context.Context, userID uuid.UUID, txRef, providerTxID string) (*VerifyResult, error) {
	p, err := s.lookup(ctx, txRef, providerTxID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperror.NotFound("платёж не найден")
	}
	return s.settle(ctx, p, providerTxID)
}

// HandleWebhook проверяет подпись уведомления шлюза и выполняет ту же проверку платежа.
func (s *PaymentService) HandleWebhook(ctx context.Context, signature, txRef, providerTxID string) (*VerifyResult, error) {
	if s.cfg.WebhookHash == "" || !hmac.Equal([]byte(signature), []byte(s.cfg.WebhookHash)) {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "неверная подпись webhook")
	}

	p, err := s.lookup(ctx, txRef, providerTxID)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, p, providerTxID)
}

// List возвращает платежи пользователя.
func (s *PaymentService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	limit, offset = normalizePage(limit, offset)
	payments, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	return payments, nil
}

func (s *PaymentService) lookup(ctx context.Context, txRef, providerTxID string) (*models.Payment, error) {
	txRef = strings.TrimSpace(txRef)
	providerTxID = strings.TrimSpace(providerTxID)
	if txRef == "" || providerTxID == "" {
		return nil, apperror.Validation("tx_ref и transaction_id обязательны")
	}

	p, err := s.repo.GetByTxRef(ctx, txRef)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (s *PaymentService) settle(ctx context.Context, p *models.Payment, providerTxID string) (*VerifyResult, error) {
	if p.Status == models.PaymentStatusSuccessful {
		metrics.PaymentsTotal.WithLabelValues("duplicate").Inc()
		return &VerifyResult{Payment: p, AlreadyProcessed: true}, nil
	}

	charge, err := s.gateway.Verify(ctx, providerTxID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeUpstream, "не удалось проверить платёж у шлюза")
	}

	if err := charge.Validate(p.TxRef, p.Amount, p.Currency); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"tx_ref":         p.TxRef,
			"provider_tx_id": providerTxID,
			"status":         charge.Status,
			"currency":       charge.Currency,
			"charged":        charge.ChargedAmount.String(),
			"reason":         err.Error(),
		}).Warn("payment service: платёж отклонён")

		// чужая ссылка не должна менять наш платёж
		if !errors.Is(err, payment.ErrReferenceMismatch) {
			if markErr := s.repo.MarkFailed(ctx, p.TxRef); markErr != nil {
				logger.Log.WithError(markErr).Warn("payment service: не удалось пометить платёж неуспешным")
			}
		}
		metrics.PaymentsTotal.WithLabelValues("rejected").Inc()
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, rejectionMessage(err))
	}

	settled, entry, err := s.repo.Settle(ctx, p.TxRef, providerTxID)
	if errors.Is(err, repository.ErrPaymentAlreadyProcessed) {
		metrics.PaymentsTotal.WithLabelValues("duplicate").Inc()
		current, getErr := s.repo.GetByTxRef(ctx, p.TxRef)
		if getErr != nil {
			return nil, mapError(getErr)
		}
		return &VerifyResult{Payment: current, AlreadyProcessed: true}, nil
	}
	if err != nil {
		return nil, mapError(err)
	}

	metrics.PaymentsTotal.WithLabelValues("successful").Inc()
	metrics.LedgerEntriesTotal.WithLabelValues(models.TransactionTypeCredit).Inc()

	if s.notifier != nil {
		s.notifier.Notify(ctx, settled.UserID, models.EventWalletFunded, map[string]any{
			"payment_id":    settled.ID,
			"amount":        settled.Amount,
			"balance_after": entry.BalanceAfter,
		})
	}

	return &VerifyResult{Payment: settled}, nil
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, payment.ErrChargeNotSuccessful):
		return "платёж не был успешно завершён"
	case errors.Is(err, payment.ErrCurrencyMismatch):
		return "валюта платежа не совпадает"
	case errors.Is(err, payment.ErrAmountTooLow):
		return "оплачено меньше ожидаемой суммы"
	case errors.Is(err, payment.ErrReferenceMismatch):
		return "платёж не относится к этому пополнению"
	}
	return "платёж отклонён"
}
