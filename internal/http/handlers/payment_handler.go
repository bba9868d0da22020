package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// WebhookSignatureHeader заголовок, в котором шлюз передаёт секрет webhook.
const WebhookSignatureHeader = "verif-hash"

// PaymentHandler пополнение кошелька через платёжный шлюз.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Fund POST /wallet/fund
func (h *PaymentHandler) Fund(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	result, err := h.payments.Initiate(c.Request.Context(), userID, req.Amount)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// VerifyFunding GET /wallet/fund/verify?tx_ref=...&transaction_id=...
// Шлюз возвращает пользователя на этот адрес после оплаты.
func (h *PaymentHandler) VerifyFunding(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	txRef := c.Query("tx_ref")
	providerTxID := c.Query("transaction_id")
	if txRef == "" || providerTxID == "" {
		common.Fail(c, apperror.Validation("tx_ref и transaction_id обязательны"))
		return
	}

	result, err := h.payments.Verify(c.Request.Context(), userID, txRef, providerTxID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListPayments GET /wallet/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	payments, err := h.payments.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID     json.Number `json:"id"`
		TxRef  string      `json:"tx_ref"`
		Status string      `json:"status"`
	} `json:"data"`
}

// Webhook POST /payments/webhook
// Незавершённые события подтверждаются без обработки, чтобы шлюз не повторял их.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	var payload webhookPayload
	if err := common.BindJSON(c, &payload); err != nil {
		common.Fail(c, err)
		return
	}

	log := logger.Log.WithFields(logrus.Fields{
		"event":  payload.Event,
		"tx_ref": payload.Data.TxRef,
		"status": payload.Data.Status,
	})

	if payload.Data.Status != "successful" {
		log.Info("payment webhook: событие пропущено")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	providerTxID := payload.Data.ID.String()
	if _, err := strconv.ParseInt(providerTxID, 10, 64); err != nil || payload.Data.TxRef == "" {
		common.Fail(c, apperror.Validation("в событии нет id или tx_ref"))
		return
	}

	result, err := h.payments.HandleWebhook(c.Request.Context(), c.GetHeader(WebhookSignatureHeader), payload.Data.TxRef, providerTxID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	log.WithField("already_processed", result.AlreadyProcessed).Info("payment webhook: платёж обработан")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
