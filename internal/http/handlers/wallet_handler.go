package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/errands-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errands-backend/internal/models"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// WalletHandler баланс и история проводок.
type WalletHandler struct {
	wallets *service.WalletService
}

func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// Get GET /wallet
func (h *WalletHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	wallet, err := h.wallets.Get(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// Transactions GET /wallet/transactions
func (h *WalletHandler) Transactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	txs, err := h.wallets.Transactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// Reconcile GET /wallet/reconcile
func (h *WalletHandler) Reconcile(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	summary, err := h.wallets.Reconcile(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Adjust POST /admin/wallets/:user_id/adjust
// Ручная проводка администратора. Повтор с тем же reference отклоняется.
func (h *WalletHandler) Adjust(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "user_id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Type        string          `json:"type" binding:"required"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description" binding:"required"`
		Reference   string          `json:"reference"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = models.NewTransactionReference("adj")
	}

	var tx *models.WalletTransaction
	switch strings.ToUpper(req.Type) {
	case models.TransactionTypeCredit:
		tx, err = h.wallets.Credit(c.Request.Context(), userID, req.Amount, req.Description, reference)
	case models.TransactionTypeDebit:
		tx, err = h.wallets.Debit(c.Request.Context(), userID, req.Amount, req.Description, reference)
	default:
		err = apperror.Validation("type может быть CREDIT или DEBIT")
	}
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}
