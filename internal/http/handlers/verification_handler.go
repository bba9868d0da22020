package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/errands-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// VerificationHandler одноразовые коды: подтверждение email и телефона, сброс пароля.
type VerificationHandler struct {
	svc  *service.VerificationService
	auth *service.AuthService
}

func NewVerificationHandler(s *service.VerificationService, auth *service.AuthService) *VerificationHandler {
	return &VerificationHandler{svc: s, auth: auth}
}

// SendEmailCode POST /verification/email/send
func (h *VerificationHandler) SendEmailCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	warning, err := h.svc.SendEmailVerification(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sentResponse(warning))
}

// VerifyEmail POST /verification/email/verify
// После подтверждения выдаётся новая пара токенов онбординга.
func (h *VerificationHandler) VerifyEmail(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	if err := h.svc.VerifyEmail(c.Request.Context(), userID, req.Code); err != nil {
		common.Fail(c, err)
		return
	}

	tokens, err := h.auth.IssueOnboardingTokens(c.Request.Context(), userID, common.RequestMeta(c))
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email подтверждён", "tokens": tokens})
}

// SendPhoneCode POST /verification/phone/send
func (h *VerificationHandler) SendPhoneCode(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	warning, err := h.svc.SendPhoneVerification(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sentResponse(warning))
}

// VerifyPhone POST /verification/phone/verify
func (h *VerificationHandler) VerifyPhone(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	if err := h.svc.VerifyPhone(c.Request.Context(), userID, req.Code); err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "телефон подтверждён"})
}

// Resend POST /verification/resend
// type: email или phone.
func (h *VerificationHandler) Resend(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Type string `json:"type" binding:"required"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	warning, err := h.svc.Resend(c.Request.Context(), userID, req.Type)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sentResponse(warning))
}

// ForgotPassword POST /auth/forgot-password
// Ответ не зависит от того, существует ли аккаунт.
func (h *VerificationHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	warning, err := h.svc.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sentResponse(warning))
}

// ResetPassword POST /auth/reset-password
func (h *VerificationHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required"`
		Code        string `json:"code" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "пароль изменён, войдите заново"})
}

func sentResponse(warning string) gin.H {
	resp := gin.H{"message": "код отправлен"}
	if warning != "" {
		resp["warning"] = warning
	}
	return resp
}
