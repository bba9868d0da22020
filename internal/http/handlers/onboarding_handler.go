package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/errands-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// OnboardingHandler шаги онбординга. Доступен с токеном онбординга.
type OnboardingHandler struct {
	onboarding *service.OnboardingService
}

// NewOnboardingHandler создаёт хэндлер.
func NewOnboardingHandler(onboarding *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{onboarding: onboarding}
}

// Status GET /onboarding/status
func (h *OnboardingHandler) Status(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	status, err := h.onboarding.Status(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// DocumentTypes GET /onboarding/document-types
func (h *OnboardingHandler) DocumentTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"document_types": h.onboarding.DocumentTypes()})
}

// SubmitIdentity POST /onboarding/identity (multipart: country, document_type, file)
func (h *OnboardingHandler) SubmitIdentity(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	file, closeFile, err := openUpload(c, "file", documentUpload)
	if err != nil {
		common.Fail(c, err)
		return
	}
	defer closeFile()

	doc, err := h.onboarding.SubmitIdentity(c.Request.Context(), userID, c.PostForm("country"), c.PostForm("document_type"), file)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// UploadPicture POST /onboarding/picture (multipart: file)
func (h *OnboardingHandler) UploadPicture(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	file, closeFile, err := openUpload(c, "file", pictureUpload)
	if err != nil {
		common.Fail(c, err)
		return
	}
	defer closeFile()

	url, err := h.onboarding.UploadPicture(c.Request.Context(), userID, file)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"picture_url": url})
}

// UpdateLocation PUT /onboarding/location
func (h *OnboardingHandler) UpdateLocation(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Permission string   `json:"permission" binding:"required"`
		City       *string  `json:"city"`
		Latitude   *float64 `json:"latitude"`
		Longitude  *float64 `json:"longitude"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	user, err := h.onboarding.UpdateLocation(c.Request.Context(), userID, service.LocationInput{
		Permission: req.Permission,
		City:       req.City,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// AcceptTerms POST /onboarding/terms
func (h *OnboardingHandler) AcceptTerms(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	acceptance, err := h.onboarding.AcceptTerms(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, acceptance)
}

// AddWithdrawalMethod POST /onboarding/withdrawal-methods
func (h *OnboardingHandler) AddWithdrawalMethod(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		MethodType    string `json:"method_type" binding:"required"`
		BankName      string `json:"bank_name"`
		AccountNumber string `json:"account_number" binding:"required"`
		AccountName   string `json:"account_name" binding:"required"`
	}
	if err := common.BindJSON(c, &req); err != nil {
		common.Fail(c, err)
		return
	}

	method, err := h.onboarding.AddWithdrawalMethod(c.Request.Context(), userID, service.WithdrawalMethodInput{
		MethodType:    req.MethodType,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, method)
}

// ListWithdrawalMethods GET /onboarding/withdrawal-methods
func (h *OnboardingHandler) ListWithdrawalMethods(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	methods, err := h.onboarding.ListWithdrawalMethods(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal_methods": methods})
}

// DeleteWithdrawalMethod DELETE /onboarding/withdrawal-methods/:id
func (h *OnboardingHandler) DeleteWithdrawalMethod(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	if err := h.onboarding.DeleteWithdrawalMethod(c.Request.Context(), userID, id); err != nil {
		common.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
