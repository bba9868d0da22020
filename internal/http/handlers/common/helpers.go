package common

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/errands-backend/internal/authz"
	"github.com/ignatzorin/errands-backend/internal/http/middleware"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
)

// CurrentUserID извлекает userID, положенный AuthMiddleware.
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	userID, ok := raw.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return userID, nil
}

// CurrentActor возвращает пользователя запроса вместе с ролью.
func CurrentActor(c *gin.Context) (authz.Actor, error) {
	userID, err := CurrentUserID(c)
	if err != nil {
		return authz.Actor{}, err
	}
	return authz.Actor{ID: userID, Role: c.GetString(middleware.ContextRoleKey)}, nil
}

// ParseUUIDParam разбирает UUID из параметра пути.
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(c.Param(paramName))
	if err != nil {
		return uuid.Nil, apperror.Validation("параметр "+paramName+" должен быть валидным UUID").
			WithDetail("param", paramName)
	}
	return parsed, nil
}

// BindJSON разбирает тело запроса. Ошибка уже приведена к VALIDATION_ERROR.
func BindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "некорректное тело запроса")
	}
	return nil
}

// Fail передаёт ошибку в ErrorHandler.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

// RequestMeta данные клиента для сессии.
func RequestMeta(c *gin.Context) map[string]string {
	return map[string]string{
		"user_agent": c.GetHeader("User-Agent"),
		"ip":         c.ClientIP(),
	}
}

// ParseIntQuery читает целый query параметр, при ошибке возвращает fallback.
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination читает limit и offset. Границы проверяют сервисы.
func GetPagination(c *gin.Context) (limit, offset int) {
	return ParseIntQuery(c, "limit", 0), ParseIntQuery(c, "offset", 0)
}
