package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextUserIDKey    = "userID"
	ContextRoleKey      = "role"
	ContextScopeKey     = "scope"
	ContextRequestIDKey = "requestID"
)

// AuthMiddleware проверяет JWT access токен и кладёт пользователя в контекст.
func AuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			abort(c, apperror.ErrUnauthorized)
			return
		}

		claims, err := tokens.ParseAccess(strings.TrimPrefix(auth, "Bearer "))
		if err != nil || claims.UserID == uuid.Nil {
			abort(c, apperror.New(apperror.ErrCodeUnauthorized, "токен невалиден"))
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextRoleKey, claims.Role)
		c.Set(ContextScopeKey, claims.Scope)
		c.Next()
	}
}

// RequireFullScope пропускает только токены, выданные после завершения онбординга.
func RequireFullScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextScopeKey) != service.ScopeFull {
			abort(c, apperror.New(apperror.ErrCodeOnboardingRequired, "завершите онбординг и войдите заново"))
			return
		}
		c.Next()
	}
}

// RequireRole пропускает пользователей с одной из ролей.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRoleKey)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, apperror.ErrForbidden)
	}
}
