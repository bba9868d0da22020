package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
)

// UUIDValidator проверяет, что параметры пути являются валидными UUID.
// Использование: tasks.GET("/:id", UUIDValidator("id"), handler.Get)
func UUIDValidator(params ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range params {
			if _, err := uuid.Parse(c.Param(name)); err != nil {
				abort(c, apperror.Validation("параметр "+name+" должен быть валидным UUID").
					WithDetail("param", name))
				return
			}
		}
		c.Next()
	}
}
