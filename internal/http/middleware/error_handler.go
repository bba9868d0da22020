package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errands-backend/internal/logger"
	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
)

// ErrorHandler отдаёт клиенту последнюю ошибку из c.Errors.
// Ошибки без AppError считаются внутренними: клиент видит общее сообщение, причина пишется в лог.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := apperror.As(err)
		if !ok {
			appErr = apperror.Internal(err)
		}

		if appErr.HTTPStatus >= 500 {
			requestLog(c).WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("request error")
		}

		c.JSON(appErr.HTTPStatus, errorBody(appErr))
	}
}

// abort прерывает цепочку и сразу отдаёт ошибку в общем формате.
func abort(c *gin.Context, appErr *apperror.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, errorBody(appErr))
}

func errorBody(appErr *apperror.AppError) gin.H {
	body := gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	}
	for k, v := range appErr.Details {
		body[k] = v
	}
	return body
}

func requestLog(c *gin.Context) *logrus.Entry {
	return logger.WithRequestID(c.GetString(ContextRequestIDKey))
}
