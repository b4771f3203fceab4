package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/logger"
)

// ErrorHandler обрабатывает ошибки, добавленные хэндлерами через c.Error.
// Ошибки приложения отдаются с их кодом, остальные маскируются как 500.
func ErrorHandler() gin.HandlerFunc {
	log := logger.Component("http")

	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("ошибка обработки запроса")

		common.RespondAppError(c, err)
	}
}

// RequestLogger пишет в лог каждый запрос с длительностью и статусом.
func RequestLogger() gin.HandlerFunc {
	log := logger.Component("http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn("запрос завершился ошибкой")
			return
		}
		entry.Debug("запрос обработан")
	}
}
