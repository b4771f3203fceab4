package middleware

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// ServiceKeyHeader заголовок с ключом внутреннего сервиса.
const ServiceKeyHeader = "X-Service-Key"

// ServiceKeyMiddleware пускает вызовы диспетчерской системы и провайдера,
// сверяя ключ из заголовка с bcrypt-хэшем из конфигурации.
func ServiceKeyMiddleware(service, keyHash string) gin.HandlerFunc {
	log := logger.Component("service-key").WithField("service", service)
	hash := []byte(keyHash)

	return func(c *gin.Context) {
		if len(hash) == 0 {
			log.Error("хэш ключа сервиса не настроен, запрос отклонён")
			common.AbortAppError(c, apperror.ErrUnauthorized)
			return
		}

		key := c.GetHeader(ServiceKeyHeader)
		if key == "" {
			common.AbortAppError(c, apperror.ErrUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
			log.WithField("ip", c.ClientIP()).Warn("неверный ключ сервиса")
			common.AbortAppError(c, apperror.New(apperror.ErrCodeUnauthorized, "неверный ключ сервиса"))
			return
		}
		c.Set(common.ContextServiceKey, service)
		c.Next()
	}
}
