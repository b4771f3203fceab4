package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// UUIDValidator проверяет, что параметры пути являются валидными UUID.
// Использование: router.GET("/wallets/:walletId/audit", UUIDValidator("walletId"), handler.Audit)
func UUIDValidator(paramNames ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range paramNames {
			raw := c.Param(name)
			if raw == "" {
				common.AbortAppError(c, apperror.New(apperror.ErrCodeValidation, "параметр "+name+" обязателен"))
				return
			}
			if _, err := uuid.Parse(raw); err != nil {
				common.AbortAppError(c, apperror.New(apperror.ErrCodeValidation, "параметр "+name+" должен быть валидным UUID"))
				return
			}
		}
		c.Next()
	}
}
