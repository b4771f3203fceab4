package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// AccessTokenParser проверяет access токен и возвращает субъекта и роль.
type AccessTokenParser interface {
	ParseAccess(token string) (uuid.UUID, string, error)
}

// AuthMiddleware проверяет JWT access токен курьера.
func AuthMiddleware(tokens AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			common.AbortAppError(c, apperror.ErrUnauthorized)
			return
		}

		raw := strings.TrimPrefix(auth, "Bearer ")
		courierID, role, err := tokens.ParseAccess(raw)
		if err != nil || courierID == uuid.Nil {
			common.AbortAppError(c, apperror.New(apperror.ErrCodeUnauthorized, "токен невалиден"))
			return
		}

		c.Set(common.ContextCourierIDKey, courierID)
		c.Set(common.ContextRoleKey, role)
		c.Next()
	}
}

// RequireRole пропускает только токены с указанной ролью.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := common.CurrentRole(c)
		if err != nil || current != role {
			common.AbortAppError(c, apperror.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RequireCourierParam проверяет, что курьер из пути совпадает с владельцем токена.
func RequireCourierParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		courierID, err := common.CurrentCourierID(c)
		if err != nil {
			common.AbortAppError(c, apperror.ErrUnauthorized)
			return
		}
		if c.Param(paramName) != courierID.String() {
			common.AbortAppError(c, apperror.ErrForbidden)
			return
		}
		c.Next()
	}
}
