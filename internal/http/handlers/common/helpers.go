package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// Context ключи для gin.Context.
const (
	ContextCourierIDKey = "courierID"
	ContextRoleKey      = "role"
	ContextServiceKey   = "service"
)

var (
	// ErrCourierNotFound курьер не найден в контексте запроса
	ErrCourierNotFound = errors.New("курьер не найден в контексте")

	// ErrInvalidUUID is returned when UUID parsing fails
	ErrInvalidUUID = errors.New("неверный формат UUID")
)

// CurrentCourierID извлекает идентификатор курьера, положенный AuthMiddleware.
func CurrentCourierID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(ContextCourierIDKey)
	if !exists {
		return uuid.Nil, ErrCourierNotFound
	}

	courierID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrCourierNotFound
	}

	return courierID, nil
}

// CurrentRole извлекает роль из токена.
func CurrentRole(c *gin.Context) (string, error) {
	raw, exists := c.Get(ContextRoleKey)
	if !exists {
		return "", ErrCourierNotFound
	}

	role, ok := raw.(string)
	if !ok {
		return "", ErrCourierNotFound
	}

	return role, nil
}

// ParseUUIDParam parses UUID from URL parameter
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	param := c.Param(paramName)
	if param == "" {
		return uuid.Nil, fmt.Errorf("параметр %s отсутствует", paramName)
	}

	parsed, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}

	return parsed, nil
}

// BindJSON разбирает тело запроса и сразу отвечает 400 при ошибке.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		RespondAppError(c, apperror.Wrap(err, apperror.ErrCodeValidation, "ошибка валидации запроса: "+err.Error()))
		return false
	}
	return true
}

// RespondAppError отвечает ошибкой приложения с её HTTP статусом. Ошибки без
// кода считаются внутренними и не раскрываются клиенту.
func RespondAppError(c *gin.Context, err error) {
	c.JSON(statusOf(err), errorBody(err))
}

// AbortAppError прерывает цепочку middleware с ошибкой приложения.
func AbortAppError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), errorBody(err))
}

func statusOf(err error) int {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func errorBody(err error) dto.ErrorResponse {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return dto.ErrorResponse{
			Error:     appErr.Message,
			Code:      string(appErr.Code),
			Retryable: appErr.Retryable(),
		}
	}
	return dto.ErrorResponse{
		Error: apperror.MessageOf(err),
		Code:  string(apperror.ErrCodeInternal),
	}
}

// RespondJSON sends a JSON response with the given status code and data
func RespondJSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// ParseIntQuery safely reads an integer query parameter with a fallback value
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination extracts limit and offset from query parameters with defaults
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", 20)
	offset = ParseIntQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}
