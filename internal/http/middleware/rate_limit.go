package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// RateLimitMiddleware ограничивает число запросов. Для авторизованного курьера
// лимит считается по его идентификатору, иначе по IP.
// По умолчанию: 10 запросов в минуту.
func RateLimitMiddleware(limit int64, period time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = 1 * time.Minute
	}

	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	instance := limiter.New(memory.NewStore(), rate)

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if courierID, err := common.CurrentCourierID(c); err == nil {
			key = "courier:" + courierID.String()
		}

		state, err := instance.Get(c, key)
		if err != nil {
			common.AbortAppError(c, err)
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", state.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", state.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", state.Reset))

		if state.Reached {
			common.AbortAppError(c, apperror.New(apperror.ErrCodeTooManyRequests, "слишком много запросов, попробуйте позже"))
			return
		}

		c.Next()
	}
}
