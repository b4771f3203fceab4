package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusConflict, ErrOrderAlreadyResolved.HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, ErrInsufficientFunds.HTTPStatus)
	assert.Equal(t, http.StatusServiceUnavailable, ErrProviderUnavailable.HTTPStatus)
	assert.Equal(t, http.StatusNotFound, ErrOrderNotFound.HTTPStatus)
}

func TestWrappedErrorsKeepCode(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("payout: %w", Wrap(cause, ErrCodeProviderUnavailable, "провайдер недоступен"))

	assert.True(t, IsProviderUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.Retryable())
}

func TestIsMatchesPredefined(t *testing.T) {
	err := fmt.Errorf("respond: %w", ErrOrderAlreadyResolved)
	assert.ErrorIs(t, err, ErrOrderAlreadyResolved)
	assert.NotErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, IsConflict(err))
}

func TestMessageOfHidesInternal(t *testing.T) {
	assert.Equal(t, "недостаточно прав", MessageOf(fmt.Errorf("subscribe: %w", ErrForbidden)))
	assert.Equal(t, "внутренняя ошибка сервера", MessageOf(errors.New("pq: connection reset")))
}
