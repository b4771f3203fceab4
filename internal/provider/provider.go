// Package provider описывает внешнего платёжного провайдера: push-оплату от
// клиента и выплату на мобильный кошелёк курьера. Оба вызова возвращают
// correlation id, по которому позже приходит асинхронный колбэк.
package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable провайдер не ответил или вернул ошибку сервера.
	ErrUnavailable = errors.New("provider: unavailable")
	// ErrDeclined провайдер синхронно отклонил операцию.
	ErrDeclined = errors.New("provider: declined")
)

// PushPaymentRequest запрос на списание с телефона плательщика.
type PushPaymentRequest struct {
	Reference   string
	Amount      decimal.Decimal
	PayerPhone  string
	Description string
}

// PayoutRequest запрос на выплату курьеру.
type PayoutRequest struct {
	Reference        string
	Amount           decimal.Decimal
	DestinationPhone string
}

// Initiation ответ провайдера на запуск операции.
type Initiation struct {
	CorrelationID string
}

// Provider контракт, который ядро требует от платёжного провайдера.
type Provider interface {
	InitiatePushPayment(ctx context.Context, req PushPaymentRequest) (*Initiation, error)
	InitiatePayout(ctx context.Context, req PayoutRequest) (*Initiation, error)
}
