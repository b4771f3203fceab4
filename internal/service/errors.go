package service

import (
	"errors"

	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
	"github.com/ignatzorin/courier-backend/internal/provider"
	"github.com/ignatzorin/courier-backend/internal/repository"
)

// mapRepoError переводит ошибки репозиториев в ошибки приложения. Неизвестные
// ошибки возвращаются как есть и превращаются в 500 на уровне HTTP.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrOrderNotFound):
		return apperror.ErrOrderNotFound
	case errors.Is(err, repository.ErrOrderAlreadyResolved):
		return apperror.ErrOrderAlreadyResolved
	case errors.Is(err, repository.ErrOrderNotAssigned):
		return apperror.ErrOrderNotAssigned
	case errors.Is(err, repository.ErrOrderClosed):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "заказ уже закрыт")
	case errors.Is(err, repository.ErrWalletNotFound):
		return apperror.ErrWalletNotFound
	case errors.Is(err, repository.ErrTransactionNotFound):
		return apperror.ErrTransactionNotFound
	case errors.Is(err, repository.ErrPaymentRequestNotFound):
		return apperror.Wrap(err, apperror.ErrCodeNotFound, "запрос на оплату не найден")
	case errors.Is(err, repository.ErrInsufficientFunds):
		return apperror.ErrInsufficientFunds
	}
	return err
}

// mapProviderError переводит синхронный отказ провайдера в ошибку приложения.
func mapProviderError(err error) error {
	if errors.Is(err, provider.ErrDeclined) {
		return apperror.Wrap(err, apperror.ErrCodeBadRequest, "провайдер отклонил операцию")
	}
	return apperror.Wrap(err, apperror.ErrCodeProviderUnavailable, apperror.ErrProviderUnavailable.Message)
}
