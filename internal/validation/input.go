package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// Константы валидации
const (
	MaxNoteLength   = 500
	MaxReasonLength = 500
	MaxAmountDigits = 2
)

// MaxAmount верхняя граница суммы одной операции.
var MaxAmount = decimal.NewFromInt(1_000_000)

var phoneRegex = regexp.MustCompile(`^\+?[1-9][0-9]{8,14}$`)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// NormalizePhone убирает пробелы, дефисы и скобки из номера.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// ValidatePhone проверяет номер мобильного кошелька в формате E.164.
func ValidatePhone(fieldName, phone string) error {
	if phone == "" {
		return fmt.Errorf("%s обязателен", fieldName)
	}
	if !phoneRegex.MatchString(NormalizePhone(phone)) {
		return fmt.Errorf("%s имеет некорректный формат", fieldName)
	}
	return nil
}

// ValidateAmount проверяет сумму операции: положительная, не больше двух
// знаков после запятой, в пределах [min, MaxAmount].
func ValidateAmount(amount, min decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("сумма должна быть положительной")
	}
	if !amount.Equal(amount.Truncate(MaxAmountDigits)) {
		return fmt.Errorf("сумма может содержать не более %d знаков после запятой", MaxAmountDigits)
	}
	if amount.LessThan(min) {
		return fmt.Errorf("сумма должна быть не меньше %s", min.String())
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("сумма не может превышать %s", MaxAmount.String())
	}
	return nil
}

// ValidateNote проверяет необязательный комментарий.
func ValidateNote(note string) error {
	return ValidateLength("комментарий", strings.TrimSpace(note), 0, MaxNoteLength)
}

// ValidatePushPaymentType проверяет, что через push можно оплатить только
// доставку или чаевые.
func ValidatePushPaymentType(t models.TransactionType) error {
	if t != models.TransactionTypeTip && t != models.TransactionTypeDeliveryPay {
		return fmt.Errorf("тип оплаты должен быть tip или delivery_pay")
	}
	return nil
}

// ValidateOrderStatus проверяет статус заказа.
func ValidateOrderStatus(status string) error {
	if !models.IsValidOrderStatus(status) {
		return fmt.Errorf("неизвестный статус заказа %q", status)
	}
	return nil
}
