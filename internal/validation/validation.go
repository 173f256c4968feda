// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidPromoCode проверяет форму промокода: от 3 до 50 символов,
// латинские буквы, цифры, дефис и подчёркивание.
func IsValidPromoCode(code string) bool {
	if len(code) < 3 || len(code) > 50 {
		return false
	}

	for _, ch := range code {
		switch {
		case unicode.IsDigit(ch):
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}

	return true
}

// IsValidPaymentMethod проверяет способ оплаты.
func IsValidPaymentMethod(method string) bool {
	return method == "card" || method == "sbp"
}
