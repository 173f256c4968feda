// Package promo реализует проверку промокодов и расчёт скидки.
//
// Пакет только читает промокод: счётчик использований увеличивает транзакция
// оформления заказа, иначе повторные попытки оформления увеличивали бы его
// несколько раз.
package promo

import (
	"errors"
	"strings"
	"time"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

// Причины отклонения промокода. Каждая причина отдельная, чтобы клиент получал
// конкретное объяснение, а не общий отказ.
var (
	ErrNotFound       = errors.New("promo code not found")
	ErrInactive       = errors.New("promo code is inactive")
	ErrNotStarted     = errors.New("promo code is not yet valid")
	ErrExpired        = errors.New("promo code expired")
	ErrLimitReached   = errors.New("promo code usage limit reached")
	ErrMinOrderAmount = errors.New("order amount below promo code minimum")
)

// NormalizeCode приводит промокод к каноническому виду: коды сравниваются без
// учёта регистра и хранятся в верхнем регистре.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Evaluate проверяет промокод против суммы заказа и момента времени и
// возвращает размер скидки в копейках. Скидка всегда в пределах [0, subtotal].
func Evaluate(promo *model.PromoCode, subtotalCents int64, now time.Time) (int64, error) {
	if promo == nil {
		return 0, ErrNotFound
	}
	if !promo.IsActive {
		return 0, ErrInactive
	}
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return 0, ErrNotStarted
	}
	if promo.ValidUntil != nil && now.After(*promo.ValidUntil) {
		return 0, ErrExpired
	}
	if promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit {
		return 0, ErrLimitReached
	}
	if promo.MinOrderCents != nil && subtotalCents < *promo.MinOrderCents {
		return 0, ErrMinOrderAmount
	}

	var discount int64
	switch promo.DiscountType {
	case model.DiscountTypePercent:
		// DiscountValue — проценты (20 означает 20%).
		discount = subtotalCents * promo.DiscountValue / 100
		if promo.MaxDiscountCents != nil && discount > *promo.MaxDiscountCents {
			discount = *promo.MaxDiscountCents
		}
	case model.DiscountTypeFixed:
		// DiscountValue — фиксированная скидка в копейках.
		discount = promo.DiscountValue
	default:
		return 0, ErrNotFound
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}

	return discount, nil
}
