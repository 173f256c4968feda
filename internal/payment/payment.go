// Package payment содержит адаптеры внешних платёжных систем.
//
// Провайдеры различаются формулой подписи, форматом webhook и форматом
// подтверждения, но реализуют единый контракт Provider. Конкретный провайдер
// выбирается конфигурацией, а не ветвлениями в обработчиках.
package payment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

// Способы оплаты, допустимые при оформлении заказа.
const (
	MethodCard = "card"
	MethodSBP  = "sbp"
)

// ErrUnknownProvider возвращается при обращении к незарегистрированному провайдеру.
var ErrUnknownProvider = errors.New("unknown payment provider")

// CreateRequest описывает параметры создания платежа у провайдера.
type CreateRequest struct {
	OrderID     int64
	AmountCents int64
	Currency    string
	Description string
	UserID      int64
	Method      string
}

// CreateResult описывает созданный у провайдера платёж.
type CreateResult struct {
	ExternalID string
	PaymentURL string
	Status     model.PaymentStatus
}

// Provider — единый контракт платёжного провайдера.
type Provider interface {
	// Name возвращает имя провайдера, под которым он хранится в платежах.
	Name() string
	// CreatePayment создаёт платёж и возвращает ссылку для оплаты.
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	// VerifyWebhookSignature проверяет подпись webhook. Сумма передаётся
	// строкой в том виде, в котором её прислал провайдер: подпись считается
	// от исходного строкового представления.
	VerifyWebhookSignature(amount string, orderID int64, signature string) bool
}

// Registry хранит сконфигурированные провайдеры по имени.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry создаёт реестр из перечисленных провайдеров.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get возвращает провайдера по имени.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// FormatAmount форматирует сумму в копейках в строку с двумя знаками после
// точки, как того требуют платёжные API.
func FormatAmount(amountCents int64) string {
	sign := ""
	if amountCents < 0 {
		sign = "-"
		amountCents = -amountCents
	}
	return fmt.Sprintf("%s%d.%02d", sign, amountCents/100, amountCents%100)
}

// ParseAmount разбирает денежную строку провайдера в копейки. Допускается не
// более двух знаков после точки; строка разбирается без плавающей точки,
// чтобы не накапливать ошибку округления.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}

	if len(fracPart) > 2 {
		return 0, fmt.Errorf("too many decimal places in amount %q", s)
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}

	rub, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	kop, err := strconv.ParseUint(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}

	cents := rub * 100
	if rub < 0 || strings.HasPrefix(intPart, "-") {
		cents -= int64(kop)
	} else {
		cents += int64(kop)
	}
	return cents, nil
}

var orderIDRe = regexp.MustCompile(`\d+`)

// ExtractOrderID извлекает номер заказа из поля webhook. Провайдер может
// прислать как число, так и строку вида "Заказ 123".
func ExtractOrderID(s string) (int64, error) {
	m := orderIDRe.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("no order id in %q", s)
	}
	id, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse order id %q: %w", s, err)
	}
	return id, nil
}
