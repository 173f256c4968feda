package service

import (
	"context"
	"errors"
	"time"

	"github.com/obelyakov/teleshop-checkout/internal/model"
	"github.com/obelyakov/teleshop-checkout/internal/payment"
	"github.com/obelyakov/teleshop-checkout/internal/repository"
)

// ErrSignatureInvalid возвращается при неверной подписи вебхука.
var (
	ErrSignatureInvalid = errors.New("webhook signature mismatch")
	// ErrAmountMismatch возвращается, когда сумма в вебхуке не совпадает
	// с суммой платежа.
	ErrAmountMismatch = errors.New("webhook amount mismatch")
)

// Допуск на расхождение суммы после конвертации провайдером, в копейках.
const amountToleranceCents = 1

// WebhookEvent описывает нормализованное уведомление платёжного провайдера.
// Amount сравнивается с суммой платежа. SignedAmount хранит строку суммы,
// от которой считается подпись: провайдер может подписывать сумму до вычета
// комиссии. Пустой SignedAmount означает, что подписана Amount.
type WebhookEvent struct {
	Provider     string
	OrderID      int64
	ExternalID   string
	Amount       string
	SignedAmount string
	Signature    string
	Status       model.PaymentStatus
}

// ProcessWebhook проверяет подлинность уведомления и проводит платёж.
// Повторное уведомление по уже проведённому платежу не меняет состояние
// и не считается ошибкой.
func (s *Service) ProcessWebhook(ctx context.Context, ev WebhookEvent) error {
	provider, err := s.providers.Get(ev.Provider)
	if err != nil {
		return err
	}

	pay, err := s.repo.GetPaymentByOrder(ctx, ev.OrderID, ev.Provider)
	if err != nil {
		if !errors.Is(err, repository.ErrPaymentNotFound) || ev.ExternalID == "" {
			return err
		}
		pay, err = s.repo.GetPaymentByExternalID(ctx, ev.Provider, ev.ExternalID)
		if err != nil {
			return err
		}
	}

	signedAmount := ev.SignedAmount
	if signedAmount == "" {
		signedAmount = ev.Amount
	}
	if !provider.VerifyWebhookSignature(signedAmount, ev.OrderID, ev.Signature) {
		return ErrSignatureInvalid
	}

	if ev.Status == model.PaymentStatusSuccess {
		amountCents, err := payment.ParseAmount(ev.Amount)
		if err != nil {
			return ErrAmountMismatch
		}
		diff := pay.AmountCents - amountCents
		if diff < -amountToleranceCents || diff > amountToleranceCents {
			return ErrAmountMismatch
		}
	}

	var (
		paidAt        *time.Time
		newExternalID string
	)
	if ev.Status == model.PaymentStatusSuccess {
		now := time.Now().UTC()
		paidAt = &now
	}
	if ev.ExternalID != "" && ev.ExternalID != pay.ExternalID {
		newExternalID = ev.ExternalID
	}

	settlement, err := s.repo.SettlePayment(ctx, pay.ID, ev.Status, paidAt, newExternalID)
	if err != nil {
		return err
	}
	if !settlement.Applied {
		return nil
	}

	switch settlement.Order.Status {
	case model.OrderStatusPaid:
		s.notifyAsync(func(ctx context.Context) {
			s.sink.PaymentSucceeded(ctx, settlement.User, settlement.Order, settlement.Payment)
		})
	case model.OrderStatusCancelled:
		s.notifyAsync(func(ctx context.Context) {
			s.sink.PaymentFailed(ctx, settlement.User, settlement.Order, settlement.Payment)
		})
	}

	return nil
}
