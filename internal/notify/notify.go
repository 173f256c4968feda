// Package notify отправляет уведомления пользователям через бота.
//
// Уведомления не влияют на расчёт платежа: любая ошибка доставки только
// логируется и никогда не откатывает оформление или расчёт.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

// Sink — контракт получателя уведомлений о событиях заказа.
type Sink interface {
	PaymentSucceeded(ctx context.Context, user model.User, order model.Order, payment model.Payment)
	PaymentFailed(ctx context.Context, user model.User, order model.Order, payment model.Payment)
	OrderCancelled(ctx context.Context, user model.User, order model.Order)
}

// TelegramNotifier отправляет сообщения через Bot API с повторами доставки.
type TelegramNotifier struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTelegramNotifier создаёт отправителя уведомлений. baseURL без завершающего
// слеша, обычно https://api.telegram.org.
func NewTelegramNotifier(baseURL, token string, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// PaymentSucceeded уведомляет пользователя об успешной оплате заказа.
func (n *TelegramNotifier) PaymentSucceeded(ctx context.Context, user model.User, order model.Order, payment model.Payment) {
	text := fmt.Sprintf(
		"✅ <b>Платёж успешно выполнен!</b>\n\n📦 Заказ #%d\n💰 Сумма: %d.%02d ₽\n💳 Провайдер: %s\n\nВаш заказ оплачен и будет обработан в ближайшее время.",
		order.ID, payment.AmountCents/100, payment.AmountCents%100, payment.Provider,
	)
	n.send(ctx, user.TelegramID, text)
}

// PaymentFailed уведомляет пользователя о неуспешной оплате.
func (n *TelegramNotifier) PaymentFailed(ctx context.Context, user model.User, order model.Order, payment model.Payment) {
	text := fmt.Sprintf(
		"❌ <b>Ошибка при оплате</b>\n\n📦 Заказ #%d\n💳 Провайдер: %s\n\nПлатёж не был выполнен. Пожалуйста, попробуйте ещё раз.",
		order.ID, payment.Provider,
	)
	n.send(ctx, user.TelegramID, text)
}

// OrderCancelled уведомляет пользователя об отмене заказа и возврате товаров.
func (n *TelegramNotifier) OrderCancelled(ctx context.Context, user model.User, order model.Order) {
	text := fmt.Sprintf(
		"❌ <b>Заказ отменён</b>\n\n📦 Заказ #%d\n\nЗаказ был отменён, товары возвращены на склад.",
		order.ID,
	)
	n.send(ctx, user.TelegramID, text)
}

func (n *TelegramNotifier) send(ctx context.Context, chatID int64, text string) {
	if n.baseURL == "" || n.token == "" {
		return
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		n.logger.Error("marshal notification", zap.Error(err))
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("send message: status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("send message: status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		n.logger.Error("notification delivery failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// NopSink игнорирует все уведомления. Используется, когда адрес бота не задан.
type NopSink struct{}

func (NopSink) PaymentSucceeded(context.Context, model.User, model.Order, model.Payment) {}
func (NopSink) PaymentFailed(context.Context, model.User, model.Order, model.Payment)   {}
func (NopSink) OrderCancelled(context.Context, model.User, model.Order)                 {}
