package payment

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

// Коды способов оплаты FreeKassa: параметр i страницы оплаты.
const (
	freeKassaMethodCard = "1"
	freeKassaMethodSBP  = "10"
)

// FreeKassa реализует оплату через платёжную страницу FreeKassa.
//
// Платёж не создаётся отдельным API-вызовом: ссылка на оплату формируется из
// параметров и подписи. Уведомление об оплате приходит webhook'ом в формате
// form-data, ответ на который — строка "YES" либо "NO".
type FreeKassa struct {
	merchantID string
	secretKey  string
	secretKey2 string
	payURL     string
}

// NewFreeKassa создаёт провайдера FreeKassa. SecretKey участвует в подписи
// платёжной ссылки, SecretKey2 — в проверке подписи webhook.
func NewFreeKassa(merchantID, secretKey, secretKey2 string) *FreeKassa {
	return &FreeKassa{
		merchantID: merchantID,
		secretKey:  secretKey,
		secretKey2: secretKey2,
		payURL:     "https://pay.freekassa.ru/",
	}
}

// Name возвращает имя провайдера.
func (f *FreeKassa) Name() string { return "freekassa" }

// CreatePayment формирует подписанную ссылку на платёжную страницу FreeKassa.
func (f *FreeKassa) CreatePayment(_ context.Context, req CreateRequest) (*CreateResult, error) {
	amount := FormatAmount(req.AmountCents)
	signature := f.sign(amount, req.OrderID, f.secretKey)

	params := url.Values{}
	params.Set("m", f.merchantID)
	params.Set("oa", amount)
	params.Set("o", fmt.Sprintf("%d", req.OrderID))
	params.Set("s", signature)
	params.Set("currency", req.Currency)
	params.Set("us_user_id", fmt.Sprintf("%d", req.UserID))
	if len(req.Description) > 255 {
		req.Description = req.Description[:255]
	}
	params.Set("us_description", req.Description)

	switch req.Method {
	case MethodCard:
		params.Set("i", freeKassaMethodCard)
	case MethodSBP:
		params.Set("i", freeKassaMethodSBP)
	}

	suffix, err := randomHex(4)
	if err != nil {
		return nil, fmt.Errorf("generate payment id: %w", err)
	}

	return &CreateResult{
		ExternalID: fmt.Sprintf("freekassa_%d_%s", req.OrderID, suffix),
		PaymentURL: f.payURL + "?" + params.Encode(),
		Status:     model.PaymentStatusPending,
	}, nil
}

// VerifyWebhookSignature проверяет подпись webhook FreeKassa:
// md5(merchant_id:amount:secret_key2:order_id). Сумма приводится к виду с
// двумя знаками после точки: провайдер подписывает нормализованную сумму,
// а в уведомлении может прислать "800" вместо "800.00".
func (f *FreeKassa) VerifyWebhookSignature(amount string, orderID int64, signature string) bool {
	if cents, err := ParseAmount(amount); err == nil {
		amount = FormatAmount(cents)
	}
	expected := f.sign(amount, orderID, f.secretKey2)
	return strings.EqualFold(signature, expected)
}

func (f *FreeKassa) sign(amount string, orderID int64, secret string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%s:%d", f.merchantID, amount, secret, orderID)))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
