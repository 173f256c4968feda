package payment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

func TestFreeKassaCreatePayment(t *testing.T) {
	fk := NewFreeKassa("12345", "secret1", "secret2")

	result, err := fk.CreatePayment(context.Background(), CreateRequest{
		OrderID:     42,
		AmountCents: 80000,
		Currency:    "RUB",
		Description: "Заказ #42",
		UserID:      7,
		Method:      MethodCard,
	})
	if err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}

	if result.Status != model.PaymentStatusPending {
		t.Errorf("Status = %q, want pending", result.Status)
	}
	if !strings.HasPrefix(result.ExternalID, "freekassa_42_") {
		t.Errorf("ExternalID = %q, want prefix freekassa_42_", result.ExternalID)
	}

	u, err := url.Parse(result.PaymentURL)
	if err != nil {
		t.Fatalf("parse payment url: %v", err)
	}

	q := u.Query()
	if got := q.Get("m"); got != "12345" {
		t.Errorf("m = %q, want 12345", got)
	}
	if got := q.Get("oa"); got != "800.00" {
		t.Errorf("oa = %q, want 800.00", got)
	}
	if got := q.Get("o"); got != "42" {
		t.Errorf("o = %q, want 42", got)
	}
	if got := q.Get("i"); got != "1" {
		t.Errorf("i = %q, want 1 for card", got)
	}

	sum := md5.Sum([]byte("12345:800.00:secret1:42"))
	if got := q.Get("s"); got != hex.EncodeToString(sum[:]) {
		t.Errorf("s = %q, want md5(merchant:amount:secret:order)", got)
	}
}

func TestFreeKassaMethodCodes(t *testing.T) {
	fk := NewFreeKassa("12345", "secret1", "secret2")

	result, err := fk.CreatePayment(context.Background(), CreateRequest{
		OrderID:     1,
		AmountCents: 10000,
		Currency:    "RUB",
		Method:      MethodSBP,
	})
	if err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}

	u, _ := url.Parse(result.PaymentURL)
	if got := u.Query().Get("i"); got != "10" {
		t.Errorf("i = %q, want 10 for sbp", got)
	}
}

func TestFreeKassaVerifyWebhookSignature(t *testing.T) {
	fk := NewFreeKassa("12345", "secret1", "secret2")

	sum := md5.Sum([]byte("12345:800.00:secret2:42"))
	valid := hex.EncodeToString(sum[:])

	tests := []struct {
		name      string
		amount    string
		orderID   int64
		signature string
		want      bool
	}{
		{name: "валидная подпись", amount: "800.00", orderID: 42, signature: valid, want: true},
		{name: "верхний регистр", amount: "800.00", orderID: 42, signature: strings.ToUpper(valid), want: true},
		{name: "сумма без дробной части", amount: "800", orderID: 42, signature: valid, want: true},
		{name: "сумма с одним знаком", amount: "800.0", orderID: 42, signature: valid, want: true},
		{name: "другая сумма", amount: "800.01", orderID: 42, signature: valid, want: false},
		{name: "другой заказ", amount: "800.00", orderID: 43, signature: valid, want: false},
		{name: "пустая подпись", amount: "800.00", orderID: 42, signature: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fk.VerifyWebhookSignature(tt.amount, tt.orderID, tt.signature); got != tt.want {
				t.Errorf("VerifyWebhookSignature(%q, %d, %q) = %v, want %v",
					tt.amount, tt.orderID, tt.signature, got, tt.want)
			}
		})
	}
}

func TestFreeKassaDescriptionTruncated(t *testing.T) {
	fk := NewFreeKassa("12345", "secret1", "secret2")

	result, err := fk.CreatePayment(context.Background(), CreateRequest{
		OrderID:     1,
		AmountCents: 10000,
		Description: strings.Repeat("x", 300),
		Method:      MethodCard,
	})
	if err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}

	u, _ := url.Parse(result.PaymentURL)
	if got := u.Query().Get("us_description"); len(got) != 255 {
		t.Errorf("us_description length = %d, want 255", len(got))
	}
}
