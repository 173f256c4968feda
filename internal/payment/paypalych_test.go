package payment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

func TestPaypalychCreatePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bill/create" {
			t.Errorf("path = %q, want /bill/create", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", got)
		}

		var req paypalychCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount != "1500.00" {
			t.Errorf("amount = %q, want 1500.00", req.Amount)
		}
		if req.OrderID != "42" {
			t.Errorf("order_id = %q, want 42", req.OrderID)
		}
		if req.ShopID != "shop-1" {
			t.Errorf("shop_id = %q, want shop-1", req.ShopID)
		}

		json.NewEncoder(w).Encode(paypalychCreateResponse{
			Success:     true,
			BillID:      "bill-abc",
			LinkPageURL: "https://pay.example/bill-abc",
		})
	}))
	defer server.Close()

	p := NewPaypalych(server.URL, "test-token", "shop-1")

	result, err := p.CreatePayment(context.Background(), CreateRequest{
		OrderID:     42,
		AmountCents: 150000,
		Currency:    "RUB",
		Description: "Заказ #42",
		Method:      MethodCard,
	})
	if err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}

	if result.ExternalID != "bill-abc" {
		t.Errorf("ExternalID = %q, want bill-abc", result.ExternalID)
	}
	if result.PaymentURL != "https://pay.example/bill-abc" {
		t.Errorf("PaymentURL = %q", result.PaymentURL)
	}
	if result.Status != model.PaymentStatusPending {
		t.Errorf("Status = %q, want pending", result.Status)
	}
}

func TestPaypalychCreatePaymentRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(paypalychCreateResponse{
			Success: false,
			Message: "shop is blocked",
		})
	}))
	defer server.Close()

	p := NewPaypalych(server.URL, "test-token", "shop-1")

	if _, err := p.CreatePayment(context.Background(), CreateRequest{OrderID: 1, AmountCents: 100}); err == nil {
		t.Error("CreatePayment() expected error for rejected bill, got nil")
	}
}

func TestPaypalychVerifyWebhookSignature(t *testing.T) {
	p := NewPaypalych("https://pally.example/merchant/api", "test-token", "shop-1")

	sum := md5.Sum([]byte("1500.00:42:test-token"))
	valid := hex.EncodeToString(sum[:])

	tests := []struct {
		name      string
		amount    string
		orderID   int64
		signature string
		want      bool
	}{
		{name: "подпись отсутствует", amount: "1500.00", orderID: 42, signature: "", want: true},
		{name: "валидная подпись", amount: "1500.00", orderID: 42, signature: valid, want: true},
		{name: "неверная подпись", amount: "1500.00", orderID: 42, signature: "deadbeef", want: false},
		{name: "другая сумма", amount: "1500.01", orderID: 42, signature: valid, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.VerifyWebhookSignature(tt.amount, tt.orderID, tt.signature); got != tt.want {
				t.Errorf("VerifyWebhookSignature() = %v, want %v", got, tt.want)
			}
		})
	}
}
