package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/obelyakov/teleshop-checkout/internal/bonus"
	"github.com/obelyakov/teleshop-checkout/internal/middleware"
	"github.com/obelyakov/teleshop-checkout/internal/model"
	"github.com/obelyakov/teleshop-checkout/internal/service"
)

type stubService struct {
	webhookErr error
	lastEvent  *service.WebhookEvent
}

func (s *stubService) Checkout(_ context.Context, _ int64, _ service.CheckoutRequest) (*service.CheckoutResult, error) {
	return nil, nil
}

func (s *stubService) GetOrdersByUser(_ context.Context, _ int64, _, _ int) ([]model.Order, error) {
	return nil, nil
}

func (s *stubService) GetOrderByID(_ context.Context, _, _ int64) (*model.Order, error) {
	return nil, nil
}

func (s *stubService) CancelOrder(_ context.Context, _, _ int64) (*model.Order, error) {
	return nil, nil
}

func (s *stubService) PreviewPromo(_ context.Context, _ int64, _ string) (*service.PromoPreview, error) {
	return nil, nil
}

func (s *stubService) GetBonusInfo(_ context.Context, _ int64) (*service.BonusInfo, error) {
	return nil, nil
}

func (s *stubService) GetBonusTransactions(_ context.Context, _ int64, _, _ int) ([]model.BonusTransaction, error) {
	return nil, nil
}

func (s *stubService) BonusConfig() bonus.Config {
	return bonus.DefaultConfig()
}

func (s *stubService) AdminAddBonus(_ context.Context, _, _, _ int64, _ string) (*model.BonusTransaction, error) {
	return nil, nil
}

func (s *stubService) AdminSubtractBonus(_ context.Context, _, _, _ int64, _ string) (*model.BonusTransaction, error) {
	return nil, nil
}

func (s *stubService) AdminSetBonus(_ context.Context, _, _, _ int64, _ string) (*model.BonusTransaction, error) {
	return nil, nil
}

func (s *stubService) ProcessWebhook(_ context.Context, ev service.WebhookEvent) error {
	s.lastEvent = &ev
	return s.webhookErr
}

func newTestHandler(svc Service) *Handler {
	auth := middleware.NewAuthMiddleware("test-secret")
	return NewHandler(svc, zap.NewNop(), auth, "12345")
}

func TestFreeKassaWebhook(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		serviceErr error
		wantBody   string
	}{
		{
			name: "успешное уведомление",
			form: url.Values{
				"MERCHANT_ID":       {"12345"},
				"AMOUNT":            {"800.00"},
				"MERCHANT_ORDER_ID": {"42"},
				"SIGN":              {"abc"},
				"intid":             {"987654"},
			},
			wantBody: "YES",
		},
		{
			name: "чужой магазин",
			form: url.Values{
				"MERCHANT_ID":       {"99999"},
				"AMOUNT":            {"800.00"},
				"MERCHANT_ORDER_ID": {"42"},
				"SIGN":              {"abc"},
			},
			wantBody: "NO",
		},
		{
			name: "нечисловой номер заказа",
			form: url.Values{
				"MERCHANT_ID":       {"12345"},
				"AMOUNT":            {"800.00"},
				"MERCHANT_ORDER_ID": {"abc"},
				"SIGN":              {"abc"},
			},
			wantBody: "NO",
		},
		{
			name: "неверная подпись",
			form: url.Values{
				"MERCHANT_ID":       {"12345"},
				"AMOUNT":            {"800.00"},
				"MERCHANT_ORDER_ID": {"42"},
				"SIGN":              {"bad"},
			},
			serviceErr: service.ErrSignatureInvalid,
			wantBody:   "NO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{webhookErr: tt.serviceErr}
			h := newTestHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/webhook/freekassa", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()

			h.FreeKassaWebhook(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			body, _ := io.ReadAll(rec.Body)
			if string(body) != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestFreeKassaWebhookEvent(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc)

	form := url.Values{
		"MERCHANT_ID":       {"12345"},
		"AMOUNT":            {"800.00"},
		"MERCHANT_ORDER_ID": {"42"},
		"SIGN":              {"abc"},
		"intid":             {"987654"},
	}

	req := httptest.NewRequest(http.MethodPost, "/webhook/freekassa", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.FreeKassaWebhook(httptest.NewRecorder(), req)

	ev := svc.lastEvent
	if ev == nil {
		t.Fatal("ProcessWebhook was not called")
	}
	if ev.Provider != "freekassa" {
		t.Errorf("Provider = %q, want freekassa", ev.Provider)
	}
	if ev.OrderID != 42 {
		t.Errorf("OrderID = %d, want 42", ev.OrderID)
	}
	if ev.Amount != "800.00" {
		t.Errorf("Amount = %q, want 800.00", ev.Amount)
	}
	if ev.ExternalID != "987654" {
		t.Errorf("ExternalID = %q, want 987654", ev.ExternalID)
	}
	if ev.Status != model.PaymentStatusSuccess {
		t.Errorf("Status = %q, want success", ev.Status)
	}
}

func TestPaypalychWebhookJSON(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc)

	body := `{"InvId":"Заказ 42","OutSum":"820.00","BalanceAmount":"800.00","Status":"SUCCESS","TrsId":"trs-1","SignatureValue":"sig"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/paypalych", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.PaypalychWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"success"`) {
		t.Errorf("body = %q, want success ack", rec.Body.String())
	}

	ev := svc.lastEvent
	if ev == nil {
		t.Fatal("ProcessWebhook was not called")
	}
	if ev.OrderID != 42 {
		t.Errorf("OrderID = %d, want 42 extracted from InvId", ev.OrderID)
	}
	if ev.Amount != "800.00" {
		t.Errorf("Amount = %q, want BalanceAmount 800.00", ev.Amount)
	}
	if ev.SignedAmount != "820.00" {
		t.Errorf("SignedAmount = %q, want OutSum 820.00", ev.SignedAmount)
	}
	if ev.ExternalID != "trs-1" {
		t.Errorf("ExternalID = %q, want trs-1", ev.ExternalID)
	}
	if ev.Status != model.PaymentStatusSuccess {
		t.Errorf("Status = %q, want success", ev.Status)
	}
}

func TestPaypalychWebhookForm(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc)

	form := url.Values{
		"InvId":  {"42"},
		"OutSum": {"800.00"},
		"Status": {"FAIL"},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/paypalych", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.PaypalychWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	ev := svc.lastEvent
	if ev == nil {
		t.Fatal("ProcessWebhook was not called")
	}
	if ev.Status != model.PaymentStatusFailed {
		t.Errorf("Status = %q, want failed", ev.Status)
	}
	if ev.Amount != "800.00" {
		t.Errorf("Amount = %q, want OutSum fallback", ev.Amount)
	}
}

func TestPaypalychWebhookMissingStatus(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc)

	body := `{"InvId":"42","OutSum":"800.00"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/paypalych", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.PaypalychWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for postback without Status", rec.Code)
	}
	if svc.lastEvent != nil {
		t.Error("ProcessWebhook was called for postback without Status")
	}
}

func TestPaypalychWebhookUnknownStatus(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc)

	// Незнакомый статус подтверждается, но платёж не проводится.
	body := `{"InvId":"42","OutSum":"800.00","Status":"UNDERPAID"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/paypalych", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.PaypalychWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 ack for unknown status", rec.Code)
	}
	if svc.lastEvent != nil {
		t.Error("ProcessWebhook was called for unknown status")
	}
}

func TestPaypalychWebhookErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "неверная подпись",
			body:       `{"InvId":"42","OutSum":"800.00","Status":"SUCCESS"}`,
			serviceErr: service.ErrSignatureInvalid,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "расхождение суммы",
			body:       `{"InvId":"42","OutSum":"800.00","Status":"SUCCESS"}`,
			serviceErr: service.ErrAmountMismatch,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "нет номера заказа",
			body:       `{"InvId":"none","OutSum":"800.00","Status":"SUCCESS"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{webhookErr: tt.serviceErr}
			h := newTestHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/webhook/paypalych", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			h.PaypalychWebhook(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
