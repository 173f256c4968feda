package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/obelyakov/teleshop-checkout/internal/model"
	"github.com/obelyakov/teleshop-checkout/internal/payment"
	"github.com/obelyakov/teleshop-checkout/internal/repository"
	"github.com/obelyakov/teleshop-checkout/internal/service"
)

// FreeKassaWebhook принимает уведомление об оплате от FreeKassa.
// Провайдер шлёт form-данные и ожидает в теле ответа голую строку:
// "YES" при принятии, любую другую при отказе.
func (h *Handler) FreeKassaWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.answerFreeKassa(w, false)
		return
	}

	merchantID := r.FormValue("MERCHANT_ID")
	amount := r.FormValue("AMOUNT")
	orderIDRaw := r.FormValue("MERCHANT_ORDER_ID")
	sign := r.FormValue("SIGN")
	intid := r.FormValue("intid")

	if merchantID != h.freeKassaMerchantID {
		h.logger.Warn("freekassa webhook merchant mismatch", zap.String("merchantID", merchantID))
		h.answerFreeKassa(w, false)
		return
	}

	orderID, err := strconv.ParseInt(strings.TrimSpace(orderIDRaw), 10, 64)
	if err != nil {
		h.logger.Warn("freekassa webhook bad order id", zap.String("orderID", orderIDRaw))
		h.answerFreeKassa(w, false)
		return
	}

	ev := service.WebhookEvent{
		Provider:   "freekassa",
		OrderID:    orderID,
		ExternalID: intid,
		Amount:     amount,
		Signature:  sign,
		Status:     model.PaymentStatusSuccess,
	}

	if err := h.service.ProcessWebhook(r.Context(), ev); err != nil {
		h.logWebhookError("freekassa", orderID, err)
		h.answerFreeKassa(w, false)
		return
	}

	h.answerFreeKassa(w, true)
}

func (h *Handler) answerFreeKassa(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if ok {
		io.WriteString(w, "YES")
		return
	}
	io.WriteString(w, "NO")
}

type paypalychPostback struct {
	InvID          string `json:"InvId"`
	OutSum         string `json:"OutSum"`
	BalanceAmount  string `json:"BalanceAmount"`
	Status         string `json:"Status"`
	TrsID          string `json:"TrsId"`
	SignatureValue string `json:"SignatureValue"`
}

// parsePaypalychPostback читает постбэк как JSON либо как form-данные:
// провайдер использует оба формата в зависимости от настроек кабинета.
func parsePaypalychPostback(r *http.Request) (*paypalychPostback, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var pb paypalychPostback
		if err := json.NewDecoder(r.Body).Decode(&pb); err != nil {
			return nil, err
		}
		return &pb, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &paypalychPostback{
		InvID:          r.FormValue("InvId"),
		OutSum:         r.FormValue("OutSum"),
		BalanceAmount:  r.FormValue("BalanceAmount"),
		Status:         r.FormValue("Status"),
		TrsID:          r.FormValue("TrsId"),
		SignatureValue: r.FormValue("SignatureValue"),
	}, nil
}

// PaypalychWebhook принимает постбэк от Paypalych. Из InvId извлекается
// числовой идентификатор заказа. Для сверки суммы предпочитается
// BalanceAmount, подпись же считается от OutSum.
func (h *Handler) PaypalychWebhook(w http.ResponseWriter, r *http.Request) {
	pb, err := parsePaypalychPostback(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid postback")
		return
	}

	orderID, err := payment.ExtractOrderID(pb.InvID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid InvId")
		return
	}

	if pb.Status == "" {
		h.writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	// Платёж проводится только по явным статусам. Незнакомый статус
	// подтверждается без изменения состояния, иначе провайдер будет
	// ретраить уведомление, которое мы не умеем проводить.
	var status model.PaymentStatus
	switch {
	case strings.EqualFold(pb.Status, "SUCCESS"):
		status = model.PaymentStatusSuccess
	case strings.EqualFold(pb.Status, "FAIL"):
		status = model.PaymentStatusFailed
	default:
		h.logger.Warn("paypalych webhook unknown status",
			zap.String("status", pb.Status),
			zap.Int64("orderID", orderID),
		)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	amount := pb.BalanceAmount
	if amount == "" {
		amount = pb.OutSum
	}

	ev := service.WebhookEvent{
		Provider:     "paypalych",
		OrderID:      orderID,
		ExternalID:   pb.TrsID,
		Amount:       amount,
		SignedAmount: pb.OutSum,
		Signature:    pb.SignatureValue,
		Status:       status,
	}

	if err := h.service.ProcessWebhook(r.Context(), ev); err != nil {
		h.logWebhookError("paypalych", orderID, err)
		switch {
		case errors.Is(err, service.ErrSignatureInvalid):
			h.writeError(w, http.StatusForbidden, "signature mismatch")
		case errors.Is(err, service.ErrAmountMismatch):
			h.writeError(w, http.StatusBadRequest, "amount mismatch")
		case errors.Is(err, repository.ErrPaymentNotFound):
			h.writeError(w, http.StatusNotFound, "payment not found")
		default:
			h.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) logWebhookError(provider string, orderID int64, err error) {
	switch {
	case errors.Is(err, service.ErrSignatureInvalid),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, repository.ErrPaymentNotFound):
		h.logger.Warn("webhook rejected",
			zap.String("provider", provider),
			zap.Int64("orderID", orderID),
			zap.Error(err),
		)
	default:
		h.logger.Error("webhook processing error",
			zap.String("provider", provider),
			zap.Int64("orderID", orderID),
			zap.Error(err),
		)
	}
}
