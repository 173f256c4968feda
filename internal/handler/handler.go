// Package handler содержит HTTP-обработчики API магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/obelyakov/teleshop-checkout/internal/bonus"
	"github.com/obelyakov/teleshop-checkout/internal/middleware"
	"github.com/obelyakov/teleshop-checkout/internal/model"
	"github.com/obelyakov/teleshop-checkout/internal/payment"
	"github.com/obelyakov/teleshop-checkout/internal/promo"
	"github.com/obelyakov/teleshop-checkout/internal/repository"
	"github.com/obelyakov/teleshop-checkout/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Checkout(ctx context.Context, userID int64, req service.CheckoutRequest) (*service.CheckoutResult, error)
	GetOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Order, error)
	GetOrderByID(ctx context.Context, userID, orderID int64) (*model.Order, error)
	CancelOrder(ctx context.Context, userID, orderID int64) (*model.Order, error)
	PreviewPromo(ctx context.Context, userID int64, code string) (*service.PromoPreview, error)
	GetBonusInfo(ctx context.Context, userID int64) (*service.BonusInfo, error)
	GetBonusTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.BonusTransaction, error)
	BonusConfig() bonus.Config
	AdminAddBonus(ctx context.Context, actorID, userID, amount int64, description string) (*model.BonusTransaction, error)
	AdminSubtractBonus(ctx context.Context, actorID, userID, amount int64, description string) (*model.BonusTransaction, error)
	AdminSetBonus(ctx context.Context, actorID, userID, balance int64, description string) (*model.BonusTransaction, error)
	ProcessWebhook(ctx context.Context, ev service.WebhookEvent) error
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	service             Service
	logger              *zap.Logger
	authMiddleware      *middleware.AuthMiddleware
	freeKassaMerchantID string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, freeKassaMerchantID string) *Handler {
	return &Handler{
		service:             s,
		logger:              logger,
		authMiddleware:      auth,
		freeKassaMerchantID: freeKassaMerchantID,
	}
}

// rubles переводит копейки в рубли для JSON-ответов.
func rubles(cents int64) float64 {
	return float64(cents) / 100
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

type checkoutRequest struct {
	PromoCode     string `json:"promo_code"`
	BonusToUse    int64  `json:"bonus_to_use"`
	Provider      string `json:"provider"`
	PaymentMethod string `json:"payment_method"`
}

type orderItemResponse struct {
	ProductID *int64  `json:"product_id"`
	Title     string  `json:"title"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	Status        string              `json:"status"`
	TotalAmount   float64             `json:"total_amount"`
	PromoDiscount float64             `json:"promo_discount"`
	BonusUsed     int64               `json:"bonus_used"`
	BonusEarned   int64               `json:"bonus_earned"`
	FinalAmount   float64             `json:"final_amount"`
	Currency      string              `json:"currency"`
	Items         []orderItemResponse `json:"items,omitempty"`
	CreatedAt     string              `json:"created_at"`
}

type checkoutResponse struct {
	Order      orderResponse `json:"order"`
	PaymentURL string        `json:"payment_url"`
	Provider   string        `json:"provider"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			Price:     rubles(it.PriceCents),
		})
	}

	return orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		TotalAmount:   rubles(o.TotalAmountCents),
		PromoDiscount: rubles(o.PromoDiscountCents),
		BonusUsed:     o.BonusUsed,
		BonusEarned:   o.BonusEarned,
		FinalAmount:   rubles(o.FinalAmountCents),
		Currency:      o.Currency,
		Items:         items,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
}

// Checkout оформляет заказ из корзины текущего пользователя.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Checkout(r.Context(), userID, service.CheckoutRequest{
		PromoCode:     req.PromoCode,
		BonusToUse:    req.BonusToUse,
		Provider:      req.Provider,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.handleCheckoutError(w, err, userID)
		return
	}

	h.writeJSON(w, http.StatusCreated, checkoutResponse{
		Order:      toOrderResponse(&result.Order),
		PaymentURL: result.Payment.PaymentURL,
		Provider:   result.Payment.Provider,
	})
}

type itemErrorResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Available int64  `json:"available,omitempty"`
	Requested int64  `json:"requested,omitempty"`
}

func (h *Handler) handleCheckoutError(w http.ResponseWriter, err error, userID int64) {
	var itemErr *repository.ItemError
	if errors.As(err, &itemErr) {
		msg := "product unavailable"
		if errors.Is(itemErr.Err, repository.ErrInsufficientStock) {
			msg = "insufficient stock"
		}
		h.writeJSON(w, http.StatusConflict, itemErrorResponse{
			Error:     msg,
			ProductID: itemErr.ProductID,
			Title:     itemErr.Title,
			Available: itemErr.Available,
			Requested: itemErr.Requested,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, payment.ErrUnknownProvider):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrCartEmpty):
		h.writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, promo.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "promo code not found")
	case errors.Is(err, promo.ErrInactive),
		errors.Is(err, promo.ErrNotStarted),
		errors.Is(err, promo.ErrExpired),
		errors.Is(err, promo.ErrLimitReached),
		errors.Is(err, promo.ErrMinOrderAmount),
		errors.Is(err, repository.ErrPromoExhausted):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrUserNotFound):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	default:
		h.logger.Error("checkout error", zap.Error(err), zap.Int64("userID", userID))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	orders, err := h.service.GetOrdersByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает один заказ текущего пользователя вместе с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrderByID(r.Context(), userID, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.Int64("orderID", orderID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// CancelOrder отменяет неоплаченный заказ текущего пользователя.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CancelOrder(r.Context(), userID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound), errors.Is(err, repository.ErrPaymentNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrOrderNotCancellable):
			h.writeError(w, http.StatusConflict, "order cannot be cancelled")
		default:
			h.logger.Error("cancel order error", zap.Error(err), zap.Int64("orderID", orderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type applyPromoRequest struct {
	Code string `json:"code"`
}

type promoPreviewResponse struct {
	Code          string  `json:"code"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue int64   `json:"discount_value"`
	Discount      float64 `json:"discount"`
	CartTotal     float64 `json:"cart_total"`
	NewTotal      float64 `json:"new_total"`
}

// ApplyPromo рассчитывает скидку промокода для текущей корзины.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req applyPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	preview, err := h.service.PreviewPromo(r.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, promo.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "promo code not found")
		case errors.Is(err, repository.ErrCartEmpty):
			h.writeError(w, http.StatusBadRequest, "cart is empty")
		case errors.Is(err, promo.ErrInactive),
			errors.Is(err, promo.ErrNotStarted),
			errors.Is(err, promo.ErrExpired),
			errors.Is(err, promo.ErrLimitReached),
			errors.Is(err, promo.ErrMinOrderAmount):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Error("apply promo error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, promoPreviewResponse{
		Code:          preview.Code,
		DiscountType:  string(preview.DiscountType),
		DiscountValue: preview.DiscountValue,
		Discount:      rubles(preview.DiscountCents),
		CartTotal:     rubles(preview.CartCents),
		NewTotal:      rubles(preview.NewTotalCents),
	})
}

type bonusInfoResponse struct {
	Balance       int64              `json:"balance"`
	TotalSpent    float64            `json:"total_spent"`
	TotalOrders   int64              `json:"total_orders"`
	NextMilestone *milestoneResponse `json:"next_milestone,omitempty"`
}

type milestoneResponse struct {
	OrderNumber int64  `json:"order_number"`
	Points      int64  `json:"points"`
	Reward      string `json:"reward,omitempty"`
}

// GetBonusInfo возвращает состояние бонусного счёта текущего пользователя.
func (h *Handler) GetBonusInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	info, err := h.service.GetBonusInfo(r.Context(), userID)
	if err != nil {
		h.logger.Error("get bonus info error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := bonusInfoResponse{
		Balance:     info.Balance,
		TotalSpent:  rubles(info.TotalSpent),
		TotalOrders: info.TotalOrders,
	}
	if info.NextMilestone != nil {
		resp.NextMilestone = &milestoneResponse{
			OrderNumber: info.NextMilestone.OrderNumber,
			Points:      info.NextMilestone.Points,
			Reward:      info.NextMilestone.Reward,
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type bonusTransactionResponse struct {
	ID          int64  `json:"id"`
	OrderID     *int64 `json:"order_id,omitempty"`
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// GetBonusTransactions возвращает историю бонусных операций текущего пользователя.
func (h *Handler) GetBonusTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txs, err := h.service.GetBonusTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("get bonus transactions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]bonusTransactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, bonusTransactionResponse{
			ID:          tx.ID,
			OrderID:     tx.OrderID,
			Amount:      tx.Amount,
			Type:        string(tx.Type),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetBonusMilestones возвращает таблицу порогов бонусной программы.
func (h *Handler) GetBonusMilestones(w http.ResponseWriter, r *http.Request) {
	cfg := h.service.BonusConfig()

	resp := make([]milestoneResponse, 0, len(cfg.Milestones))
	for _, m := range cfg.Milestones {
		resp = append(resp, milestoneResponse{
			OrderNumber: m.OrderNumber,
			Points:      m.Points,
			Reward:      m.Reward,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
