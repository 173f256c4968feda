package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/obelyakov/teleshop-checkout/internal/middleware"
	"github.com/obelyakov/teleshop-checkout/internal/model"
	"github.com/obelyakov/teleshop-checkout/internal/repository"
	"github.com/obelyakov/teleshop-checkout/internal/service"
)

type adminBonusRequest struct {
	UserID      int64  `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type adminBonusResponse struct {
	TransactionID int64  `json:"transaction_id"`
	UserID        int64  `json:"user_id"`
	Amount        int64  `json:"amount"`
	Type          string `json:"type"`
	CreatedAt     string `json:"created_at"`
}

type adminBonusOp func(actorID, userID, amount int64, description string) (*model.BonusTransaction, error)

func (h *Handler) handleAdminBonus(w http.ResponseWriter, r *http.Request, op adminBonusOp) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req adminBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := op(actorID, req.UserID, req.Amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, service.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrInsufficientBonus):
			h.writeError(w, http.StatusUnprocessableEntity, "insufficient bonus balance")
		default:
			h.logger.Error("admin bonus operation error", zap.Error(err), zap.Int64("userID", req.UserID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, adminBonusResponse{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Type:          string(tx.Type),
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	})
}

// AdminAddBonus начисляет бонусы пользователю от имени администратора.
func (h *Handler) AdminAddBonus(w http.ResponseWriter, r *http.Request) {
	h.handleAdminBonus(w, r, func(actorID, userID, amount int64, description string) (*model.BonusTransaction, error) {
		return h.service.AdminAddBonus(r.Context(), actorID, userID, amount, description)
	})
}

// AdminSubtractBonus списывает бонусы пользователя от имени администратора.
func (h *Handler) AdminSubtractBonus(w http.ResponseWriter, r *http.Request) {
	h.handleAdminBonus(w, r, func(actorID, userID, amount int64, description string) (*model.BonusTransaction, error) {
		return h.service.AdminSubtractBonus(r.Context(), actorID, userID, amount, description)
	})
}

// AdminSetBonus выставляет бонусный баланс пользователя в заданное значение.
func (h *Handler) AdminSetBonus(w http.ResponseWriter, r *http.Request) {
	h.handleAdminBonus(w, r, func(actorID, userID, amount int64, description string) (*model.BonusTransaction, error) {
		return h.service.AdminSetBonus(r.Context(), actorID, userID, amount, description)
	})
}
