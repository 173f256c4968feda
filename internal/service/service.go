// Package service реализует бизнес-логику оформления и расчёта заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/obelyakov/teleshop-checkout/internal/bonus"
	"github.com/obelyakov/teleshop-checkout/internal/model"
	"github.com/obelyakov/teleshop-checkout/internal/notify"
	"github.com/obelyakov/teleshop-checkout/internal/payment"
	"github.com/obelyakov/teleshop-checkout/internal/promo"
	"github.com/obelyakov/teleshop-checkout/internal/repository"
	"github.com/obelyakov/teleshop-checkout/internal/validation"
)

// ErrInvalidPaymentMethod возвращается при неизвестном способе оплаты.
var (
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrInvalidAmount возвращается при неположительной сумме бонусной операции.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrForbidden возвращается, когда операция требует прав администратора.
	ErrForbidden = errors.New("operation requires admin rights")
)

// Тайм-аут внешнего вызова создания платежа: оформление не должно висеть
// дольше, чем готов ждать пользователь.
const createPaymentTimeout = 15 * time.Second

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetCartItems(ctx context.Context, userID int64) ([]model.CartItem, error)
	GetPromoByCode(ctx context.Context, code string) (*model.PromoCode, error)
	CreateOrderWithPayment(ctx context.Context, draft repository.OrderDraft, createPayment func(orderID int64) (*payment.CreateResult, error)) (*model.Order, *model.Payment, error)
	GetOrderByID(ctx context.Context, userID, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Order, error)
	GetPaymentByOrder(ctx context.Context, orderID int64, provider string) (*model.Payment, error)
	GetPaymentByExternalID(ctx context.Context, provider, externalID string) (*model.Payment, error)
	SettlePayment(ctx context.Context, paymentID int64, newStatus model.PaymentStatus, paidAt *time.Time, newExternalID string) (*repository.Settlement, error)
	CancelOrder(ctx context.Context, userID, orderID int64) (*repository.Settlement, error)
	GetBonusTransactionsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.BonusTransaction, error)
	AdjustBonus(ctx context.Context, userID, delta int64, txType model.BonusTxType, description string) (*model.BonusTransaction, error)
	SetBonusBalance(ctx context.Context, userID, newBalance int64, description string) (*model.BonusTransaction, error)
}

// Service содержит бизнес-логику магазина.
type Service struct {
	repo      Repository
	providers *payment.Registry
	sink      notify.Sink
	bonusCfg  bonus.Config
}

// NewService создаёт сервис с указанным хранилищем, реестром платёжных
// провайдеров, получателем уведомлений и параметрами бонусной программы.
func NewService(repo Repository, providers *payment.Registry, sink notify.Sink, bonusCfg bonus.Config) *Service {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Service{
		repo:      repo,
		providers: providers,
		sink:      sink,
		bonusCfg:  bonusCfg,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// CheckoutRequest описывает параметры оформления заказа из корзины.
type CheckoutRequest struct {
	PromoCode     string
	BonusToUse    int64
	Provider      string
	PaymentMethod string
}

// CheckoutResult описывает оформленный заказ и созданный платёж.
type CheckoutResult struct {
	Order   model.Order
	Payment model.Payment
}

// Checkout оформляет заказ из корзины пользователя: проверяет товары,
// применяет промокод, рассчитывает предварительные бонусы, резервирует остатки
// и создаёт платёж у провайдера. Бонусный журнал при оформлении не меняется:
// списание и начисление происходят только после успешной оплаты.
func (s *Service) Checkout(ctx context.Context, userID int64, req CheckoutRequest) (*CheckoutResult, error) {
	if !validation.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}

	provider, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.GetCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, repository.ErrCartEmpty
	}

	var subtotalCents int64
	snapshots := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		if !it.IsActive {
			return nil, &repository.ItemError{ProductID: it.ProductID, Title: it.Title, Err: repository.ErrProductUnavailable}
		}
		if it.StockCount < it.Quantity {
			return nil, &repository.ItemError{
				ProductID: it.ProductID,
				Title:     it.Title,
				Available: it.StockCount,
				Requested: it.Quantity,
				Err:       repository.ErrInsufficientStock,
			}
		}

		productID := it.ProductID
		snapshots = append(snapshots, model.OrderItem{
			ProductID:  &productID,
			Title:      it.Title,
			Quantity:   it.Quantity,
			PriceCents: it.PriceCents,
		})
		subtotalCents += it.PriceCents * it.Quantity
	}

	var (
		promoID       *int64
		discountCents int64
	)
	if req.PromoCode != "" {
		code := promo.NormalizeCode(req.PromoCode)
		if !validation.IsValidPromoCode(code) {
			return nil, promo.ErrNotFound
		}

		p, err := s.repo.GetPromoByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrPromoNotFound) {
				return nil, promo.ErrNotFound
			}
			return nil, err
		}

		discountCents, err = promo.Evaluate(p, subtotalCents, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		promoID = &p.ID
	}

	afterPromoCents := subtotalCents - discountCents

	bonusUsed := s.bonusCfg.ClampUsage(req.BonusToUse, user.BonusBalance, afterPromoCents)
	bonusEarned := s.bonusCfg.EarnedForOrder(user.TotalOrders + 1)

	finalCents := afterPromoCents - bonusUsed*s.bonusCfg.PointCents
	if finalCents < 0 {
		finalCents = 0
	}

	draft := repository.OrderDraft{
		UserID:             userID,
		PromoCodeID:        promoID,
		TotalAmountCents:   subtotalCents,
		PromoDiscountCents: discountCents,
		BonusUsed:          bonusUsed,
		BonusEarned:        bonusEarned,
		FinalAmountCents:   finalCents,
		Currency:           "RUB",
		Provider:           req.Provider,
		PaymentMethod:      req.PaymentMethod,
		Items:              snapshots,
	}

	order, pay, err := s.repo.CreateOrderWithPayment(ctx, draft, func(orderID int64) (*payment.CreateResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, createPaymentTimeout)
		defer cancel()

		return provider.CreatePayment(callCtx, payment.CreateRequest{
			OrderID:     orderID,
			AmountCents: finalCents,
			Currency:    draft.Currency,
			Description: fmt.Sprintf("Заказ #%d", orderID),
			UserID:      userID,
			Method:      req.PaymentMethod,
		})
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{Order: *order, Payment: *pay}, nil
}

// GetOrdersByUser возвращает заказы пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.GetOrdersByUser(ctx, userID, limit, offset)
}

// GetOrderByID возвращает заказ пользователя.
func (s *Service) GetOrderByID(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	return s.repo.GetOrderByID(ctx, userID, orderID)
}

// CancelOrder отменяет pending-заказ пользователя, возвращая остатки на склад.
// Отмена оплаченного или уже отменённого заказа отклоняется.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	settlement, err := s.repo.CancelOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	s.notifyAsync(func(ctx context.Context) {
		s.sink.OrderCancelled(ctx, settlement.User, settlement.Order)
	})

	return &settlement.Order, nil
}

// PromoPreview описывает результат применения промокода к корзине без
// побочных эффектов.
type PromoPreview struct {
	Code          string
	DiscountType  model.DiscountType
	DiscountValue int64
	DiscountCents int64
	CartCents     int64
	NewTotalCents int64
}

// PreviewPromo применяет промокод к текущей корзине без изменения состояния:
// счётчик использований увеличится только при оформлении заказа.
func (s *Service) PreviewPromo(ctx context.Context, userID int64, code string) (*PromoPreview, error) {
	normalized := promo.NormalizeCode(code)
	if !validation.IsValidPromoCode(normalized) {
		return nil, promo.ErrNotFound
	}

	p, err := s.repo.GetPromoByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrPromoNotFound) {
			return nil, promo.ErrNotFound
		}
		return nil, err
	}

	items, err := s.repo.GetCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, repository.ErrCartEmpty
	}

	var subtotalCents int64
	for _, it := range items {
		subtotalCents += it.PriceCents * it.Quantity
	}

	discountCents, err := promo.Evaluate(p, subtotalCents, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return &PromoPreview{
		Code:          p.Code,
		DiscountType:  p.DiscountType,
		DiscountValue: p.DiscountValue,
		DiscountCents: discountCents,
		CartCents:     subtotalCents,
		NewTotalCents: subtotalCents - discountCents,
	}, nil
}

// BonusInfo описывает состояние бонусного счёта пользователя.
type BonusInfo struct {
	Balance       int64
	TotalSpent    int64
	TotalOrders   int64
	NextMilestone *bonus.Milestone
}

// GetBonusInfo возвращает баланс, счётчики и ближайший порог бонусной программы.
func (s *Service) GetBonusInfo(ctx context.Context, userID int64) (*BonusInfo, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &BonusInfo{
		Balance:       user.BonusBalance,
		TotalSpent:    user.TotalSpentCents,
		TotalOrders:   user.TotalOrders,
		NextMilestone: s.bonusCfg.NextMilestone(user.TotalOrders),
	}, nil
}

// GetBonusTransactions возвращает историю бонусных транзакций пользователя.
func (s *Service) GetBonusTransactions(ctx context.Context, userID int64, limit, offset int) ([]model.BonusTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.GetBonusTransactionsByUser(ctx, userID, limit, offset)
}

// BonusConfig возвращает параметры бонусной программы.
func (s *Service) BonusConfig() bonus.Config {
	return s.bonusCfg
}

// notifyAsync выполняет уведомление в отдельной горутине с собственным
// тайм-аутом: доставка не должна задерживать ответ провайдеру или пользователю.
func (s *Service) notifyAsync(fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		fn(ctx)
	}()
}
