package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obelyakov/teleshop-checkout/internal/model"
	"github.com/obelyakov/teleshop-checkout/internal/payment"
)

// OrderDraft описывает подготовленный сервисом заказ: суммы уже рассчитаны,
// позиции — снимки товаров на момент оформления, отсортированные по
// идентификатору товара.
type OrderDraft struct {
	UserID             int64
	PromoCodeID        *int64
	TotalAmountCents   int64
	PromoDiscountCents int64
	BonusUsed          int64
	BonusEarned        int64
	FinalAmountCents   int64
	Currency           string
	Provider           string
	PaymentMethod      string
	Items              []model.OrderItem
}

// CreateOrderWithPayment атомарно оформляет заказ: резервирует остатки,
// увеличивает счётчик промокода, создаёт заказ с позициями, очищает корзину,
// создаёт платёж у провайдера через createPayment и сохраняет строку платежа.
// Ошибка на любом шаге, включая вызов провайдера, откатывает всю транзакцию —
// наполовину оформленных заказов не остаётся.
func (r *PostgresRepository) CreateOrderWithPayment(
	ctx context.Context,
	draft OrderDraft,
	createPayment func(orderID int64) (*payment.CreateResult, error),
) (*model.Order, *model.Payment, error) {
	if len(draft.Items) == 0 {
		return nil, nil, ErrCartEmpty
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.reserveStock(ctx, tx, draft.Items); err != nil {
		return nil, nil, err
	}

	if draft.PromoCodeID != nil {
		// Условный UPDATE закрывает гонку двух заказов за последнее использование.
		cmdTag, err := tx.Exec(ctx,
			`UPDATE promo_codes
			 SET usage_count = usage_count + 1
			 WHERE id = $1 AND is_active
			   AND (usage_limit IS NULL OR usage_count < usage_limit)`,
			*draft.PromoCodeID,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("increment promo usage: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return nil, nil, ErrPromoExhausted
		}
	}

	order := model.Order{
		UserID:             draft.UserID,
		PromoCodeID:        draft.PromoCodeID,
		Status:             model.OrderStatusPending,
		TotalAmountCents:   draft.TotalAmountCents,
		PromoDiscountCents: draft.PromoDiscountCents,
		BonusUsed:          draft.BonusUsed,
		BonusEarned:        draft.BonusEarned,
		FinalAmountCents:   draft.FinalAmountCents,
		Currency:           draft.Currency,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, promo_code_id, status, total_amount, promo_discount,
		                     bonus_used, bonus_earned, final_amount, currency)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		order.UserID, order.PromoCodeID, string(order.Status), order.TotalAmountCents, order.PromoDiscountCents,
		order.BonusUsed, order.BonusEarned, order.FinalAmountCents, order.Currency,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert order: %w", err)
	}

	for i := range draft.Items {
		it := draft.Items[i]
		it.OrderID = order.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, product_title, quantity, price)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			it.OrderID, it.ProductID, it.Title, it.Quantity, it.PriceCents,
		).Scan(&it.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("insert order item: %w", err)
		}
		order.Items = append(order.Items, it)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, draft.UserID); err != nil {
		return nil, nil, fmt.Errorf("clear cart: %w", err)
	}

	created, err := createPayment(order.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("create provider payment: %w", err)
	}

	pay := model.Payment{
		OrderID:       order.ID,
		UserID:        draft.UserID,
		ExternalID:    created.ExternalID,
		Provider:      draft.Provider,
		PaymentMethod: draft.PaymentMethod,
		AmountCents:   draft.FinalAmountCents,
		Currency:      draft.Currency,
		Status:        model.PaymentStatusPending,
		PaymentURL:    created.PaymentURL,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO payments (order_id, user_id, payment_id, provider, payment_method,
		                       amount, currency, status, payment_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		pay.OrderID, pay.UserID, pay.ExternalID, pay.Provider, pay.PaymentMethod,
		pay.AmountCents, pay.Currency, string(pay.Status), pay.PaymentURL,
	).Scan(&pay.ID, &pay.CreatedAt, &pay.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, nil, fmt.Errorf("%w: %d", ErrPaymentExists, order.ID)
		}
		return nil, nil, fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	return &order, &pay, nil
}

// reserveStock блокирует строки товаров в порядке возрастания идентификаторов
// и уменьшает остатки. Нарушение по любой позиции прерывает оформление с
// указанием конкретной причины.
func (r *PostgresRepository) reserveStock(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	for _, it := range items {
		if it.ProductID == nil {
			return &ItemError{Title: it.Title, Err: ErrProductUnavailable}
		}

		var (
			title      string
			stockCount int64
			isActive   bool
		)
		err := tx.QueryRow(ctx,
			`SELECT title, stock_count, is_active FROM products WHERE id = $1 FOR UPDATE`,
			*it.ProductID,
		).Scan(&title, &stockCount, &isActive)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &ItemError{ProductID: *it.ProductID, Title: it.Title, Err: ErrProductUnavailable}
			}
			return fmt.Errorf("lock product %d: %w", *it.ProductID, err)
		}

		if !isActive {
			return &ItemError{ProductID: *it.ProductID, Title: title, Err: ErrProductUnavailable}
		}
		if stockCount < it.Quantity {
			return &ItemError{
				ProductID: *it.ProductID,
				Title:     title,
				Available: stockCount,
				Requested: it.Quantity,
				Err:       ErrInsufficientStock,
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock_count = stock_count - $2 WHERE id = $1`,
			*it.ProductID, it.Quantity,
		); err != nil {
			return fmt.Errorf("reserve stock for product %d: %w", *it.ProductID, err)
		}
	}

	return nil
}
