// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если пользователь не найден.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound возвращается, если заказ не найден или принадлежит другому пользователю.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPromoNotFound возвращается, если промокод не найден.
	ErrPromoNotFound = errors.New("promo code not found")
	// ErrCartEmpty возвращается при попытке оформить заказ из пустой корзины.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrPromoExhausted возвращается, когда лимит промокода исчерпан конкурентным заказом.
	ErrPromoExhausted = errors.New("promo code usage limit reached")
	// ErrOrderNotCancellable возвращается при попытке отменить заказ не в статусе pending.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	// ErrInsufficientBonus возвращается при списании бонусов сверх баланса.
	ErrInsufficientBonus = errors.New("insufficient bonus balance")
	// ErrPaymentExists возвращается при попытке создать второй платёж заказа.
	ErrPaymentExists = errors.New("payment already exists for order")
)

// ItemError описывает причину отказа по конкретной позиции корзины.
type ItemError struct {
	ProductID int64
	Title     string
	Available int64
	Requested int64
	Err       error
}

// Ошибки позиций корзины.
var (
	ErrProductUnavailable = errors.New("product is not available")
	ErrInsufficientStock  = errors.New("insufficient stock")
)

func (e *ItemError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("%s: %v (available %d, requested %d)", e.Title, e.Err, e.Available, e.Requested)
	}
	return fmt.Sprintf("%s: %v", e.Title, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, telegram_id, username, first_name, is_admin,
		        bonus_balance, total_spent, total_orders, created_at
		 FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.IsAdmin,
		&u.BonusBalance, &u.TotalSpentCents, &u.TotalOrders, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetCartItems возвращает позиции корзины пользователя вместе с текущим
// состоянием товаров, отсортированные по идентификатору товара.
func (r *PostgresRepository) GetCartItems(ctx context.Context, userID int64) ([]model.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.title, p.price, ci.quantity, p.stock_count, p.is_active
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.user_id = $1
		 ORDER BY p.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.ProductID, &it.Title, &it.PriceCents, &it.Quantity, &it.StockCount, &it.IsActive); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetPromoByCode возвращает промокод по нормализованному коду.
func (r *PostgresRepository) GetPromoByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, code, discount_type, discount_value, min_order_amount,
		        max_discount, usage_limit, usage_count, valid_from, valid_until, is_active
		 FROM promo_codes WHERE code = $1`,
		code,
	)

	var p model.PromoCode
	err := row.Scan(&p.ID, &p.Code, &p.DiscountType, &p.DiscountValue, &p.MinOrderCents,
		&p.MaxDiscountCents, &p.UsageLimit, &p.UsageCount, &p.ValidFrom, &p.ValidUntil, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPromoNotFound
		}
		return nil, fmt.Errorf("get promo code: %w", err)
	}

	return &p, nil
}

// GetOrderByID возвращает заказ пользователя вместе с позициями.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, promo_code_id, status, total_amount, promo_discount,
		        bonus_used, bonus_earned, final_amount, currency, created_at, updated_at
		 FROM orders WHERE id = $1 AND user_id = $2`,
		orderID, userID,
	)

	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.PromoCodeID, &o.Status, &o.TotalAmountCents, &o.PromoDiscountCents,
		&o.BonusUsed, &o.BonusEarned, &o.FinalAmountCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.getOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *PostgresRepository) getOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, product_title, quantity, price
		 FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Quantity, &it.PriceCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, promo_code_id, status, total_amount, promo_discount,
		        bonus_used, bonus_earned, final_amount, currency, created_at, updated_at
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.PromoCodeID, &o.Status, &o.TotalAmountCents, &o.PromoDiscountCents,
			&o.BonusUsed, &o.BonusEarned, &o.FinalAmountCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range orders {
		items, err := r.getOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

const paymentColumns = `id, order_id, user_id, payment_id, provider, payment_method,
	amount, currency, status, payment_url, paid_at, cancelled_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.ExternalID, &p.Provider, &p.PaymentMethod,
		&p.AmountCents, &p.Currency, &p.Status, &p.PaymentURL, &p.PaidAt, &p.CancelledAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}

// GetPaymentByOrder возвращает платёж заказа у указанного провайдера.
func (r *PostgresRepository) GetPaymentByOrder(ctx context.Context, orderID int64, provider string) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 AND provider = $2`,
		orderID, provider,
	)
	return scanPayment(row)
}

// GetPaymentByExternalID возвращает платёж по внешнему идентификатору провайдера.
func (r *PostgresRepository) GetPaymentByExternalID(ctx context.Context, provider, externalID string) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND payment_id = $2`,
		provider, externalID,
	)
	return scanPayment(row)
}

// GetBonusTransactionsByUser возвращает историю бонусных транзакций пользователя.
func (r *PostgresRepository) GetBonusTransactionsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.BonusTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, order_id, amount, type, COALESCE(description, ''), created_at
		 FROM bonus_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select bonus transactions: %w", err)
	}
	defer rows.Close()

	var res []model.BonusTransaction
	for rows.Next() {
		var t model.BonusTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrderID, &t.Amount, &t.Type, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bonus transaction: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
