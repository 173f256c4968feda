package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

// Settlement описывает результат расчёта платежа.
type Settlement struct {
	Payment model.Payment
	Order   model.Order
	User    model.User
	// Applied истинно, если именно этот вызов перевёл платёж из pending.
	// Повторная доставка webhook даёт Applied == false без побочных эффектов.
	Applied bool
}

// SettlePayment выполняет идемпотентный переход платежа из pending в newStatus
// и согласует с ним заказ, бонусный журнал и остатки — всё в одной транзакции.
//
// Защита от дублей — условный UPDATE по статусу pending с проверкой числа
// затронутых строк: из двух конкурентных доставок webhook только одна увидит
// затронутую строку, вторая завершится без побочных эффектов.
//
// newExternalID, если непустой, замещает синтетический внешний идентификатор
// платежа идентификатором из уведомления провайдера.
func (r *PostgresRepository) SettlePayment(
	ctx context.Context,
	paymentID int64,
	newStatus model.PaymentStatus,
	paidAt *time.Time,
	newExternalID string,
) (*Settlement, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var cmdTag pgconn.CommandTag
	switch newStatus {
	case model.PaymentStatusSuccess:
		ts := time.Now().UTC()
		if paidAt != nil {
			ts = *paidAt
		}
		cmdTag, err = tx.Exec(ctx,
			`UPDATE payments
			 SET status = $2, paid_at = $3,
			     payment_id = CASE WHEN $4 <> '' THEN $4 ELSE payment_id END,
			     updated_at = now()
			 WHERE id = $1 AND status = 'pending'`,
			paymentID, string(newStatus), ts, newExternalID,
		)
	case model.PaymentStatusFailed, model.PaymentStatusCancelled:
		cmdTag, err = tx.Exec(ctx,
			`UPDATE payments
			 SET status = $2, cancelled_at = now(), updated_at = now()
			 WHERE id = $1 AND status = 'pending'`,
			paymentID, string(newStatus),
		)
	default:
		return nil, fmt.Errorf("unsupported settlement status %q", newStatus)
	}
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}

	applied := cmdTag.RowsAffected() == 1

	pay, err := r.getPaymentTx(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}

	if !applied {
		// Платёж уже не pending: дубль или проигранная гонка. Ничего не меняем.
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit tx: %w", err)
		}
		return &Settlement{Payment: *pay, Applied: false}, nil
	}

	order, err := r.lockOrderTx(ctx, tx, pay.OrderID)
	if err != nil {
		return nil, err
	}

	if order.Status == model.OrderStatusPending {
		switch newStatus {
		case model.PaymentStatusSuccess:
			if err := r.finalizePaidOrder(ctx, tx, order); err != nil {
				return nil, err
			}
		case model.PaymentStatusFailed, model.PaymentStatusCancelled:
			if err := r.cancelPendingOrder(ctx, tx, order); err != nil {
				return nil, err
			}
		}
	}

	var user model.User
	err = tx.QueryRow(ctx,
		`SELECT id, telegram_id, username, first_name, is_admin,
		        bonus_balance, total_spent, total_orders, created_at
		 FROM users WHERE id = $1`,
		pay.UserID,
	).Scan(&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.IsAdmin,
		&user.BonusBalance, &user.TotalSpentCents, &user.TotalOrders, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &Settlement{Payment: *pay, Order: *order, User: user, Applied: true}, nil
}

// finalizePaidOrder переводит заказ в paid и единожды применяет бонусные
// эффекты: списание использованных бонусов, начисление заработанных и
// обновление денормализованных счётчиков пользователя.
func (r *PostgresRepository) finalizePaidOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = 'paid', updated_at = now() WHERE id = $1`,
		order.ID,
	); err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	order.Status = model.OrderStatusPaid

	if order.BonusUsed > 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO bonus_transactions (user_id, order_id, amount, type, description)
			 VALUES ($1, $2, $3, $4, $5)`,
			order.UserID, order.ID, -order.BonusUsed, string(model.BonusTxSpent),
			fmt.Sprintf("Списание бонусов за заказ #%d", order.ID),
		); err != nil {
			return fmt.Errorf("insert spent transaction: %w", err)
		}
	}

	if order.BonusEarned > 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO bonus_transactions (user_id, order_id, amount, type, description)
			 VALUES ($1, $2, $3, $4, $5)`,
			order.UserID, order.ID, order.BonusEarned, string(model.BonusTxEarned),
			fmt.Sprintf("Начисление бонусов за заказ #%d", order.ID),
		); err != nil {
			return fmt.Errorf("insert earned transaction: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users
		 SET bonus_balance = bonus_balance + $2,
		     total_spent = total_spent + $3,
		     total_orders = total_orders + 1,
		     updated_at = now()
		 WHERE id = $1`,
		order.UserID, order.BonusEarned-order.BonusUsed, order.FinalAmountCents,
	); err != nil {
		return fmt.Errorf("update user counters: %w", err)
	}

	return nil
}

// cancelPendingOrder переводит заказ в cancelled и возвращает остатки по всем
// позициям. Бонусный журнал не затрагивается: по неоплаченному заказу бонусы
// не применялись.
func (r *PostgresRepository) cancelPendingOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = 'cancelled', updated_at = now() WHERE id = $1`,
		order.ID,
	); err != nil {
		return fmt.Errorf("mark order cancelled: %w", err)
	}
	order.Status = model.OrderStatusCancelled

	if _, err := tx.Exec(ctx,
		`UPDATE products p
		 SET stock_count = p.stock_count + oi.quantity
		 FROM order_items oi
		 WHERE oi.order_id = $1 AND oi.product_id = p.id`,
		order.ID,
	); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	return nil
}

func (r *PostgresRepository) getPaymentTx(ctx context.Context, tx pgx.Tx, paymentID int64) (*model.Payment, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`,
		paymentID,
	)
	return scanPayment(row)
}

func (r *PostgresRepository) lockOrderTx(ctx context.Context, tx pgx.Tx, orderID int64) (*model.Order, error) {
	var o model.Order
	err := tx.QueryRow(ctx,
		`SELECT id, user_id, promo_code_id, status, total_amount, promo_discount,
		        bonus_used, bonus_earned, final_amount, currency, created_at, updated_at
		 FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&o.ID, &o.UserID, &o.PromoCodeID, &o.Status, &o.TotalAmountCents, &o.PromoDiscountCents,
		&o.BonusUsed, &o.BonusEarned, &o.FinalAmountCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return &o, nil
}

// CancelOrder отменяет pending-заказ по инициативе пользователя через тот же
// путь расчёта, что и webhook: гонка с конкурентной доставкой "success"
// разрешается условным UPDATE статуса платежа.
func (r *PostgresRepository) CancelOrder(ctx context.Context, userID, orderID int64) (*Settlement, error) {
	var paymentID int64
	err := r.pool.QueryRow(ctx,
		`SELECT p.id
		 FROM payments p
		 JOIN orders o ON o.id = p.order_id
		 WHERE o.id = $1 AND o.user_id = $2`,
		orderID, userID,
	).Scan(&paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order payment: %w", err)
	}

	settlement, err := r.SettlePayment(ctx, paymentID, model.PaymentStatusCancelled, nil, "")
	if err != nil {
		return nil, err
	}
	if !settlement.Applied {
		return nil, ErrOrderNotCancellable
	}

	return settlement, nil
}

// AdjustBonus изменяет бонусный баланс пользователя на delta и записывает
// строку журнала в той же транзакции. Отрицательная delta отклоняется, если
// баланс недостаточен.
func (r *PostgresRepository) AdjustBonus(ctx context.Context, userID, delta int64, txType model.BonusTxType, description string) (*model.BonusTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `SELECT bonus_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}

	if balance+delta < 0 {
		return nil, ErrInsufficientBonus
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET bonus_balance = bonus_balance + $2, updated_at = now() WHERE id = $1`,
		userID, delta,
	); err != nil {
		return nil, fmt.Errorf("update bonus balance: %w", err)
	}

	t := model.BonusTransaction{
		UserID:      userID,
		Amount:      delta,
		Type:        txType,
		Description: description,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO bonus_transactions (user_id, amount, type, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		t.UserID, t.Amount, string(t.Type), t.Description,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert bonus transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &t, nil
}

// SetBonusBalance устанавливает точный баланс бонусов, записывая в журнал
// подписанную разницу типом admin_adjust.
func (r *PostgresRepository) SetBonusBalance(ctx context.Context, userID, newBalance int64, description string) (*model.BonusTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `SELECT bonus_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}

	diff := newBalance - balance

	if _, err := tx.Exec(ctx,
		`UPDATE users SET bonus_balance = $2, updated_at = now() WHERE id = $1`,
		userID, newBalance,
	); err != nil {
		return nil, fmt.Errorf("set bonus balance: %w", err)
	}

	t := model.BonusTransaction{
		UserID:      userID,
		Amount:      diff,
		Type:        model.BonusTxAdminAdjust,
		Description: description,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO bonus_transactions (user_id, amount, type, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		t.UserID, t.Amount, string(t.Type), t.Description,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert bonus transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &t, nil
}
