// Package model содержит доменные сущности магазина.
package model

import "time"

// User представляет покупателя магазина вместе с денормализованными счётчиками.
// BonusBalance всегда равен сумме всех бонусных транзакций пользователя.
type User struct {
	ID              int64
	TelegramID      int64
	Username        string
	FirstName       string
	IsAdmin         bool
	BonusBalance    int64
	TotalSpentCents int64
	TotalOrders     int64
	CreatedAt       time.Time
}

// Product описывает товар каталога. Цена хранится в копейках.
type Product struct {
	ID         int64
	Title      string
	PriceCents int64
	Currency   string
	StockCount int64
	IsActive   bool
}

// CartItem описывает позицию корзины вместе с данными товара на момент чтения.
type CartItem struct {
	ProductID  int64
	Title      string
	PriceCents int64
	Quantity   int64
	StockCount int64
	IsActive   bool
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order описывает заказ. Заказы никогда не удаляются, только меняют статус.
// FinalAmountCents = max(0, TotalAmountCents - PromoDiscountCents - BonusUsed*курс).
type Order struct {
	ID                 int64
	UserID             int64
	PromoCodeID        *int64
	Status             OrderStatus
	TotalAmountCents   int64
	PromoDiscountCents int64
	BonusUsed          int64
	BonusEarned        int64
	FinalAmountCents   int64
	Currency           string
	Items              []OrderItem
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OrderItem — неизменяемый снимок товара на момент оформления заказа.
type OrderItem struct {
	ID         int64
	OrderID    int64
	ProductID  *int64
	Title      string
	Quantity   int64
	PriceCents int64
}

// PaymentStatus описывает статус платежа. Статус платежа независим от статуса
// заказа, их согласованность поддерживает процедура расчёта.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment описывает платёж во внешней платёжной системе. Создаётся при
// оформлении заказа, дальше мутирует только процедура расчёта.
type Payment struct {
	ID            int64
	OrderID       int64
	UserID        int64
	ExternalID    string
	Provider      string
	PaymentMethod string
	AmountCents   int64
	Currency      string
	Status        PaymentStatus
	PaymentURL    string
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DiscountType описывает тип скидки промокода.
type DiscountType string

const (
	DiscountTypePercent DiscountType = "percent"
	DiscountTypeFixed   DiscountType = "fixed"
)

// PromoCode описывает промокод. Код хранится в верхнем регистре.
// UsageCount увеличивается не более одного раза на заказ, который его использует.
type PromoCode struct {
	ID               int64
	Code             string
	DiscountType     DiscountType
	DiscountValue    int64
	MinOrderCents    *int64
	MaxDiscountCents *int64
	UsageLimit       *int64
	UsageCount       int64
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	IsActive         bool
}

// BonusTxType описывает тип бонусной транзакции.
type BonusTxType string

const (
	BonusTxEarned      BonusTxType = "earned"
	BonusTxSpent       BonusTxType = "spent"
	BonusTxAdminAdjust BonusTxType = "admin_adjust"
	BonusTxAdminDeduct BonusTxType = "admin_deduct"
	BonusTxGift        BonusTxType = "bonus_gift"
)

// BonusTransaction — строка бонусного журнала. Журнал только дополняется:
// положительная сумма — начисление, отрицательная — списание.
type BonusTransaction struct {
	ID          int64
	UserID      int64
	OrderID     *int64
	Amount      int64
	Type        BonusTxType
	Description string
	CreatedAt   time.Time
}
