// Package bonus реализует расчёты бонусной программы.
//
// Списание и начисление бонусов по заказу выполняет хранилище в транзакции
// расчёта платежа; функции этого пакета только вычисляют значения и не имеют
// побочных эффектов.
package bonus

// Milestone описывает порог бонусной программы: за указанный по счёту заказ
// начисляется Points бонусов. Points == 0 означает неденежную награду,
// которую выдаёт владелец магазина вручную.
type Milestone struct {
	OrderNumber int64
	Points      int64
	Reward      string
}

// Config содержит параметры бонусной программы. Таблица порогов неизменна на
// время работы процесса и передаётся явно, чтобы её можно было подменять в
// тестах и окружениях.
type Config struct {
	// MaxUsagePercent — максимальная доля суммы заказа, оплачиваемая бонусами.
	MaxUsagePercent int64
	// PointCents — стоимость одного бонуса в копейках.
	PointCents int64
	Milestones []Milestone
}

// DefaultConfig возвращает параметры бонусной программы по умолчанию:
// бонусами можно оплатить до 50% заказа, 1 бонус = 1 рубль.
func DefaultConfig() Config {
	return Config{
		MaxUsagePercent: 50,
		PointCents:      100,
		Milestones: []Milestone{
			{OrderNumber: 1, Points: 50, Reward: "50 ₽ на баланс"},
			{OrderNumber: 3, Points: 75, Reward: "75 ₽ на баланс"},
			{OrderNumber: 5, Points: 0, Reward: "Усилитель В"},
			{OrderNumber: 10, Points: 50, Reward: "50 ₽ на баланс"},
			{OrderNumber: 15, Points: 75, Reward: "75 ₽ на баланс"},
			{OrderNumber: 20, Points: 0, Reward: "Секретный подарок"},
			{OrderNumber: 30, Points: 200, Reward: "200 ₽ на баланс"},
			{OrderNumber: 40, Points: 250, Reward: "250 ₽ на баланс"},
			{OrderNumber: 50, Points: 0, Reward: "Любой абонемент"},
			{OrderNumber: 60, Points: 350, Reward: "350 ₽ на баланс"},
			{OrderNumber: 70, Points: 400, Reward: "400 ₽ на баланс"},
			{OrderNumber: 80, Points: 450, Reward: "450 ₽ на баланс"},
			{OrderNumber: 90, Points: 500, Reward: "500 ₽ на баланс"},
			{OrderNumber: 100, Points: 0, Reward: "20 000 FC Points"},
		},
	}
}

// MaxUsable возвращает максимальное количество бонусов, которое можно
// использовать при оплате заказа на указанную сумму (после промо-скидки).
func (c Config) MaxUsable(amountCents int64) int64 {
	if amountCents <= 0 || c.PointCents <= 0 {
		return 0
	}
	return amountCents * c.MaxUsagePercent / 100 / c.PointCents
}

// ClampUsage ограничивает запрошенное количество бонусов балансом пользователя
// и максимально допустимой долей суммы заказа. Результат не бывает отрицательным.
func (c Config) ClampUsage(requested, balance, amountCents int64) int64 {
	use := requested
	if use > balance {
		use = balance
	}
	if maxUsable := c.MaxUsable(amountCents); use > maxUsable {
		use = maxUsable
	}
	if use < 0 {
		return 0
	}
	return use
}

// EarnedForOrder возвращает количество бонусов за заказ с указанным порядковым
// номером. Для номеров вне таблицы порогов, а также для порогов с неденежной
// наградой автоматическое начисление равно нулю.
func (c Config) EarnedForOrder(orderNumber int64) int64 {
	for _, m := range c.Milestones {
		if m.OrderNumber == orderNumber {
			return m.Points
		}
	}
	return 0
}

// NextMilestone возвращает ближайший порог для пользователя, совершившего
// totalOrders заказов, либо nil, если все пороги уже пройдены.
func (c Config) NextMilestone(totalOrders int64) *Milestone {
	next := totalOrders + 1

	var best *Milestone
	for i := range c.Milestones {
		m := c.Milestones[i]
		if m.OrderNumber < next {
			continue
		}
		if best == nil || m.OrderNumber < best.OrderNumber {
			best = &m
		}
	}
	return best
}
