package service

import (
	"context"
	"fmt"

	"github.com/obelyakov/teleshop-checkout/internal/model"
)

// requireAdmin проверяет, что действующий пользователь является администратором.
func (s *Service) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// AdminAddBonus начисляет пользователю бонусные баллы от имени администратора.
func (s *Service) AdminAddBonus(ctx context.Context, actorID, userID, amount int64, description string) (*model.BonusTransaction, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = fmt.Sprintf("Начисление %d бонусов администратором", amount)
	}
	return s.repo.AdjustBonus(ctx, userID, amount, model.BonusTxGift, description)
}

// AdminSubtractBonus списывает бонусные баллы пользователя от имени
// администратора. Списание больше баланса отклоняется.
func (s *Service) AdminSubtractBonus(ctx context.Context, actorID, userID, amount int64, description string) (*model.BonusTransaction, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = fmt.Sprintf("Списание %d бонусов администратором", amount)
	}
	return s.repo.AdjustBonus(ctx, userID, -amount, model.BonusTxAdminDeduct, description)
}

// AdminSetBonus выставляет баланс пользователя в заданное значение, записывая
// в журнал разницу с текущим балансом.
func (s *Service) AdminSetBonus(ctx context.Context, actorID, userID, balance int64, description string) (*model.BonusTransaction, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if balance < 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = fmt.Sprintf("Баланс установлен администратором: %d", balance)
	}
	return s.repo.SetBonusBalance(ctx, userID, balance, description)
}
