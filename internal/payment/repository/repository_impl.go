// Package repository provides the gorm-backed payment reader.
package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/receiptor/internal/payment/domain"
	"gorm.io/gorm"
)

var ErrPaymentNotFound = errors.New("payment_not_found")

type store struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &store{db: db}
}

func (s *store) GetPayment(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *store) ListCounting(ctx context.Context, orderID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := s.db.WithContext(ctx).
		Where("order_id = ? AND state IN ?", orderID, []domain.PaymentState{
			domain.PaymentStateCompleted,
			domain.PaymentStateAuthorization,
		}).
		Find(&payments).Error
	return payments, err
}
