// Package repository provides the gorm-backed order store.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/receiptor/internal/order/domain"
	"gorm.io/gorm"
)

type store struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &store{db: db}
}

func (s *store) GetOrder(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *store) GetOrderType(ctx context.Context, id string) (*domain.OrderType, error) {
	var orderType domain.OrderType
	err := s.db.WithContext(ctx).First(&orderType, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderTypeNotFound
		}
		return nil, err
	}
	return &orderType, nil
}

func (s *store) SetArtifactPath(ctx context.Context, orderID snowflake.ID, path string) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE orders SET artifact_path = ?, updated_at = ? WHERE id = ?`,
		path,
		time.Now().UTC(),
		orderID,
	).Error
}

func (s *store) ListNumberedWithoutArtifact(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []domain.Order
	err := s.db.WithContext(ctx).
		Where("invoice_number IS NOT NULL AND artifact_path IS NULL").
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
