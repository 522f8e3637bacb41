package repository

import (
	"context"
	"errors"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"gorm.io/gorm"
)

// OrderRepository reads boundary records owned by the upstream order
// system. The engine only flips an order to batch_generated.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	var o entity.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) MarkBatchGenerated(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.Order{}).
		Where("id = ? AND status = ?", id, entity.OrderStatusApproved).
		Update("status", entity.OrderStatusBatchGenerated).Error
}

func (r *OrderRepository) FindOrganization(ctx context.Context, id string) (*entity.Organization, error) {
	var org entity.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}
