package repository

import (
	"context"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScanEventRepository is append-only. There are no update or delete
// methods on purpose.
type ScanEventRepository struct {
	db *gorm.DB
}

func NewScanEventRepository(db *gorm.DB) *ScanEventRepository {
	return &ScanEventRepository{db: db}
}

func (r *ScanEventRepository) Create(ctx context.Context, ev *entity.ScanEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *ScanEventRepository) FindByCode(ctx context.Context, code string, page, pageSize int) ([]entity.ScanEvent, int64, error) {
	var items []entity.ScanEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ScanEvent{}).Where("code = ?", code)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}
