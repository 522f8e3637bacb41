package repository

import (
	"context"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportRepository is insert-only: reports are never updated, a
// correction is a new row.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, report *entity.ValidationReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *ReportRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ValidationReport, int64, error) {
	var items []entity.ValidationReport
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ValidationReport{})
	if t := filters["type"]; t != "" {
		query = query.Where("type = ?", t)
	}
	if sessionID := filters["session_id"]; sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	if batchID := filters["batch_id"]; batchID != "" {
		query = query.Where("batch_id = ?", batchID)
	}
	if matched := filters["is_matched"]; matched != "" {
		query = query.Where("is_matched = ?", matched == "true")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}
