package repository

import (
	"context"
	"errors"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"gorm.io/gorm"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateWithCodes persists a batch and its full code hierarchy in a single
// transaction: either everything lands or nothing does. The unique index
// on batches.order_id is the duplicate-batch guard; a violation surfaces
// as gorm.ErrDuplicatedKey.
func (r *BatchRepository) CreateWithCodes(ctx context.Context, batch *entity.Batch, masters []entity.MasterCode, units []entity.UniqueCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		if err := tx.CreateInBatches(masters, 200).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(units, 500).Error
	})
}

func (r *BatchRepository) FindByID(ctx context.Context, id string) (*entity.Batch, error) {
	var b entity.Batch
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BatchRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.Batch, error) {
	var b entity.Batch
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// SetArtifact records the generated artifact's object key once the upload
// follow-up completes.
func (r *BatchRepository) SetArtifact(ctx context.Context, batchID, key string) error {
	return r.db.WithContext(ctx).Model(&entity.Batch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"artifact_key": key,
			"status":       entity.BatchStatusArtifactReady,
		}).Error
}

func (r *BatchRepository) FindMasters(ctx context.Context, batchID string) ([]entity.MasterCode, error) {
	var masters []entity.MasterCode
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("case_number ASC").
		Find(&masters).Error
	return masters, err
}

func (r *BatchRepository) FindUnits(ctx context.Context, batchID string) ([]entity.UniqueCode, error) {
	var units []entity.UniqueCode
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("code ASC").
		Find(&units).Error
	return units, err
}
