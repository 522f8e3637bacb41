package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"gorm.io/gorm"
)

// CodeRepository reads and transitions unique and master codes. Every
// status write is conditioned on the expected prior status; a guard that
// matches zero rows surfaces as ErrStaleStatus, never as a silent no-op.
type CodeRepository struct {
	db *gorm.DB
}

func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

func (r *CodeRepository) FindUniqueByCode(ctx context.Context, code string) (*entity.UniqueCode, error) {
	var uc entity.UniqueCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&uc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &uc, nil
}

func (r *CodeRepository) FindMasterByCode(ctx context.Context, code string) (*entity.MasterCode, error) {
	var mc entity.MasterCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&mc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mc, nil
}

// FindUniquesByCodes returns the unique codes for the given code strings,
// in no particular order. Missing codes are simply absent from the result.
func (r *CodeRepository) FindUniquesByCodes(ctx context.Context, codes []string) ([]entity.UniqueCode, error) {
	var items []entity.UniqueCode
	err := r.db.WithContext(ctx).Where("code IN ?", codes).Find(&items).Error
	return items, err
}

func (r *CodeRepository) FindUnitsByMaster(ctx context.Context, masterID string) ([]entity.UniqueCode, error) {
	var items []entity.UniqueCode
	err := r.db.WithContext(ctx).Where("master_id = ?", masterID).Order("code ASC").Find(&items).Error
	return items, err
}

// UpdateUniqueStatus applies a compare-and-swap status transition on one
// unique code.
func (r *CodeRepository) UpdateUniqueStatus(ctx context.Context, code, from, to string) error {
	res := r.db.WithContext(ctx).Model(&entity.UniqueCode{}).
		Where("code = ? AND status = ?", code, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// LinkUnits binds a set of unique codes to a master code, all-or-nothing.
// Preconditions (same batch, linkable status, master not sealed) are
// re-checked inside the guards so concurrent linkers cannot overfill a
// case. Applies the seal transition when the linked count reaches the
// expected count. The prepared scan events are appended in the same
// transaction.
func (r *CodeRepository) LinkUnits(ctx context.Context, master *entity.MasterCode, codes []string, linkableFrom []string, linkedTo string, seal StatusTransition, events []entity.ScanEvent) (*entity.MasterCode, error) {
	var out entity.MasterCode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.UniqueCode{}).
			Where("code IN ? AND batch_id = ? AND master_id IS NULL AND status IN ?",
				codes, master.BatchID, linkableFrom).
			Updates(map[string]interface{}{
				"master_id": master.ID,
				"status":    linkedTo,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(codes)) {
			return ErrStaleStatus
		}

		res = tx.Model(&entity.MasterCode{}).
			Where("id = ? AND status = ? AND actual_linked_count + ? <= expected_unit_count",
				master.ID, seal.From, len(codes)).
			Update("actual_linked_count", gorm.Expr("actual_linked_count + ?", len(codes)))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		if err := tx.Model(&entity.MasterCode{}).
			Where("id = ? AND status = ? AND actual_linked_count = expected_unit_count",
				master.ID, seal.From).
			Update("status", seal.To).Error; err != nil {
			return err
		}

		if err := tx.Model(&entity.Batch{}).
			Where("id = ?", master.BatchID).
			Update("linked_unit_count", gorm.Expr("linked_unit_count + ?", len(codes))).Error; err != nil {
			return err
		}

		if len(events) > 0 {
			if err := tx.CreateInBatches(events, 200).Error; err != nil {
				return fmt.Errorf("append scan events: %w", err)
			}
		}

		return tx.Where("id = ?", master.ID).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SealMaster seals a short-packed case within the allowed tolerance. The
// guard re-checks the count so a racing link cannot seal past capacity.
func (r *CodeRepository) SealMaster(ctx context.Context, masterID string, tolerance int, seal StatusTransition) error {
	res := r.db.WithContext(ctx).Model(&entity.MasterCode{}).
		Where("id = ? AND status = ? AND actual_linked_count + ? >= expected_unit_count",
			masterID, seal.From, tolerance).
		Update("status", seal.To)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ValidateShipped applies the validate transition to shipped units of a
// closed session. Idempotent: already-validated units simply match no
// rows.
func (r *CodeRepository) ValidateShipped(ctx context.Context, masterIDs, looseCodes []string, validate StatusTransition, events []entity.ScanEvent) (int, error) {
	var validated int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(masterIDs) > 0 {
			res := tx.Model(&entity.UniqueCode{}).
				Where("master_id IN ? AND status = ?", masterIDs, validate.From).
				Update("status", validate.To)
			if res.Error != nil {
				return res.Error
			}
			validated += res.RowsAffected
		}
		if len(looseCodes) > 0 {
			res := tx.Model(&entity.UniqueCode{}).
				Where("code IN ? AND status = ?", looseCodes, validate.From).
				Update("status", validate.To)
			if res.Error != nil {
				return res.Error
			}
			validated += res.RowsAffected
		}
		if validated > 0 && len(events) > 0 {
			if err := tx.CreateInBatches(events, 200).Error; err != nil {
				return fmt.Errorf("append scan events: %w", err)
			}
		}
		return nil
	})
	return int(validated), err
}

// ReceiveCascade applies the receive transition to a sealed master and
// every unit linked under it in one transaction. The master guard is the
// at-most-once gate: a second receive matches zero rows and the whole
// operation rolls back untouched.
func (r *CodeRepository) ReceiveCascade(ctx context.Context, master *entity.MasterCode, caseReceive, unitReceive StatusTransition, events []entity.ScanEvent) (int, error) {
	var received int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.MasterCode{}).
			Where("id = ? AND status = ?", master.ID, caseReceive.From).
			Update("status", caseReceive.To)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		units := tx.Model(&entity.UniqueCode{}).
			Where("master_id = ? AND status = ?", master.ID, unitReceive.From).
			Update("status", unitReceive.To)
		if units.Error != nil {
			return units.Error
		}
		received = int(units.RowsAffected)

		if err := tx.Model(&entity.Batch{}).
			Where("id = ?", master.BatchID).
			Update("received_unit_count", gorm.Expr("received_unit_count + ?", received)).Error; err != nil {
			return err
		}

		if len(events) > 0 {
			if err := tx.Create(events).Error; err != nil {
				return fmt.Errorf("append scan events: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return received, nil
}
