package repository

import (
	"context"
	"errors"
	"time"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *entity.ShipmentSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*entity.ShipmentSession, error) {
	var s entity.ShipmentSession
	err := r.db.WithContext(ctx).
		Preload("Scans", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// AddScan inserts a membership claim plus claim-only rows for the codes
// it covers, in one transaction. The unique index on session_scans.code
// makes the inserts themselves the arbiter: of two concurrent claims
// touching the same code exactly one transaction commits, the other
// rolls back with gorm.ErrDuplicatedKey. Because a master scan claims
// its member codes as rows too, a loose claim on a member unit and a
// claim on its case collide in either order.
func (r *SessionRepository) AddScan(ctx context.Context, scan *entity.SessionScan, memberClaims []entity.SessionScan) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(scan).Error; err != nil {
			return err
		}
		if len(memberClaims) > 0 {
			if err := tx.CreateInBatches(memberClaims, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindClaim returns the existing claim row for a code, if any open or
// closed session holds one.
func (r *SessionRepository) FindClaim(ctx context.Context, code string) (*entity.SessionScan, error) {
	var scan entity.SessionScan
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&scan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &scan, nil
}

// CloseSession closes an open session and applies the ship transition to
// every accumulated code, atomically. The session guard (status = open)
// is the at-most-once gate for the close itself; the per-code guards keep
// a code from shipping twice even if a claim row somehow outlived its
// code state. The validation report is written in the same transaction so
// a closed session is never observable without its report.
func (r *SessionRepository) CloseSession(ctx context.Context, sessionID string, masterCodes, looseUnitCodes []string, masterIDs []string, batchShipped map[string]int, caseShip, unitShip StatusTransition, report *entity.ValidationReport) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.ShipmentSession{}).
			Where("id = ? AND status = ?", sessionID, entity.SessionStatusOpen).
			Updates(map[string]interface{}{
				"status":    entity.SessionStatusClosed,
				"closed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		if len(masterCodes) > 0 {
			res = tx.Model(&entity.MasterCode{}).
				Where("code IN ? AND status = ?", masterCodes, caseShip.From).
				Update("status", caseShip.To)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != int64(len(masterCodes)) {
				return ErrStaleStatus
			}

			res = tx.Model(&entity.UniqueCode{}).
				Where("master_id IN ? AND status = ?", masterIDs, unitShip.From).
				Update("status", unitShip.To)
			if res.Error != nil {
				return res.Error
			}
		}

		if len(looseUnitCodes) > 0 {
			res = tx.Model(&entity.UniqueCode{}).
				Where("code IN ? AND status = ?", looseUnitCodes, unitShip.From).
				Update("status", unitShip.To)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != int64(len(looseUnitCodes)) {
				return ErrStaleStatus
			}
		}

		for batchID, count := range batchShipped {
			if err := tx.Model(&entity.Batch{}).
				Where("id = ?", batchID).
				Update("shipped_unit_count", gorm.Expr("shipped_unit_count + ?", count)).Error; err != nil {
				return err
			}
		}

		return tx.Create(report).Error
	})
}

// FindExpired lists open sessions whose TTL elapsed.
func (r *SessionRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]entity.ShipmentSession, error) {
	var items []entity.ShipmentSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", entity.SessionStatusOpen, now).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// Expire marks one timed-out session expired and releases its claims so
// the codes become scannable by other sessions again. The status guard
// keeps a racing Close from losing scans.
func (r *SessionRepository) Expire(ctx context.Context, sessionID string) ([]string, error) {
	var released []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.ShipmentSession{}).
			Where("id = ? AND status = ?", sessionID, entity.SessionStatusOpen).
			Update("status", entity.SessionStatusExpired)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}

		var scans []entity.SessionScan
		if err := tx.Where("session_id = ?", sessionID).Find(&scans).Error; err != nil {
			return err
		}
		for _, s := range scans {
			released = append(released, s.Code)
		}

		return tx.Where("session_id = ?", sessionID).Delete(&entity.SessionScan{}).Error
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}
