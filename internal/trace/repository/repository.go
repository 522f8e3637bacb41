package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrStaleStatus means a conditional status update matched zero rows:
	// the record's status changed underneath the caller. The caller decides
	// whether that is an idempotent replay or an illegal transition.
	ErrStaleStatus = errors.New("stale status guard")
)

// StatusTransition is one compare-and-swap pair resolved by the service
// layer's transition tables. Repositories never pick statuses themselves;
// they apply the pair under a From guard.
type StatusTransition struct {
	From string
	To   string
}

// Repositories holds the tracking engine's data access layer.
type Repositories struct {
	Order     *OrderRepository
	Batch     *BatchRepository
	Code      *CodeRepository
	ScanEvent *ScanEventRepository
	Session   *SessionRepository
	Report    *ReportRepository

	db *gorm.DB
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:     NewOrderRepository(db),
		Batch:     NewBatchRepository(db),
		Code:      NewCodeRepository(db),
		ScanEvent: NewScanEventRepository(db),
		Session:   NewSessionRepository(db),
		Report:    NewReportRepository(db),
		db:        db,
	}
}

// DB exposes the underlying connection for migrations and test seeding.
func (r *Repositories) DB() *gorm.DB {
	return r.db
}
