package service

import (
	"github.com/edierwan/serapod2u-prod-sub000/internal/config"
	"github.com/edierwan/serapod2u-prod-sub000/internal/shared/storage"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services bundles the lifecycle services for handler wiring.
type Services struct {
	Generator *GeneratorService
	Ledger    *LedgerService
	Linker    *LinkerService
	Receiving *ReceivingService
	Shipment  *ShipmentService
	Report    *ReportService
}

// NewServices wires every service over one repository set. rdb and store
// may be nil; the services degrade to database-only behavior.
func NewServices(repos *repository.Repositories, rdb *redis.Client, store *storage.ArtifactStore, cfg config.TraceConfig, logger *zap.Logger) *Services {
	ledger := NewLedgerService(repos, logger)
	reports := NewReportService(repos, logger)
	return &Services{
		Generator: NewGeneratorService(repos, store, cfg, logger),
		Ledger:    ledger,
		Linker:    NewLinkerService(repos, ledger, cfg, logger),
		Receiving: NewReceivingService(repos, ledger, reports, logger),
		Shipment:  NewShipmentService(repos, ledger, rdb, cfg, logger),
		Report:    reports,
	}
}
