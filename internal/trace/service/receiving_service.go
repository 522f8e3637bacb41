package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"go.uber.org/zap"
)

// ReceivingService checks sealed cases into a warehouse. A case is the
// unit of receipt: scanning its master code receives every unit packed
// inside it.
type ReceivingService struct {
	codes   *repository.CodeRepository
	batches *repository.BatchRepository
	ledger  *LedgerService
	reports *ReportService
	logger  *zap.Logger
}

func NewReceivingService(repos *repository.Repositories, ledger *LedgerService, reports *ReportService, logger *zap.Logger) *ReceivingService {
	return &ReceivingService{
		codes:   repos.Code,
		batches: repos.Batch,
		ledger:  ledger,
		reports: reports,
		logger:  logger,
	}
}

// ReceiveResult describes the outcome of one master-code scan at the
// warehouse dock. AlreadyReceived marks an idempotent replay.
type ReceiveResult struct {
	MasterCode      string `json:"master_code"`
	CaseNumber      int    `json:"case_number"`
	BatchID         string `json:"batch_id"`
	UnitCount       int    `json:"unit_count"`
	AlreadyReceived bool   `json:"already_received"`
}

// Receive moves a sealed case and its units to received_by_warehouse.
// Scanning the same case twice is a no-op reported as AlreadyReceived,
// not an error; a never-sealed or already-shipped case is rejected.
func (s *ReceivingService) Receive(ctx context.Context, masterCode, warehouseOrg, user string) (*ReceiveResult, error) {
	master, err := s.codes.FindMasterByCode(ctx, masterCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	switch master.Status {
	case entity.MasterStatusSealed:
		// fall through to the cascade below
	case entity.MasterStatusGenerated:
		return nil, ErrNotSealed
	case entity.MasterStatusReceived:
		return s.replayResult(master), nil
	case entity.MasterStatusShipped:
		return nil, ErrAlreadyShipped
	default:
		return nil, &TransitionError{
			Code:      master.Code,
			CodeType:  entity.CodeTypeMaster,
			Current:   master.Status,
			Attempted: EventReceive,
		}
	}

	caseNext, err := s.ledger.NextMasterStatus(master.Code, master.Status, EventReceive)
	if err != nil {
		return nil, err
	}
	unitNext, err := s.ledger.NextUniqueStatus(master.Code, entity.UniqueStatusLinked, EventReceive)
	if err != nil {
		return nil, err
	}

	units, err := s.codes.FindUnitsByMaster(ctx, master.ID)
	if err != nil {
		return nil, err
	}

	events := make([]entity.ScanEvent, 0, len(units)+1)
	events = append(events, NewEvent(master.Code, entity.CodeTypeMaster, entity.ScanTypeReceive, master.BatchID, warehouseOrg, user, nil))
	for _, u := range units {
		events = append(events, NewEvent(u.Code, entity.CodeTypeUnique, entity.ScanTypeReceive, master.BatchID, warehouseOrg, user, nil))
	}

	received, err := s.codes.ReceiveCascade(ctx, master,
		repository.StatusTransition{From: master.Status, To: caseNext},
		repository.StatusTransition{From: entity.UniqueStatusLinked, To: unitNext},
		events)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			// Lost a race with another dock scanner. Re-read to tell an
			// idempotent replay apart from a genuine illegal transition.
			fresh, ferr := s.codes.FindMasterByCode(ctx, masterCode)
			if ferr == nil && fresh.Status == entity.MasterStatusReceived {
				return s.replayResult(fresh), nil
			}
			if ferr == nil {
				return nil, &TransitionError{
					Code:      fresh.Code,
					CodeType:  entity.CodeTypeMaster,
					Current:   fresh.Status,
					Attempted: EventReceive,
				}
			}
			return nil, ferr
		}
		return nil, fmt.Errorf("receive case: %w", err)
	}

	s.writeReport(ctx, master, warehouseOrg, user, received)

	s.logger.Info("Case received",
		zap.String("master_code", master.Code),
		zap.String("batch_id", master.BatchID),
		zap.Int("units", received))

	return &ReceiveResult{
		MasterCode: master.Code,
		CaseNumber: master.CaseNumber,
		BatchID:    master.BatchID,
		UnitCount:  received,
	}, nil
}

func (s *ReceivingService) replayResult(master *entity.MasterCode) *ReceiveResult {
	return &ReceiveResult{
		MasterCode:      master.Code,
		CaseNumber:      master.CaseNumber,
		BatchID:         master.BatchID,
		UnitCount:       master.ActualLinkedCount,
		AlreadyReceived: true,
	}
}

// writeReport records the per-case receiving reconciliation. Report
// persistence never blocks the receipt itself.
func (s *ReceivingService) writeReport(ctx context.Context, master *entity.MasterCode, warehouseOrg, user string, received int) {
	report := BuildReport(entity.ReportTypeReceiving, master.ExpectedUnitCount, received)
	report.BatchID = &master.BatchID
	report.DestinationOrgID = warehouseOrg
	report.CreatedBy = user
	if batch, err := s.batches.FindByID(ctx, master.BatchID); err == nil {
		report.OriginOrgID = batch.OrgID
	}
	if err := s.reports.Create(ctx, report); err != nil {
		s.logger.Error("Failed to persist receiving report",
			zap.String("master_code", master.Code), zap.Error(err))
	}
}
