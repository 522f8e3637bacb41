package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transition events. Together with the tables below they are the whole
// state machine; every status mutation in the engine resolves its target
// status here and applies it under a compare-and-swap guard.
const (
	EventScanUnique = "scan_unique"
	EventLink       = "link"
	EventSeal       = "seal"
	EventReceive    = "receive"
	EventShip       = "scan_for_shipment"
	EventValidate   = "validate"
)

// event -> current status -> next status
var uniqueTransitions = map[string]map[string]string{
	EventScanUnique: {entity.UniqueStatusGenerated: entity.UniqueStatusScanned},
	EventLink: {
		entity.UniqueStatusGenerated: entity.UniqueStatusLinked,
		entity.UniqueStatusScanned:   entity.UniqueStatusLinked,
	},
	EventReceive:  {entity.UniqueStatusLinked: entity.UniqueStatusReceived},
	EventShip:     {entity.UniqueStatusReceived: entity.UniqueStatusShipped},
	EventValidate: {entity.UniqueStatusShipped: entity.UniqueStatusValidated},
}

var masterTransitions = map[string]map[string]string{
	EventSeal:    {entity.MasterStatusGenerated: entity.MasterStatusSealed},
	EventReceive: {entity.MasterStatusSealed: entity.MasterStatusReceived},
	EventShip:    {entity.MasterStatusReceived: entity.MasterStatusShipped},
}

// LedgerService is the single authority for code status transitions. The
// other services resolve legality and target statuses through it and
// record every applied transition as an append-only ScanEvent.
type LedgerService struct {
	codes   *repository.CodeRepository
	events  *repository.ScanEventRepository
	orders  *repository.OrderRepository
	batches *repository.BatchRepository
	logger  *zap.Logger
}

func NewLedgerService(repos *repository.Repositories, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		codes:   repos.Code,
		events:  repos.ScanEvent,
		orders:  repos.Order,
		batches: repos.Batch,
		logger:  logger,
	}
}

// NextUniqueStatus resolves the target status for a unique code, or a
// TransitionError when the event is not legal from the current status.
func (s *LedgerService) NextUniqueStatus(code, current, event string) (string, error) {
	if next, ok := uniqueTransitions[event][current]; ok {
		return next, nil
	}
	return "", &TransitionError{Code: code, CodeType: entity.CodeTypeUnique, Current: current, Attempted: event}
}

// NextMasterStatus resolves the target status for a master code.
func (s *LedgerService) NextMasterStatus(code, current, event string) (string, error) {
	if next, ok := masterTransitions[event][current]; ok {
		return next, nil
	}
	return "", &TransitionError{Code: code, CodeType: entity.CodeTypeMaster, Current: current, Attempted: event}
}

// ResolveCodeType dispatches a raw scan payload by its namespace prefix.
func ResolveCodeType(code string) (string, error) {
	switch {
	case strings.HasPrefix(code, entity.UniqueCodePrefix):
		return entity.CodeTypeUnique, nil
	case strings.HasPrefix(code, entity.MasterCodePrefix):
		return entity.CodeTypeMaster, nil
	default:
		return "", ErrCodeNotFound
	}
}

// NewEvent builds a scan event row; the repositories append it inside the
// transaction that applies the transition it records.
func NewEvent(code, codeType, scanType, batchID, actorOrg, actorUser string, sessionID *string) entity.ScanEvent {
	return entity.ScanEvent{
		ID:          uuid.New().String()[:32],
		Code:        code,
		CodeType:    codeType,
		ScanType:    scanType,
		BatchID:     batchID,
		ActorOrgID:  actorOrg,
		ActorUserID: actorUser,
		SessionID:   sessionID,
		CreatedAt:   time.Now(),
	}
}

// ScanUniqueResult answers a manufacturer scan.
type ScanUniqueResult struct {
	Code           string `json:"code"`
	Status         string `json:"status"`
	AlreadyScanned bool   `json:"already_scanned"`
	BatchID        string `json:"batch_id"`
	ProductName    string `json:"product_name,omitempty"`
}

// ScanUnique records a manufacturer line scan: generated ->
// scanned_by_manufacturer. A repeat scan is an idempotent no-op reported
// via the already_scanned flag, not an error, so retried client requests
// are safe.
func (s *LedgerService) ScanUnique(ctx context.Context, code, actorOrg, actorUser string) (*ScanUniqueResult, error) {
	uc, err := s.codes.FindUniqueByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	result := &ScanUniqueResult{Code: uc.Code, BatchID: uc.BatchID}
	if name, err := s.productNameForBatch(ctx, uc.BatchID); err == nil {
		result.ProductName = name
	}

	if uc.Status == entity.UniqueStatusScanned {
		result.Status = uc.Status
		result.AlreadyScanned = true
		return result, nil
	}

	next, err := s.NextUniqueStatus(uc.Code, uc.Status, EventScanUnique)
	if err != nil {
		return nil, err
	}

	if err := s.codes.UpdateUniqueStatus(ctx, uc.Code, uc.Status, next); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			// Lost the race: re-read and report what actually happened.
			fresh, ferr := s.codes.FindUniqueByCode(ctx, code)
			if ferr != nil {
				return nil, ferr
			}
			if fresh.Status == entity.UniqueStatusScanned {
				result.Status = fresh.Status
				result.AlreadyScanned = true
				return result, nil
			}
			return nil, &TransitionError{Code: code, CodeType: entity.CodeTypeUnique, Current: fresh.Status, Attempted: EventScanUnique}
		}
		return nil, err
	}

	ev := NewEvent(uc.Code, entity.CodeTypeUnique, entity.ScanTypeManufacturer, uc.BatchID, actorOrg, actorUser, nil)
	if err := s.events.Create(ctx, &ev); err != nil {
		s.logger.Error("Failed to append scan event", zap.String("code", code), zap.Error(err))
	}

	result.Status = next
	return result, nil
}

// CodeDetail resolves either code namespace and returns status plus
// lineage for audit UIs.
type CodeDetail struct {
	CodeType string             `json:"code_type"`
	Unique   *entity.UniqueCode `json:"unique_code,omitempty"`
	Master   *entity.MasterCode `json:"master_code,omitempty"`
}

func (s *LedgerService) Lookup(ctx context.Context, code string) (*CodeDetail, error) {
	codeType, err := ResolveCodeType(code)
	if err != nil {
		return nil, err
	}

	switch codeType {
	case entity.CodeTypeUnique:
		uc, err := s.codes.FindUniqueByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrCodeNotFound
			}
			return nil, err
		}
		return &CodeDetail{CodeType: codeType, Unique: uc}, nil
	default:
		mc, err := s.codes.FindMasterByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrCodeNotFound
			}
			return nil, err
		}
		return &CodeDetail{CodeType: codeType, Master: mc}, nil
	}
}

// History returns the append-only scan trail for a code.
func (s *LedgerService) History(ctx context.Context, code string, page, pageSize int) ([]entity.ScanEvent, int64, error) {
	return s.events.FindByCode(ctx, code, page, pageSize)
}

func (s *LedgerService) productNameForBatch(ctx context.Context, batchID string) (string, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return "", err
	}
	order, err := s.orders.FindByID(ctx, batch.OrderID)
	if err != nil {
		return "", err
	}
	if len(order.Items) == 0 {
		return "", nil
	}
	return order.Items[0].ProductName, nil
}
