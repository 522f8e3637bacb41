package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/edierwan/serapod2u-prod-sub000/internal/config"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"go.uber.org/zap"
)

// LinkerService binds previously generated unique codes to a master code
// at packing time, sealing the case when it fills.
type LinkerService struct {
	codes  *repository.CodeRepository
	ledger *LedgerService
	cfg    config.TraceConfig
	logger *zap.Logger
}

func NewLinkerService(repos *repository.Repositories, ledger *LedgerService, cfg config.TraceConfig, logger *zap.Logger) *LinkerService {
	return &LinkerService{
		codes:  repos.Code,
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
	}
}

// LinkRequest is one packing call: a master code candidate plus the unit
// codes scanned into the case.
type LinkRequest struct {
	MasterCode  string   `json:"master_code" binding:"required"`
	UniqueCodes []string `json:"unique_codes" binding:"required,min=1"`
	// ForceSeal seals a short-packed case if it is within the configured
	// tolerance of its expected count.
	ForceSeal bool `json:"force_seal"`
}

// LinkResult reports the case after a successful link.
type LinkResult struct {
	MasterCode  string `json:"master_code"`
	CaseNumber  int    `json:"case_number"`
	LinkedCount int    `json:"linked_count"`
	LinkedTotal int    `json:"linked_total"`
	Expected    int    `json:"expected_unit_count"`
	Sealed      bool   `json:"sealed"`
}

// Link is all-or-nothing per call: if any single unique code fails
// validation none are linked and the caller receives the offending codes.
func (s *LinkerService) Link(ctx context.Context, req *LinkRequest, actorOrg, actorUser string) (*LinkResult, error) {
	codes := dedupe(req.UniqueCodes)

	master, err := s.codes.FindMasterByCode(ctx, req.MasterCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if master.Status != entity.MasterStatusGenerated {
		return nil, ErrMasterSealed
	}
	if master.ActualLinkedCount+len(codes) > master.ExpectedUnitCount {
		return nil, &CaseCapacityError{
			Expected:  master.ExpectedUnitCount,
			Linked:    master.ActualLinkedCount,
			Attempted: len(codes),
		}
	}

	failures, linkableFrom, linkedTo, err := s.validateUnits(ctx, master, codes)
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		return nil, &LinkValidationError{Failures: failures}
	}

	sealedStatus, err := s.ledger.NextMasterStatus(master.Code, master.Status, EventSeal)
	if err != nil {
		return nil, err
	}
	seal := repository.StatusTransition{From: master.Status, To: sealedStatus}

	events := make([]entity.ScanEvent, 0, len(codes)+1)
	for _, code := range codes {
		events = append(events, NewEvent(code, entity.CodeTypeUnique, entity.ScanTypeLink, master.BatchID, actorOrg, actorUser, nil))
	}
	events = append(events, NewEvent(master.Code, entity.CodeTypeMaster, entity.ScanTypeLink, master.BatchID, actorOrg, actorUser, nil))

	updated, err := s.codes.LinkUnits(ctx, master, codes, linkableFrom, linkedTo, seal, events)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			// A concurrent linker beat us to one of the codes or the case.
			// Re-validate so the caller gets the specific conflicts.
			failures, _, _, verr := s.validateUnits(ctx, master, codes)
			if verr == nil && len(failures) > 0 {
				return nil, &LinkValidationError{Failures: failures}
			}
			fresh, ferr := s.codes.FindMasterByCode(ctx, req.MasterCode)
			if ferr == nil && fresh.Status != entity.MasterStatusGenerated {
				return nil, ErrMasterSealed
			}
			return nil, &LinkValidationError{Failures: []LinkFailure{{Reason: "state changed concurrently, retry with refreshed codes"}}}
		}
		return nil, fmt.Errorf("link units: %w", err)
	}

	sealed := updated.Status == entity.MasterStatusSealed
	if !sealed && req.ForceSeal && updated.ExpectedUnitCount-updated.ActualLinkedCount <= s.cfg.SealTolerance {
		if err := s.codes.SealMaster(ctx, updated.ID, s.cfg.SealTolerance, seal); err == nil {
			sealed = true
			updated.Status = entity.MasterStatusSealed
		} else if !errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("seal case: %w", err)
		}
	}

	if sealed {
		s.logger.Info("Case sealed",
			zap.String("master_code", updated.Code),
			zap.Int("case_number", updated.CaseNumber),
			zap.Int("units", updated.ActualLinkedCount))
	}

	return &LinkResult{
		MasterCode:  updated.Code,
		CaseNumber:  updated.CaseNumber,
		LinkedCount: len(codes),
		LinkedTotal: updated.ActualLinkedCount,
		Expected:    updated.ExpectedUnitCount,
		Sealed:      sealed,
	}, nil
}

// validateUnits checks every candidate unit and resolves the link
// transition through the ledger tables. The returned from statuses are
// the distinct current statuses of the valid units; they and the target
// feed the repository guards unchanged.
func (s *LinkerService) validateUnits(ctx context.Context, master *entity.MasterCode, codes []string) ([]LinkFailure, []string, string, error) {
	units, err := s.codes.FindUniquesByCodes(ctx, codes)
	if err != nil {
		return nil, nil, "", err
	}

	byCode := make(map[string]*entity.UniqueCode, len(units))
	for i := range units {
		byCode[units[i].Code] = &units[i]
	}

	var (
		failures []LinkFailure
		seenFrom = make(map[string]struct{})
		from     []string
		to       string
	)
	for _, code := range codes {
		uc, ok := byCode[code]
		switch {
		case !ok:
			failures = append(failures, LinkFailure{Code: code, Reason: "not found"})
		case uc.BatchID != master.BatchID:
			failures = append(failures, LinkFailure{Code: code, Reason: "belongs to a different batch"})
		case uc.MasterID != nil:
			failures = append(failures, LinkFailure{Code: code, Reason: "already linked to a case"})
		default:
			next, terr := s.ledger.NextUniqueStatus(uc.Code, uc.Status, EventLink)
			if terr != nil {
				failures = append(failures, LinkFailure{Code: code, Reason: "status " + uc.Status + " is not linkable"})
				continue
			}
			to = next
			if _, dup := seenFrom[uc.Status]; !dup {
				seenFrom[uc.Status] = struct{}{}
				from = append(from, uc.Status)
			}
		}
	}
	return failures, from, to, nil
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
