package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edierwan/serapod2u-prod-sub000/internal/config"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// releaseClaimScript deletes a claim key only if this session still owns
// it, so a slow release can never evict another session's claim.
var releaseClaimScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ShipmentService runs outbound scanning sessions: open a window, scan
// cases and loose units into it, close it against the expected quantity.
// Redis claims are a fast-path filter only; the unique index on
// session_scans.code remains the source of truth for code ownership.
type ShipmentService struct {
	sessions *repository.SessionRepository
	codes    *repository.CodeRepository
	orders   *repository.OrderRepository
	events   *repository.ScanEventRepository
	ledger   *LedgerService
	rdb      *redis.Client
	cfg      config.TraceConfig
	logger   *zap.Logger
}

func NewShipmentService(repos *repository.Repositories, ledger *LedgerService, rdb *redis.Client, cfg config.TraceConfig, logger *zap.Logger) *ShipmentService {
	return &ShipmentService{
		sessions: repos.Session,
		codes:    repos.Code,
		orders:   repos.Order,
		events:   repos.ScanEvent,
		ledger:   ledger,
		rdb:      rdb,
		cfg:      cfg,
		logger:   logger,
	}
}

type OpenSessionRequest struct {
	DestinationOrgID string  `json:"destination_org_id" binding:"required"`
	OrderID          *string `json:"order_id"`
	// ExpectedQuantity of zero with no order means the session carries no
	// expectation and closes without a mismatch check.
	ExpectedQuantity int `json:"expected_quantity"`
}

func (s *ShipmentService) Open(ctx context.Context, req *OpenSessionRequest, originOrg, user string) (*entity.ShipmentSession, error) {
	if _, err := s.orders.FindOrganization(ctx, req.DestinationOrgID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("destination organization %s: %w", req.DestinationOrgID, repository.ErrNotFound)
		}
		return nil, err
	}

	expected := req.ExpectedQuantity
	if req.OrderID != nil && expected == 0 {
		order, err := s.orders.FindByID(ctx, *req.OrderID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		for _, item := range order.Items {
			expected += item.Quantity
		}
	}

	now := time.Now()
	session := &entity.ShipmentSession{
		ID:               uuid.New().String()[:32],
		OriginOrgID:      originOrg,
		DestinationOrgID: req.DestinationOrgID,
		OrderID:          req.OrderID,
		ExpectedQuantity: expected,
		Status:           entity.SessionStatusOpen,
		OpenedBy:         user,
		OpenedAt:         now,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	s.logger.Info("Shipment session opened",
		zap.String("session_id", session.ID),
		zap.String("destination", session.DestinationOrgID),
		zap.Int("expected_quantity", expected))
	return session, nil
}

func (s *ShipmentService) Get(ctx context.Context, sessionID string) (*entity.ShipmentSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// SessionScanResult reports one accepted (or replayed) scan.
type SessionScanResult struct {
	SessionID        string `json:"session_id"`
	Code             string `json:"code"`
	CodeType         string `json:"code_type"`
	UnitCount        int    `json:"unit_count"`
	AlreadyInSession bool   `json:"already_in_session"`
}

// Scan claims a code for the session. A master claim covers every unit
// inside the case and claims each member code alongside it; a loose unit
// claim covers just itself. Re-scanning a code the same session already
// holds is a no-op, a code held by any other session is rejected, and a
// case with a member counted loose anywhere cannot be claimed whole.
func (s *ShipmentService) Scan(ctx context.Context, sessionID, code, actorOrg, actorUser string) (*SessionScanResult, error) {
	session, err := s.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	codeType, err := ResolveCodeType(code)
	if err != nil {
		return nil, err
	}

	var (
		unitCount    int
		batchID      string
		memberClaims []entity.SessionScan
	)
	switch codeType {
	case entity.CodeTypeMaster:
		master, err := s.codes.FindMasterByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrCodeNotFound
			}
			return nil, err
		}
		if master.Status == entity.MasterStatusShipped {
			return nil, ErrAlreadyShipped
		}
		if _, err := s.ledger.NextMasterStatus(code, master.Status, EventShip); err != nil {
			return nil, err
		}
		// Claim every unit in the case as a claim-only row so a loose
		// claim on a member collides with the case claim in either order.
		units, err := s.codes.FindUnitsByMaster(ctx, master.ID)
		if err != nil {
			return nil, err
		}
		memberClaims = make([]entity.SessionScan, 0, len(units))
		for _, u := range units {
			memberClaims = append(memberClaims, entity.SessionScan{
				ID:        uuid.New().String()[:32],
				SessionID: sessionID,
				Code:      u.Code,
				CodeType:  entity.CodeTypeUnique,
				ClaimOnly: true,
				ScannedBy: actorUser,
			})
		}
		unitCount = master.ActualLinkedCount
		batchID = master.BatchID

	case entity.CodeTypeUnique:
		unit, err := s.codes.FindUniqueByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrCodeNotFound
			}
			return nil, err
		}
		if unit.Status == entity.UniqueStatusShipped {
			return nil, ErrAlreadyShipped
		}
		if _, err := s.ledger.NextUniqueStatus(code, unit.Status, EventShip); err != nil {
			return nil, err
		}
		unitCount = 1
		batchID = unit.BatchID
	}

	claimedFast, err := s.claimFast(ctx, session, code)
	if err != nil {
		return nil, err
	}

	scan := &entity.SessionScan{
		ID:        uuid.New().String()[:32],
		SessionID: sessionID,
		Code:      code,
		CodeType:  codeType,
		UnitCount: unitCount,
		ScannedBy: actorUser,
	}
	if err := s.sessions.AddScan(ctx, scan, memberClaims); err != nil {
		if claimedFast {
			s.releaseClaims(context.WithoutCancel(ctx), session.ID, []string{code})
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			claim, cerr := s.sessions.FindClaim(ctx, code)
			if cerr != nil {
				if errors.Is(cerr, repository.ErrNotFound) {
					// The scanned code itself is free; one of the member
					// claims collided, so a unit of this case is already
					// counted loose somewhere.
					return nil, ErrAlreadyClaimed
				}
				return nil, cerr
			}
			if claim.SessionID == sessionID {
				return &SessionScanResult{
					SessionID:        sessionID,
					Code:             code,
					CodeType:         codeType,
					UnitCount:        unitCount,
					AlreadyInSession: true,
				}, nil
			}
			return nil, ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("claim code: %w", err)
	}

	ev := NewEvent(code, codeType, entity.ScanTypeShipment, batchID, actorOrg, actorUser, &sessionID)
	if err := s.events.Create(ctx, &ev); err != nil {
		s.logger.Error("Failed to append shipment scan event",
			zap.String("code", code), zap.Error(err))
	}

	return &SessionScanResult{
		SessionID: sessionID,
		Code:      code,
		CodeType:  codeType,
		UnitCount: unitCount,
	}, nil
}

type CloseSessionRequest struct {
	// ApproveDiscrepancy closes the session even when the scanned total
	// does not meet the expected quantity; the mismatch is still recorded
	// on the report.
	ApproveDiscrepancy bool   `json:"approve_discrepancy"`
	Notes              string `json:"notes"`
}

type CloseSessionResult struct {
	Session *entity.ShipmentSession  `json:"session"`
	Report  *entity.ValidationReport `json:"report"`
}

// Close ends the session and ships everything it holds in one
// transaction. With an expected quantity set, a mismatch blocks the
// close unless the caller explicitly approves the discrepancy.
func (s *ShipmentService) Close(ctx context.Context, sessionID string, req *CloseSessionRequest, actorOrg, actorUser string) (*CloseSessionResult, error) {
	session, err := s.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, scan := range session.Scans {
		if scan.ClaimOnly {
			continue
		}
		total += scan.UnitCount
	}

	if session.ExpectedQuantity > 0 && total != session.ExpectedQuantity && !req.ApproveDiscrepancy {
		return nil, &QuantityMismatchError{Expected: session.ExpectedQuantity, Scanned: total}
	}

	var (
		masterCodes    []string
		masterIDs      []string
		looseUnitCodes []string
		batchShipped   = make(map[string]int)
	)
	for _, scan := range session.Scans {
		if scan.ClaimOnly {
			continue
		}
		switch scan.CodeType {
		case entity.CodeTypeMaster:
			master, err := s.codes.FindMasterByCode(ctx, scan.Code)
			if err != nil {
				return nil, err
			}
			masterCodes = append(masterCodes, master.Code)
			masterIDs = append(masterIDs, master.ID)
			batchShipped[master.BatchID] += scan.UnitCount
		case entity.CodeTypeUnique:
			unit, err := s.codes.FindUniqueByCode(ctx, scan.Code)
			if err != nil {
				return nil, err
			}
			looseUnitCodes = append(looseUnitCodes, unit.Code)
			batchShipped[unit.BatchID] += scan.UnitCount
		}
	}

	expected := session.ExpectedQuantity
	if expected == 0 {
		// No expectation: the report records what shipped as both sides.
		expected = total
	}
	report := BuildReport(entity.ReportTypeShipment, expected, total)
	report.SessionID = &session.ID
	report.OriginOrgID = session.OriginOrgID
	report.DestinationOrgID = session.DestinationOrgID
	report.OverrideApproved = req.ApproveDiscrepancy && !report.IsMatched
	report.Notes = req.Notes
	report.CreatedBy = actorUser

	caseNext, err := s.ledger.NextMasterStatus("", entity.MasterStatusReceived, EventShip)
	if err != nil {
		return nil, err
	}
	unitNext, err := s.ledger.NextUniqueStatus("", entity.UniqueStatusReceived, EventShip)
	if err != nil {
		return nil, err
	}

	err = s.sessions.CloseSession(ctx, sessionID, masterCodes, looseUnitCodes, masterIDs, batchShipped,
		repository.StatusTransition{From: entity.MasterStatusReceived, To: caseNext},
		repository.StatusTransition{From: entity.UniqueStatusReceived, To: unitNext},
		report)
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			fresh, ferr := s.sessions.FindByID(ctx, sessionID)
			if ferr == nil && fresh.Status == entity.SessionStatusExpired {
				return nil, ErrSessionExpired
			}
			return nil, ErrSessionClosed
		}
		return nil, fmt.Errorf("close session: %w", err)
	}

	codes := make([]string, 0, len(session.Scans))
	for _, scan := range session.Scans {
		if scan.ClaimOnly {
			continue
		}
		codes = append(codes, scan.Code)
	}
	s.releaseClaims(context.WithoutCancel(ctx), sessionID, codes)

	s.logger.Info("Shipment session closed",
		zap.String("session_id", sessionID),
		zap.Int("cases", len(masterCodes)),
		zap.Int("loose_units", len(looseUnitCodes)),
		zap.Int("units", total),
		zap.Bool("matched", report.IsMatched))

	closed, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		closed = session
	}
	return &CloseSessionResult{Session: closed, Report: report}, nil
}

// Validate acknowledges a closed session at the destination, moving every
// shipped code to validated. Replays are no-ops.
func (s *ShipmentService) Validate(ctx context.Context, sessionID, actorOrg, actorUser string) (int, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, err
	}
	if session.Status != entity.SessionStatusClosed {
		return 0, ErrSessionNotClosed
	}

	var (
		masterIDs  []string
		looseCodes []string
		events     []entity.ScanEvent
	)
	for _, scan := range session.Scans {
		if scan.ClaimOnly {
			continue
		}
		switch scan.CodeType {
		case entity.CodeTypeMaster:
			master, err := s.codes.FindMasterByCode(ctx, scan.Code)
			if err != nil {
				return 0, err
			}
			masterIDs = append(masterIDs, master.ID)
			events = append(events, NewEvent(master.Code, entity.CodeTypeMaster, entity.ScanTypeValidate, master.BatchID, actorOrg, actorUser, &sessionID))
		case entity.CodeTypeUnique:
			unit, err := s.codes.FindUniqueByCode(ctx, scan.Code)
			if err != nil {
				return 0, err
			}
			looseCodes = append(looseCodes, unit.Code)
			events = append(events, NewEvent(unit.Code, entity.CodeTypeUnique, entity.ScanTypeValidate, unit.BatchID, actorOrg, actorUser, &sessionID))
		}
	}

	unitNext, err := s.ledger.NextUniqueStatus("", entity.UniqueStatusShipped, EventValidate)
	if err != nil {
		return 0, err
	}

	validated, err := s.codes.ValidateShipped(ctx, masterIDs, looseCodes,
		repository.StatusTransition{From: entity.UniqueStatusShipped, To: unitNext},
		events)
	if err != nil {
		return 0, fmt.Errorf("validate shipment: %w", err)
	}
	return validated, nil
}

// StartJanitor expires timed-out sessions in the background until the
// context is cancelled, releasing their claims so the codes become
// scannable again.
func (s *ShipmentService) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireDue(ctx)
			}
		}
	}()
}

func (s *ShipmentService) expireDue(ctx context.Context) {
	due, err := s.sessions.FindExpired(ctx, time.Now(), 50)
	if err != nil {
		s.logger.Error("Failed to list expired sessions", zap.Error(err))
		return
	}
	for _, session := range due {
		released, err := s.sessions.Expire(ctx, session.ID)
		if err != nil {
			if !errors.Is(err, repository.ErrStaleStatus) {
				s.logger.Error("Failed to expire session",
					zap.String("session_id", session.ID), zap.Error(err))
			}
			continue
		}
		s.releaseClaims(ctx, session.ID, released)
		s.logger.Info("Shipment session expired",
			zap.String("session_id", session.ID),
			zap.Int("released_codes", len(released)))
	}
}

func (s *ShipmentService) openSession(ctx context.Context, sessionID string) (*entity.ShipmentSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	switch {
	case session.Status == entity.SessionStatusClosed:
		return nil, ErrSessionClosed
	case session.Status == entity.SessionStatusExpired:
		return nil, ErrSessionExpired
	case time.Now().After(session.ExpiresAt):
		// The janitor has not caught up yet; callers see it expired.
		return nil, ErrSessionExpired
	}
	return session, nil
}

// claimFast takes the redis fast-path claim when redis is configured.
// The value is the owning session, the TTL tracks the session window.
func (s *ShipmentService) claimFast(ctx context.Context, session *entity.ShipmentSession, code string) (bool, error) {
	if s.rdb == nil {
		return false, nil
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return false, ErrSessionExpired
	}
	ok, err := s.rdb.SetNX(ctx, claimKey(code), session.ID, ttl).Result()
	if err != nil {
		// Redis being down degrades to the database arbiter alone.
		s.logger.Warn("Redis claim unavailable", zap.String("code", code), zap.Error(err))
		return false, nil
	}
	if !ok {
		owner, gerr := s.rdb.Get(ctx, claimKey(code)).Result()
		if gerr == nil && owner != session.ID {
			return false, ErrAlreadyClaimed
		}
		return false, nil
	}
	return true, nil
}

func (s *ShipmentService) releaseClaims(ctx context.Context, sessionID string, codes []string) {
	if s.rdb == nil {
		return
	}
	for _, code := range codes {
		if err := releaseClaimScript.Run(ctx, s.rdb, []string{claimKey(code)}, sessionID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn("Failed to release claim key",
				zap.String("code", code), zap.Error(err))
		}
	}
}

func claimKey(code string) string {
	return "trace:claim:" + code
}
