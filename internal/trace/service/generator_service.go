package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/edierwan/serapod2u-prod-sub000/internal/config"
	"github.com/edierwan/serapod2u-prod-sub000/internal/shared/artifact"
	"github.com/edierwan/serapod2u-prod-sub000/internal/shared/storage"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Crockford-style alphabet: no I, L, O or U, so printed codes survive
// human transcription.
const codeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	uniqueCodeLen = 16 // 80 bits of entropy
	masterCodeLen = 12 // 60 bits of entropy
)

// GeneratorService produces a batch's full code hierarchy for an order.
type GeneratorService struct {
	orders  *repository.OrderRepository
	batches *repository.BatchRepository
	store   *storage.ArtifactStore
	cfg     config.TraceConfig
	logger  *zap.Logger
}

func NewGeneratorService(repos *repository.Repositories, store *storage.ArtifactStore, cfg config.TraceConfig, logger *zap.Logger) *GeneratorService {
	return &GeneratorService{
		orders:  repos.Order,
		batches: repos.Batch,
		store:   store,
		cfg:     cfg,
		logger:  logger,
	}
}

// BatchPlan is the deterministic sizing of a generation run.
type BatchPlan struct {
	TotalQuantity    int `json:"total_quantity"`
	BufferPercent    int `json:"buffer_percent"`
	UnitsPerCase     int `json:"units_per_case"`
	TotalUniqueCodes int `json:"total_unique_codes"`
	TotalMasterCodes int `json:"total_master_codes"`
}

// PlanBatch sizes a batch: total_unique = ceil(qty * (1 + buffer/100)),
// total_master = ceil(total_unique / units_per_case). Integer arithmetic
// only, so the result is exact.
func PlanBatch(totalQuantity, bufferPercent, unitsPerCase int) BatchPlan {
	totalUnique := (totalQuantity*(100+bufferPercent) + 99) / 100
	totalMaster := (totalUnique + unitsPerCase - 1) / unitsPerCase
	return BatchPlan{
		TotalQuantity:    totalQuantity,
		BufferPercent:    bufferPercent,
		UnitsPerCase:     unitsPerCase,
		TotalUniqueCodes: totalUnique,
		TotalMasterCodes: totalMaster,
	}
}

// newCodeString draws a code identity from crypto/rand. At 80 bits per
// unique code, collision probability stays negligible at any realistic
// code population; the in-batch set check below removes even that.
func newCodeString(prefix string, length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return prefix + string(out)
}

// GenerateResult summarises a generation run.
type GenerateResult struct {
	BatchID          string `json:"batch_id"`
	OrderID          string `json:"order_id"`
	TotalMasterCodes int    `json:"total_master_codes"`
	TotalUniqueCodes int    `json:"total_unique_codes"`
	ArtifactKey      string `json:"artifact_key"`
}

// GenerateRequest carries optional overrides for the configured defaults.
type GenerateRequest struct {
	OrderID       string `json:"order_id" binding:"required"`
	BufferPercent *int   `json:"buffer_percent"`
	UnitsPerCase  *int   `json:"units_per_case"`
}

// Generate creates the batch and its full code hierarchy in one atomic
// persistence step: either every code lands or none do. The spreadsheet
// artifact is a non-blocking follow-up; the batch is durable without it.
func (s *GeneratorService) Generate(ctx context.Context, req *GenerateRequest, actorOrg, actorUser string) (*GenerateResult, error) {
	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	switch order.Status {
	case entity.OrderStatusApproved:
		// generatable
	case entity.OrderStatusBatchGenerated:
		return nil, ErrDuplicateBatch
	default:
		return nil, ErrInvalidOrderState
	}
	if _, err := s.batches.FindByOrderID(ctx, order.ID); err == nil {
		return nil, ErrDuplicateBatch
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	totalQuantity := 0
	for _, item := range order.Items {
		totalQuantity += item.Quantity
	}
	if totalQuantity <= 0 {
		return nil, ErrInvalidOrderState
	}

	bufferPercent := s.cfg.DefaultBufferPercent
	if req.BufferPercent != nil {
		bufferPercent = *req.BufferPercent
	}
	unitsPerCase := s.cfg.DefaultUnitsPerCase
	if req.UnitsPerCase != nil && *req.UnitsPerCase > 0 {
		unitsPerCase = *req.UnitsPerCase
	}

	plan := PlanBatch(totalQuantity, bufferPercent, unitsPerCase)

	now := time.Now()
	batch := &entity.Batch{
		ID:               uuid.New().String()[:32],
		OrderID:          order.ID,
		OrgID:            actorOrg,
		TotalMasterCodes: plan.TotalMasterCodes,
		TotalUniqueCodes: plan.TotalUniqueCodes,
		BufferPercent:    bufferPercent,
		UnitsPerCase:     unitsPerCase,
		Status:           entity.BatchStatusGenerated,
		GeneratedBy:      actorUser,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	masters := make([]entity.MasterCode, 0, plan.TotalMasterCodes)
	seen := make(map[string]struct{}, plan.TotalMasterCodes+plan.TotalUniqueCodes)
	remaining := plan.TotalUniqueCodes
	for i := 0; i < plan.TotalMasterCodes; i++ {
		expected := unitsPerCase
		if remaining < unitsPerCase {
			expected = remaining
		}
		remaining -= expected

		code := newCodeString(entity.MasterCodePrefix, masterCodeLen)
		for {
			if _, dup := seen[code]; !dup {
				break
			}
			code = newCodeString(entity.MasterCodePrefix, masterCodeLen)
		}
		seen[code] = struct{}{}

		masters = append(masters, entity.MasterCode{
			ID:                uuid.New().String()[:32],
			Code:              code,
			BatchID:           batch.ID,
			CaseNumber:        i + 1,
			ExpectedUnitCount: expected,
			Status:            entity.MasterStatusGenerated,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	units := make([]entity.UniqueCode, 0, plan.TotalUniqueCodes)
	for i := 0; i < plan.TotalUniqueCodes; i++ {
		code := newCodeString(entity.UniqueCodePrefix, uniqueCodeLen)
		for {
			if _, dup := seen[code]; !dup {
				break
			}
			code = newCodeString(entity.UniqueCodePrefix, uniqueCodeLen)
		}
		seen[code] = struct{}{}

		units = append(units, entity.UniqueCode{
			ID:        uuid.New().String()[:32],
			Code:      code,
			BatchID:   batch.ID,
			Status:    entity.UniqueStatusGenerated,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.batches.CreateWithCodes(ctx, batch, masters, units); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateBatch
		}
		return nil, fmt.Errorf("persist batch: %w", err)
	}

	if err := s.orders.MarkBatchGenerated(ctx, order.ID); err != nil {
		s.logger.Error("Failed to mark order batch_generated",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	if s.store != nil {
		go s.buildArtifact(batch, masters, units)
	}

	return &GenerateResult{
		BatchID:          batch.ID,
		OrderID:          order.ID,
		TotalMasterCodes: plan.TotalMasterCodes,
		TotalUniqueCodes: plan.TotalUniqueCodes,
		ArtifactKey:      artifact.ObjectKey(batch.ID),
	}, nil
}

// buildArtifact renders and uploads the code workbook after the batch
// commit. Failures are logged, never propagated: the batch is already
// durable and the artifact can be rebuilt.
func (s *GeneratorService) buildArtifact(batch *entity.Batch, masters []entity.MasterCode, units []entity.UniqueCode) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f, err := artifact.BuildBatchWorkbook(batch, masters, units)
	if err != nil {
		s.logger.Error("Failed to build batch workbook", zap.String("batch_id", batch.ID), zap.Error(err))
		return
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		s.logger.Error("Failed to serialize batch workbook", zap.String("batch_id", batch.ID), zap.Error(err))
		return
	}

	key, err := s.store.Put(ctx, artifact.ObjectKey(batch.ID), buf.Bytes(),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err != nil {
		s.logger.Error("Failed to upload batch artifact", zap.String("batch_id", batch.ID), zap.Error(err))
		return
	}

	if err := s.batches.SetArtifact(ctx, batch.ID, key); err != nil {
		s.logger.Error("Failed to record batch artifact", zap.String("batch_id", batch.ID), zap.Error(err))
		return
	}
	s.logger.Info("Batch artifact stored", zap.String("batch_id", batch.ID), zap.String("key", key))
}

// GetBatch returns a batch by ID.
func (s *GeneratorService) GetBatch(ctx context.Context, id string) (*entity.Batch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return batch, nil
}
