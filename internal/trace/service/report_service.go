package service

import (
	"context"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportService builds and stores validation reports. Reports are
// append-only; a correction is a new report.
type ReportService struct {
	reports *repository.ReportRepository
	logger  *zap.Logger
}

func NewReportService(repos *repository.Repositories, logger *zap.Logger) *ReportService {
	return &ReportService{reports: repos.Report, logger: logger}
}

// BuildReport derives the match verdict from the two quantities. A
// negative discrepancy means fewer units were scanned than expected.
func BuildReport(reportType string, expected, scanned int) *entity.ValidationReport {
	return &entity.ValidationReport{
		ID:               uuid.New().String()[:32],
		Type:             reportType,
		ExpectedQuantity: expected,
		ScannedQuantity:  scanned,
		IsMatched:        expected == scanned,
		Discrepancy:      scanned - expected,
	}
}

func (s *ReportService) Create(ctx context.Context, report *entity.ValidationReport) error {
	if err := s.reports.Create(ctx, report); err != nil {
		return err
	}
	if !report.IsMatched {
		s.logger.Warn("Quantity mismatch recorded",
			zap.String("report_id", report.ID),
			zap.String("type", report.Type),
			zap.Int("expected", report.ExpectedQuantity),
			zap.Int("scanned", report.ScannedQuantity))
	}
	return nil
}

func (s *ReportService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ValidationReport, int64, error) {
	return s.reports.FindAll(ctx, page, pageSize, filters)
}
