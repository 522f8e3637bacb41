package handler

import (
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReportHandler struct {
	reports *service.ReportService
	logger  *zap.Logger
}

func NewReportHandler(reports *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

// List returns validation reports, newest first, filterable by type,
// session, batch, and match verdict.
// GET /api/v1/reports
func (h *ReportHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)

	filters := make(map[string]string)
	for _, key := range []string{"type", "session_id", "batch_id", "is_matched"} {
		if v := c.Query(key); v != "" {
			filters[key] = v
		}
	}

	items, total, err := h.reports.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
