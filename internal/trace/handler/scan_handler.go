package handler

import (
	"net/http"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ScanHandler struct {
	ledger *service.LedgerService
	logger *zap.Logger
}

func NewScanHandler(ledger *service.LedgerService, logger *zap.Logger) *ScanHandler {
	return &ScanHandler{ledger: ledger, logger: logger}
}

type scanUniqueRequest struct {
	Code string `json:"code" binding:"required"`
}

// ScanUnique records a manufacturer line scan of one unit code.
// POST /api/v1/scans/manufacturer
func (h *ScanHandler) ScanUnique(c *gin.Context) {
	var req scanUniqueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	result, err := h.ledger.ScanUnique(c.Request.Context(), req.Code, GetOrgID(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, result)
}

// Lookup resolves a code of either tier to its current state.
// GET /api/v1/codes/:code
func (h *ScanHandler) Lookup(c *gin.Context) {
	detail, err := h.ledger.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, detail)
}

// History lists the scan events of a code, oldest first.
// GET /api/v1/codes/:code/history
func (h *ScanHandler) History(c *gin.Context) {
	page, pageSize := GetPagination(c)
	events, total, err := h.ledger.History(c.Request.Context(), c.Param("code"), page, pageSize)
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, gin.H{
		"items":     events,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
