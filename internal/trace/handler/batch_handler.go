package handler

import (
	"net/http"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BatchHandler struct {
	generator *service.GeneratorService
	logger    *zap.Logger
}

func NewBatchHandler(generator *service.GeneratorService, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{generator: generator, logger: logger}
}

// Generate creates the full code hierarchy for an approved order.
// POST /api/v1/batches
func (h *BatchHandler) Generate(c *gin.Context) {
	var req service.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), &req, GetOrgID(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Created(c, result)
}

// Get returns a batch with its generation and lifecycle counters.
// GET /api/v1/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.generator.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, batch)
}
