package handler

import (
	"net/http"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	linker *service.LinkerService
	logger *zap.Logger
}

func NewLinkHandler(linker *service.LinkerService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{linker: linker, logger: logger}
}

// Link binds scanned unit codes to a case, sealing it when full.
// POST /api/v1/links
func (h *LinkHandler) Link(c *gin.Context) {
	var req service.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	result, err := h.linker.Link(c.Request.Context(), &req, GetOrgID(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, result)
}
