package handler

import (
	"net/http"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReceiveHandler struct {
	receiving *service.ReceivingService
	logger    *zap.Logger
}

func NewReceiveHandler(receiving *service.ReceivingService, logger *zap.Logger) *ReceiveHandler {
	return &ReceiveHandler{receiving: receiving, logger: logger}
}

type receiveRequest struct {
	MasterCode string `json:"master_code" binding:"required"`
}

// Receive checks a sealed case into the warehouse by its master code.
// POST /api/v1/receiving/scans
func (h *ReceiveHandler) Receive(c *gin.Context) {
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	result, err := h.receiving.Receive(c.Request.Context(), req.MasterCode, GetOrgID(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, result)
}
