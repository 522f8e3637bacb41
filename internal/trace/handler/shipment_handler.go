package handler

import (
	"net/http"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ShipmentHandler struct {
	shipment *service.ShipmentService
	logger   *zap.Logger
}

func NewShipmentHandler(shipment *service.ShipmentService, logger *zap.Logger) *ShipmentHandler {
	return &ShipmentHandler{shipment: shipment, logger: logger}
}

// Open starts a scanning session toward a destination organization.
// POST /api/v1/sessions
func (h *ShipmentHandler) Open(c *gin.Context) {
	var req service.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	session, err := h.shipment.Open(c.Request.Context(), &req, GetOrgID(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Created(c, session)
}

// Get returns a session with its accumulated scans.
// GET /api/v1/sessions/:id
func (h *ShipmentHandler) Get(c *gin.Context) {
	session, err := h.shipment.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, session)
}

type sessionScanRequest struct {
	Code string `json:"code" binding:"required"`
}

// Scan claims a master or loose unit code for the session.
// POST /api/v1/sessions/:id/scans
func (h *ShipmentHandler) Scan(c *gin.Context) {
	var req sessionScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	result, err := h.shipment.Scan(c.Request.Context(), c.Param("id"), req.Code, GetOrgID(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, result)
}

// Close ends the session, ships its contents, and emits the report.
// POST /api/v1/sessions/:id/close
func (h *ShipmentHandler) Close(c *gin.Context) {
	var req service.CloseSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	result, err := h.shipment.Close(c.Request.Context(), c.Param("id"), &req, GetOrgID(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, result)
}

// Validate acknowledges a closed session at the destination.
// POST /api/v1/sessions/:id/validate
func (h *ShipmentHandler) Validate(c *gin.Context) {
	validated, err := h.shipment.Validate(c.Request.Context(), c.Param("id"), GetOrgID(c), GetUserID(c))
	if err != nil {
		HandleServiceError(c, h.logger, err)
		return
	}
	Success(c, gin.H{"validated_count": validated})
}
