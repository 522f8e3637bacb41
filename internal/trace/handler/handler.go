package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/repository"
	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the uniform envelope for every endpoint. Code is a
// five-digit application code, not the HTTP status.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	CodeOK = 20000

	CodeBadRequest   = 40000
	CodeUnauthorized = 40100

	CodeCodeNotFound    = 40401
	CodeOrderNotFound   = 40402
	CodeSessionNotFound = 40403
	CodeBatchNotFound   = 40404

	CodeTransitionConflict = 40900
	CodeDuplicateBatch     = 40901
	CodeAlreadyClaimed     = 40902
	CodeSessionClosed      = 40903
	CodeSessionExpired     = 40904
	CodeNotSealed          = 40905
	CodeAlreadySealed      = 40906
	CodeAlreadyShipped     = 40907
	CodeSessionNotClosed   = 40908
	CodeInvalidOrderState  = 40909

	CodeLinkValidation   = 42201
	CodeCaseCapacity     = 42202
	CodeQuantityMismatch = 42203

	CodeInternalError = 50000
)

// Handlers bundles the HTTP handlers for router wiring.
type Handlers struct {
	Batch    *BatchHandler
	Scan     *ScanHandler
	Link     *LinkHandler
	Receive  *ReceiveHandler
	Shipment *ShipmentHandler
	Report   *ReportHandler
}

func NewHandlers(services *service.Services, logger *zap.Logger) *Handlers {
	return &Handlers{
		Batch:    NewBatchHandler(services.Generator, logger),
		Scan:     NewScanHandler(services.Ledger, logger),
		Link:     NewLinkHandler(services.Linker, logger),
		Receive:  NewReceiveHandler(services.Receiving, logger),
		Shipment: NewShipmentHandler(services.Shipment, logger),
		Report:   NewReportHandler(services.Report, logger),
	}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: CodeOK, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: CodeOK, Message: "created", Data: data})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, Response{Code: code, Message: message})
}

func ErrorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, Response{Code: code, Message: message, Data: data})
}

// HandleServiceError translates service errors into the response
// envelope. Typed errors carry their detail in the data field so a
// scanner client can act on the conflict without parsing the message.
func HandleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		transitionErr *service.TransitionError
		linkErr       *service.LinkValidationError
		capacityErr   *service.CaseCapacityError
		mismatchErr   *service.QuantityMismatchError
	)

	switch {
	case errors.Is(err, service.ErrCodeNotFound):
		Error(c, http.StatusNotFound, CodeCodeNotFound, err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		Error(c, http.StatusNotFound, CodeOrderNotFound, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		Error(c, http.StatusNotFound, CodeSessionNotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateBatch):
		Error(c, http.StatusConflict, CodeDuplicateBatch, err.Error())
	case errors.Is(err, service.ErrInvalidOrderState):
		Error(c, http.StatusConflict, CodeInvalidOrderState, err.Error())
	case errors.Is(err, service.ErrSessionClosed):
		Error(c, http.StatusConflict, CodeSessionClosed, err.Error())
	case errors.Is(err, service.ErrSessionExpired):
		Error(c, http.StatusConflict, CodeSessionExpired, err.Error())
	case errors.Is(err, service.ErrSessionNotClosed):
		Error(c, http.StatusConflict, CodeSessionNotClosed, err.Error())
	case errors.Is(err, service.ErrNotSealed):
		Error(c, http.StatusConflict, CodeNotSealed, err.Error())
	case errors.Is(err, service.ErrMasterSealed):
		Error(c, http.StatusConflict, CodeAlreadySealed, err.Error())
	case errors.Is(err, service.ErrAlreadyShipped):
		Error(c, http.StatusConflict, CodeAlreadyShipped, err.Error())
	case errors.Is(err, service.ErrAlreadyClaimed):
		Error(c, http.StatusConflict, CodeAlreadyClaimed, err.Error())
	case errors.As(err, &transitionErr):
		ErrorWithData(c, http.StatusConflict, CodeTransitionConflict, transitionErr.Error(), gin.H{
			"code":           transitionErr.Code,
			"code_type":      transitionErr.CodeType,
			"current_status": transitionErr.Current,
			"attempted":      transitionErr.Attempted,
		})
	case errors.As(err, &linkErr):
		ErrorWithData(c, http.StatusUnprocessableEntity, CodeLinkValidation, linkErr.Error(), gin.H{
			"failures": linkErr.Failures,
		})
	case errors.As(err, &capacityErr):
		ErrorWithData(c, http.StatusUnprocessableEntity, CodeCaseCapacity, capacityErr.Error(), gin.H{
			"expected_unit_count": capacityErr.Expected,
			"linked_count":        capacityErr.Linked,
			"attempted":           capacityErr.Attempted,
		})
	case errors.As(err, &mismatchErr):
		ErrorWithData(c, http.StatusUnprocessableEntity, CodeQuantityMismatch, mismatchErr.Error(), gin.H{
			"expected_quantity": mismatchErr.Expected,
			"scanned_quantity":  mismatchErr.Scanned,
		})
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, CodeBatchNotFound, "not found")
	default:
		logger.Error("Unhandled service error", zap.Error(err))
		Error(c, http.StatusInternalServerError, CodeInternalError, "internal server error")
	}
}

// GetUserID reads the authenticated user from the context set by the JWT
// middleware.
func GetUserID(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func GetOrgID(c *gin.Context) string {
	if v, ok := c.Get("org_id"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetPagination reads page/page_size query parameters with sane bounds.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return page, pageSize
}
