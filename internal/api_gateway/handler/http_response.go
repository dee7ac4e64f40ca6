package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/referral-ledger/internal/api_gateway/middleware"
	"github.com/referral-ledger/internal/api_gateway/service"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/member"
	"github.com/referral-ledger/internal/domain/settings"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/referral/distribution"
)

// RetryAfterSeconds is sent with 503 responses caused by lock contention
const RetryAfterSeconds = "1"

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo represents metadata in a response
type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

func NewResponse(data interface{}) *Response {
	return &Response{Data: data}
}

func NewErrorResponse(code, message string) *Response {
	return &Response{Error: &ErrorInfo{Code: code, Message: message}}
}

func NewPaginatedResponse(data interface{}, page, perPage, totalItems int) *Response {
	totalPages := totalItems / perPage
	if totalItems%perPage > 0 {
		totalPages++
	}
	return &Response{
		Data: data,
		Meta: &MetaInfo{
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
			TotalItems: totalItems,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	response := NewErrorResponse(code, message)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	response := NewPaginatedResponse(data, page, perPage, totalItems)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, "NOT_FOUND", message)
}

func RespondConflict(c *gin.Context, code, message string) {
	RespondWithError(c, http.StatusConflict, code, message)
}

func RespondServiceUnavailable(c *gin.Context, message string) {
	c.Header("Retry-After", RetryAfterSeconds)
	RespondWithError(c, http.StatusServiceUnavailable, "STORE_BUSY", message)
}

func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

// RespondDomainError maps service errors to status codes. Unknown errors are
// logged and answered with a 500.
func RespondDomainError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		duplicateUsername member.ErrDuplicateUsername
		invalidValue      settings.ErrInvalidValue
		eventNotFound     ledger.ErrEventNotFound
	)

	switch {
	case errors.Is(err, shared.ErrStoreBusy):
		logger.Warn("Store busy", "path", c.FullPath(), "error", err)
		RespondServiceUnavailable(c, "The store is busy, retry shortly")

	case errors.Is(err, shared.ErrCapacityExceeded):
		RespondConflict(c, "CAPACITY_EXCEEDED", err.Error())
	case errors.Is(err, shared.ErrBranchingLimitExceeded{}):
		RespondConflict(c, "BRANCHING_LIMIT_EXCEEDED", err.Error())
	case errors.Is(err, shared.ErrDepthLimitExceeded{}):
		RespondConflict(c, "DEPTH_LIMIT_EXCEEDED", err.Error())
	case errors.As(err, &duplicateUsername):
		RespondConflict(c, "DUPLICATE_USERNAME", err.Error())
	case errors.Is(err, ledger.ErrDuplicateEntry{}):
		RespondConflict(c, "DUPLICATE_ENTRY", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition{}):
		RespondConflict(c, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, shared.ErrAlreadyProcessed):
		RespondConflict(c, "ALREADY_PROCESSED", err.Error())

	case errors.Is(err, shared.ErrInvalidReferralCode{}):
		RespondWithError(c, http.StatusNotFound, "INVALID_REFERRAL_CODE", err.Error())
	case errors.Is(err, member.ErrMemberNotFound{}):
		RespondNotFound(c, "Member not found")
	case errors.Is(err, ledger.ErrEntryNotFound{}):
		RespondNotFound(c, "Ledger entry not found")
	case errors.As(err, &eventNotFound):
		RespondNotFound(c, "Distribution event not found")

	case errors.Is(err, shared.ErrInsufficientFunds):
		RespondWithError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err.Error())

	case errors.Is(err, shared.ErrInvalidAmount),
		errors.Is(err, shared.ErrInvalidKind),
		errors.Is(err, shared.ErrInvalidStatus),
		errors.Is(err, shared.ErrMissingSessionID),
		errors.Is(err, shared.ErrMissingMemberID),
		errors.Is(err, member.ErrEmptyUsername),
		errors.Is(err, member.ErrInvalidUsername),
		errors.Is(err, settings.ErrUnknownKey),
		errors.Is(err, distribution.ErrMissingSourceRef),
		errors.As(err, &invalidValue):
		RespondBadRequest(c, err.Error())

	case errors.Is(err, service.ErrAuditUnavailable):
		RespondWithError(c, http.StatusServiceUnavailable, "AUDIT_UNAVAILABLE", err.Error())

	default:
		logger.Error("Request failed", "path", c.FullPath(), "error", err)
		RespondInternalError(c)
	}
}
