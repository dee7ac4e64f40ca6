package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/referral-ledger/internal/api_gateway/middleware"
	"github.com/referral-ledger/internal/api_gateway/service"
	"github.com/referral-ledger/internal/referral/distribution"
)

// AdminHandler serves the operator API: reviews, adjustments, manual
// distributions, settings and audit reads
type AdminHandler struct {
	adminService service.AdminService
	logger       *slog.Logger
}

func NewAdminHandler(logger *slog.Logger, adminService service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		logger:       logger,
	}
}

func (h *AdminHandler) Approve(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)

	outcome, err := h.adminService.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, logger, err)
		return
	}

	logger.Info("Ledger entry approved", "entry_id", outcome.Entry.ID, "no_op", outcome.NoOp)
	RespondOK(c, outcome)
}

func (h *AdminHandler) Reject(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)

	outcome, err := h.adminService.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, logger, err)
		return
	}

	logger.Info("Ledger entry rejected", "entry_id", outcome.Entry.ID, "no_op", outcome.NoOp)
	RespondOK(c, outcome)
}

// Adjust writes a signed balance correction for the member
func (h *AdminHandler) Adjust(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)

	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.adminService.Adjust(c.Request.Context(), c.Param("id"), req.Amount, req.Note)
	if err != nil {
		RespondDomainError(c, logger, err)
		return
	}

	RespondCreated(c, entry)
}

// Distribute runs a distribution for an inflow recorded outside the ledger.
// Replays of a known source return 200 with the original credits.
func (h *AdminHandler) Distribute(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)

	var req DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.adminService.Distribute(c.Request.Context(), distribution.Request{
		MemberID:      req.MemberID,
		Amount:        req.Amount,
		SourceRef:     req.SourceRef,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, logger, err)
		return
	}

	if result.Replayed {
		RespondOK(c, result)
		return
	}
	RespondCreated(c, result)
}

func (h *AdminHandler) Summary(c *gin.Context) {
	summary, err := h.adminService.Summary(c.Request.Context())
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, summary)
}

func (h *AdminHandler) Settings(c *gin.Context) {
	snap, err := h.adminService.Settings(c.Request.Context())
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, snap)
}

func (h *AdminHandler) Setting(c *gin.Context) {
	key := c.Param("key")
	value, err := h.adminService.Setting(c.Request.Context(), key)
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, SettingResponse{Key: key, Value: value})
}

// UpdateSetting replaces one key; the new value applies to operations that
// start afterwards
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)
	key := c.Param("key")

	var req UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.adminService.UpdateSetting(c.Request.Context(), key, req.Value); err != nil {
		RespondDomainError(c, logger, err)
		return
	}

	logger.Info("Setting updated", "key", key)
	RespondOK(c, SettingResponse{Key: key, Value: req.Value})
}

func (h *AdminHandler) DistributionEvent(c *gin.Context) {
	event, err := h.adminService.DistributionEvent(c.Request.Context(), c.Param("source_ref"))
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, event)
}

// MemberEvents lists projected distributions that credited the member
func (h *AdminHandler) MemberEvents(c *gin.Context) {
	var params PaginationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	events, total, err := h.adminService.BeneficiaryEvents(c.Request.Context(), c.Param("id"), params.PerPage, params.Offset())
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondWithPaginatedData(c, 200, events, params.Page, params.PerPage, int(total))
}
