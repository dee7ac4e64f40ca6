package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/referral-ledger/internal/api_gateway/middleware"
	"github.com/referral-ledger/internal/api_gateway/service"
	"github.com/referral-ledger/internal/domain/ledger"
	"github.com/referral-ledger/internal/domain/shared"
	"github.com/referral-ledger/internal/referral/approval"
)

// TransactionHandler handles member deposit and withdrawal requests
type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

// Create records a pending request for the member in the path
func (h *TransactionHandler) Create(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.transactionService.CreateRequest(c.Request.Context(), approval.Request{
		MemberID: c.Param("id"),
		Kind:     shared.LedgerKind(req.Kind),
		Amount:   req.Amount,
		Method:   req.Method,
		Note:     req.Note,
	})
	if err != nil {
		RespondDomainError(c, logger, err)
		return
	}

	RespondCreated(c, entry)
}

func (h *TransactionHandler) GetByID(c *gin.Context) {
	entry, err := h.transactionService.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, entry)
}

// ListByMember pages through one member's ledger, newest first
func (h *TransactionHandler) ListByMember(c *gin.Context) {
	var params TransactionFilterParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	params.MemberID = c.Param("id")
	listTransactions(c, middleware.RequestLogger(c, h.logger), h.transactionService, params)
}

// List pages through the whole ledger with optional filters
func (h *TransactionHandler) List(c *gin.Context) {
	var params TransactionFilterParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	listTransactions(c, middleware.RequestLogger(c, h.logger), h.transactionService, params)
}

func listTransactions(c *gin.Context, logger *slog.Logger, svc service.TransactionService, params TransactionFilterParams) {
	page, err := svc.ListTransactions(c.Request.Context(), ledger.Filter{
		MemberID: params.MemberID,
		Status:   shared.LedgerStatus(params.Status),
		Kind:     shared.LedgerKind(params.Kind),
		Limit:    params.PerPage,
		Offset:   params.Offset(),
	})
	if err != nil {
		RespondDomainError(c, logger, err)
		return
	}
	RespondWithPaginatedData(c, 200, page.Entries, params.Page, params.PerPage, int(page.Total))
}
