package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/referral-ledger/internal/api_gateway/middleware"
	"github.com/referral-ledger/internal/api_gateway/service"
	"github.com/referral-ledger/internal/domain/shared"
)

// PaymentHandler receives payment oracle confirmations and queues them
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *slog.Logger
}

func NewPaymentHandler(logger *slog.Logger, paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

func (h *PaymentHandler) Confirm(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)

	var req PaymentConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	confirmation := &shared.PaymentConfirmation{
		SessionID:     req.SessionID,
		MemberID:      req.MemberID,
		Amount:        req.Amount,
		Paid:          req.Paid,
		CorrelationID: middleware.GetCorrelationID(c),
	}
	if err := h.paymentService.SubmitConfirmation(c.Request.Context(), confirmation); err != nil {
		RespondDomainError(c, logger, err)
		return
	}

	logger.Info("Payment confirmation queued", "session_id", req.SessionID, "member_id", req.MemberID)
	RespondAccepted(c, PaymentAcceptedResponse{SessionID: req.SessionID, Status: "QUEUED"})
}
