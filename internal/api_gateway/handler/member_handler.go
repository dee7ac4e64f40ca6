package handler

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/referral-ledger/internal/api_gateway/middleware"
	"github.com/referral-ledger/internal/api_gateway/service"
	"github.com/referral-ledger/internal/referral/placement"
)

// MemberHandler handles joins and referral-forest reads
type MemberHandler struct {
	memberService service.MemberService
	logger        *slog.Logger
}

func NewMemberHandler(logger *slog.Logger, memberService service.MemberService) *MemberHandler {
	return &MemberHandler{
		memberService: memberService,
		logger:        logger,
	}
}

// Join places a new member under the referrer, or auto-places without one
func (h *MemberHandler) Join(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	placed, err := h.memberService.Join(c.Request.Context(), placement.Request{
		Username:     req.Username,
		Email:        req.Email,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		logger.Info("Join rejected", "username", req.Username, "referral_code", req.ReferralCode, "error", err)
		RespondDomainError(c, logger, err)
		return
	}

	RespondCreated(c, placed)
}

func (h *MemberHandler) GetByID(c *gin.Context) {
	m, err := h.memberService.GetMember(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, m)
}

// Referrals lists direct children, newest first
func (h *MemberHandler) Referrals(c *gin.Context) {
	children, err := h.memberService.DirectReferrals(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, children)
}

func (h *MemberHandler) Chain(c *gin.Context) {
	levels, ok := intQuery(c, "levels")
	if !ok {
		return
	}

	id := c.Param("id")
	ancestors, err := h.memberService.ParentChain(c.Request.Context(), id, levels)
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, ChainResponse{MemberID: id, Ancestors: ancestors})
}

func (h *MemberHandler) Tree(c *gin.Context) {
	depth, ok := intQuery(c, "depth")
	if !ok {
		return
	}

	tree, err := h.memberService.ReferralTree(c.Request.Context(), c.Param("id"), depth)
	if err != nil {
		RespondDomainError(c, middleware.RequestLogger(c, h.logger), err)
		return
	}
	RespondOK(c, tree)
}

// intQuery reads an optional integer query parameter; zero when absent.
// It writes the 400 itself and reports false on a malformed value.
func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		RespondBadRequest(c, "Invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}
