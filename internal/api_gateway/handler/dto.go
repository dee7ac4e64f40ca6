package handler

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// JoinRequest asks to place a new member. Without a referral code the member
// is auto-placed.
type JoinRequest struct {
	Username     string `json:"username" binding:"required,max=64"`
	Email        string `json:"email,omitempty" binding:"omitempty,email"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// CreateTransactionRequest is a member's deposit or withdrawal request
type CreateTransactionRequest struct {
	Kind   string          `json:"kind" binding:"required,oneof=DEPOSIT WITHDRAWAL"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method,omitempty" binding:"max=32"`
	Note   string          `json:"note,omitempty" binding:"max=500"`
}

// AdjustBalanceRequest carries a signed administrative adjustment
type AdjustBalanceRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" binding:"required,max=500"`
}

// DistributeRequest triggers a distribution by hand
type DistributeRequest struct {
	MemberID  string          `json:"member_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	SourceRef string          `json:"source_ref" binding:"required,max=128"`
}

// UpdateSettingRequest holds the JSON-encoded value for one setting key
type UpdateSettingRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// PaymentConfirmationRequest is the payment oracle webhook body
type PaymentConfirmationRequest struct {
	SessionID string          `json:"session_id" binding:"required"`
	MemberID  string          `json:"member_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Paid      bool            `json:"paid"`
}

// SettingResponse is one setting key and its effective value
type SettingResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ChainResponse lists ancestors, direct parent first
type ChainResponse struct {
	MemberID  string   `json:"member_id"`
	Ancestors []string `json:"ancestors"`
}

// PaymentAcceptedResponse acknowledges a queued confirmation
type PaymentAcceptedResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TransactionFilterParams narrows transaction listings
type TransactionFilterParams struct {
	PaginationParams
	Status   string `form:"status"`
	Kind     string `form:"kind"`
	MemberID string `form:"member_id"`
}
