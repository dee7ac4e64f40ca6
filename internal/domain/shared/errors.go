package shared

import (
	"errors"
	"fmt"
)

// Policy and store errors shared by the placement, distribution and approval flows.
var (
	ErrCapacityExceeded  = errors.New("member capacity exceeded")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidKind       = errors.New("invalid ledger entry kind")
	ErrInvalidStatus     = errors.New("invalid ledger entry status")
	ErrAlreadyProcessed  = errors.New("already processed")

	// ErrStoreBusy marks transient store failures (lock timeout, serialization
	// failure, deadlock). The operation was rolled back and may be retried.
	ErrStoreBusy = errors.New("store busy")
)

// ErrInvalidReferralCode indicates the referral code names no existing member
type ErrInvalidReferralCode struct {
	Code string
}

func (e ErrInvalidReferralCode) Error() string {
	return "invalid referral code: " + e.Code
}

// Is matches any ErrInvalidReferralCode when the target code is empty
func (e ErrInvalidReferralCode) Is(target error) bool {
	t, ok := target.(ErrInvalidReferralCode)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// ErrBranchingLimitExceeded indicates the parent already has the maximum number of children
type ErrBranchingLimitExceeded struct {
	ParentID string
	Limit    int
}

func (e ErrBranchingLimitExceeded) Error() string {
	return fmt.Sprintf("branching limit %d reached for member %s", e.Limit, e.ParentID)
}

// Is matches any ErrBranchingLimitExceeded when the target parent is empty
func (e ErrBranchingLimitExceeded) Is(target error) bool {
	t, ok := target.(ErrBranchingLimitExceeded)
	if !ok {
		return false
	}
	return t.ParentID == "" || t.ParentID == e.ParentID
}

// ErrDepthLimitExceeded indicates a child of the parent would sit below max_levels
type ErrDepthLimitExceeded struct {
	ParentID  string
	MaxLevels int
}

func (e ErrDepthLimitExceeded) Error() string {
	return fmt.Sprintf("depth limit %d reached below member %s", e.MaxLevels, e.ParentID)
}

// Is matches any ErrDepthLimitExceeded when the target parent is empty
func (e ErrDepthLimitExceeded) Is(target error) bool {
	t, ok := target.(ErrDepthLimitExceeded)
	if !ok {
		return false
	}
	return t.ParentID == "" || t.ParentID == e.ParentID
}

// ErrInvalidTransition indicates a ledger entry status change that is not allowed
type ErrInvalidTransition struct {
	EntryID string
	From    LedgerStatus
	To      LedgerStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("ledger entry %s cannot move from %s to %s", e.EntryID, e.From, e.To)
}

// Is matches any ErrInvalidTransition when the target entry is empty
func (e ErrInvalidTransition) Is(target error) bool {
	t, ok := target.(ErrInvalidTransition)
	if !ok {
		return false
	}
	return t.EntryID == "" || t.EntryID == e.EntryID
}
