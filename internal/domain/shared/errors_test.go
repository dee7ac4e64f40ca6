package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTypedErrors_Is(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		target  error
		matches bool
	}{
		{"ReferralCodeWildcard", ErrInvalidReferralCode{Code: "alice"}, ErrInvalidReferralCode{}, true},
		{"ReferralCodeSame", ErrInvalidReferralCode{Code: "alice"}, ErrInvalidReferralCode{Code: "alice"}, true},
		{"ReferralCodeOther", ErrInvalidReferralCode{Code: "alice"}, ErrInvalidReferralCode{Code: "bob"}, false},
		{"BranchingWildcard", ErrBranchingLimitExceeded{ParentID: "p1", Limit: 3}, ErrBranchingLimitExceeded{}, true},
		{"BranchingOther", ErrBranchingLimitExceeded{ParentID: "p1"}, ErrBranchingLimitExceeded{ParentID: "p2"}, false},
		{"DepthWildcard", ErrDepthLimitExceeded{ParentID: "p1", MaxLevels: 2}, ErrDepthLimitExceeded{}, true},
		{"TransitionWildcard", ErrInvalidTransition{EntryID: "e1"}, ErrInvalidTransition{}, true},
		{"TransitionOther", ErrInvalidTransition{EntryID: "e1"}, ErrInvalidTransition{EntryID: "e2"}, false},
		{"DifferentTypes", ErrDepthLimitExceeded{ParentID: "p1"}, ErrBranchingLimitExceeded{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("placement failed: %w", tc.err)
			assert.Equal(t, tc.matches, errors.Is(wrapped, tc.target))
		})
	}
}

func TestTypedErrors_Messages(t *testing.T) {
	assert.Equal(t, "invalid referral code: ghost", ErrInvalidReferralCode{Code: "ghost"}.Error())
	assert.Equal(t, "branching limit 3 reached for member m1", ErrBranchingLimitExceeded{ParentID: "m1", Limit: 3}.Error())
	assert.Equal(t, "depth limit 10 reached below member m1", ErrDepthLimitExceeded{ParentID: "m1", MaxLevels: 10}.Error())
	assert.Equal(t, "ledger entry e1 cannot move from REJECTED to APPROVED",
		ErrInvalidTransition{EntryID: "e1", From: LedgerStatusRejected, To: LedgerStatusApproved}.Error())
}

func TestLedgerKind(t *testing.T) {
	assert.True(t, LedgerKindDeposit.IsRequest())
	assert.True(t, LedgerKindWithdrawal.IsRequest())
	assert.False(t, LedgerKindCommission.IsRequest())
	assert.True(t, LedgerKindCommission.IsDistribution())
	assert.True(t, LedgerKindPayout.IsDistribution())
	assert.False(t, LedgerKindEntryFee.IsDistribution())
	assert.True(t, LedgerKindAdjustment.Valid())
	assert.False(t, LedgerKind("BONUS").Valid())
	assert.False(t, LedgerStatus("DONE").Valid())
}

func TestPaymentConfirmation_Validate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		p := &PaymentConfirmation{SessionID: "cs_1", MemberID: "m1", Amount: decimal.NewFromInt(100), Paid: true}
		assert.NoError(t, p.Validate())
	})

	t.Run("ZeroAmountAllowed", func(t *testing.T) {
		p := &PaymentConfirmation{SessionID: "cs_1", MemberID: "m1"}
		assert.NoError(t, p.Validate())
	})

	t.Run("MissingSession", func(t *testing.T) {
		p := &PaymentConfirmation{MemberID: "m1"}
		assert.ErrorIs(t, p.Validate(), ErrMissingSessionID)
	})

	t.Run("MissingMember", func(t *testing.T) {
		p := &PaymentConfirmation{SessionID: "cs_1"}
		assert.ErrorIs(t, p.Validate(), ErrMissingMemberID)
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		p := &PaymentConfirmation{SessionID: "cs_1", MemberID: "m1", Amount: decimal.NewFromInt(-1)}
		assert.ErrorIs(t, p.Validate(), ErrInvalidAmount)
	})
}
