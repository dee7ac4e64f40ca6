package shared

// LedgerKind defines the monetary movement recorded by a ledger entry
type LedgerKind string

const (
	LedgerKindDeposit    LedgerKind = "DEPOSIT"
	LedgerKindWithdrawal LedgerKind = "WITHDRAWAL"
	LedgerKindCommission LedgerKind = "COMMISSION"
	LedgerKindPayout     LedgerKind = "PAYOUT"
	LedgerKindAdjustment LedgerKind = "ADJUSTMENT"
	LedgerKindEntryFee   LedgerKind = "ENTRY_FEE"
)

// Valid reports whether k is a known kind
func (k LedgerKind) Valid() bool {
	switch k {
	case LedgerKindDeposit, LedgerKindWithdrawal, LedgerKindCommission,
		LedgerKindPayout, LedgerKindAdjustment, LedgerKindEntryFee:
		return true
	}
	return false
}

// IsRequest reports whether entries of this kind are created pending and need review
func (k LedgerKind) IsRequest() bool {
	return k == LedgerKindDeposit || k == LedgerKindWithdrawal
}

// IsDistribution reports whether entries of this kind are written by the distribution engine
func (k LedgerKind) IsDistribution() bool {
	return k == LedgerKindCommission || k == LedgerKindPayout
}

// LedgerStatus defines ledger entry review states
type LedgerStatus string

const (
	LedgerStatusPending  LedgerStatus = "PENDING"
	LedgerStatusApproved LedgerStatus = "APPROVED"
	LedgerStatusRejected LedgerStatus = "REJECTED"
)

// Valid reports whether s is a known status
func (s LedgerStatus) Valid() bool {
	return s == LedgerStatusPending || s == LedgerStatusApproved || s == LedgerStatusRejected
}

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
