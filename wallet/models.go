package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind labels a ledger entry. Release and refund credits are unique per order.
type EntryKind string

const (
	EntryRelease    EntryKind = "release"
	EntryRefund     EntryKind = "refund"
	EntryWithdrawal EntryKind = "withdrawal"
)

// Wallet is a user's spendable balance. Users without a wallet row hold zero.
type Wallet struct {
	UserID    string
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// Withdrawal records a payout request. Executing the payout is handled elsewhere.
type Withdrawal struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal
	Status    WithdrawalStatus
	CreatedAt time.Time
}
