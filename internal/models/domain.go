package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TipStatus enumerates the lifecycle of a pending transfer. The initial
// state is always TipPending; the other three are terminal.
type TipStatus string

const (
	TipPending   TipStatus = "pending"
	TipConfirmed TipStatus = "confirmed"
	TipCancelled TipStatus = "cancelled"
	TipExpired   TipStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s TipStatus) Terminal() bool {
	return s != TipPending
}

// PendingTransfer is an in-flight tip awaiting confirmation or cancellation
// by its originator.
type PendingTransfer struct {
	Id        string          `db:"id"`
	FromUser  string          `db:"from_user"`
	ToUser    string          `db:"to_user"`
	Asset     string          `db:"asset"`
	Amount    decimal.Decimal `db:"amount"`
	Status    TipStatus       `db:"status"`
	Reason    string          `db:"reason"`
	CreatedAt time.Time       `db:"created_at"`
}

// TransferRecord is the immutable ledger entry written when a tip confirms.
type TransferRecord struct {
	Id        string          `db:"id"`
	FromUser  string          `db:"from_user"`
	ToUser    string          `db:"to_user"`
	Asset     string          `db:"asset"`
	Amount    decimal.Decimal `db:"amount"`
	AppliedAt time.Time       `db:"applied_at"`
}

// TransferTotals aggregates a user's applied tips for one asset.
type TransferTotals struct {
	Asset         string          `json:"asset"`
	Sent          decimal.Decimal `json:"sent"`
	SentCount     int             `json:"sent_count"`
	Received      decimal.Decimal `json:"received"`
	ReceivedCount int             `json:"received_count"`
}

// WithdrawalStatus enumerates the settlement lifecycle of a withdrawal.
type WithdrawalStatus string

const (
	WithdrawalValidated WithdrawalStatus = "validated"
	WithdrawalSubmitted WithdrawalStatus = "submitted"
	WithdrawalConfirmed WithdrawalStatus = "confirmed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// WithdrawalRecord tracks a ledger-to-chain settlement. The ledger debit
// happens only at the confirmed transition; a failed withdrawal performs no
// ledger mutation.
type WithdrawalRecord struct {
	Id              string           `db:"id"`
	UserId          string           `db:"user_id"`
	Asset           string           `db:"asset"`
	Amount          decimal.Decimal  `db:"amount"`
	Destination     string           `db:"destination"`
	Status          WithdrawalStatus `db:"status"`
	ChainSignature  string           `db:"chain_signature"`
	FailureReason   string           `db:"failure_reason"`
	ConfirmAttempts int              `db:"confirm_attempts"`
	NeedsReview     bool             `db:"needs_review"`
	CreatedAt       time.Time        `db:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at"`
}

// WalletLink maps a user to an external wallet address on one chain. A user
// holds at most one link per chain; relinking replaces the mapping.
type WalletLink struct {
	UserId   string    `db:"user_id"`
	Chain    string    `db:"chain"`
	Address  string    `db:"address"`
	Asset    string    `db:"asset"`
	LinkedAt time.Time `db:"linked_at"`
}

// DepositObservation is the reconciliation baseline for a linked address.
// Deltas against LastKnownBalance decide what gets credited; updating the
// baseline and crediting the ledger happen in the same transaction.
type DepositObservation struct {
	Address          string          `db:"address"`
	Asset            string          `db:"asset"`
	LastKnownBalance decimal.Decimal `db:"last_known_balance"`
	LastCheckedAt    time.Time       `db:"last_checked_at"`
}

// AccountBalance is the hot-path balance row for one (user, asset) pair.
type AccountBalance struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	Asset             string          `db:"asset"`
	Balance           decimal.Decimal `db:"balance"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Transaction is an immutable audit-trail entry for a single balance
// mutation. Amount is signed: credits positive, debits negative.
type Transaction struct {
	Id            string          `db:"id"`
	UserId        string          `db:"user_id"`
	Asset         string          `db:"asset"`
	Type          string          `db:"transaction_type"`
	Amount        decimal.Decimal `db:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	ExternalTxId  string          `db:"external_transaction_id"`
	Address       string          `db:"address"`
	Reference     string          `db:"reference"`
	Status        string          `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   time.Time       `db:"processed_at"`
}
