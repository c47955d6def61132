package store

import (
	"context"
	"errors"

	"justthetip/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all engine components. Callers match with
// errors.Is; the api package maps them onto stable result codes.
var (
	// Validation failures. Returned synchronously, never after a partial
	// mutation.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAddress      = errors.New("invalid wallet address")
	ErrBelowMinimum        = errors.New("amount below minimum threshold")
	ErrAssetNotSupported   = errors.New("asset not supported")
	ErrWalletNotLinked     = errors.New("no wallet linked")
	ErrUnauthorized        = errors.New("actor is not the originator")

	// ErrInvalidState signals an action on a pending transfer or withdrawal
	// that has already reached a terminal state. A duplicate confirm hits
	// this instead of double-applying.
	ErrInvalidState = errors.New("invalid state for requested action")

	// ErrSettlementFailed wraps a blockchain send or signing error. The
	// ledger is untouched when this is returned.
	ErrSettlementFailed = errors.New("blockchain settlement failed")

	// ErrConfirmationPending is not a failure: the withdrawal was submitted
	// and is still awaiting chain finality.
	ErrConfirmationPending = errors.New("withdrawal awaiting chain confirmation")

	// Storage-level sentinels.
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrNotFound               = errors.New("record not found")
)

// MutationParams carries one signed balance mutation through the ledger.
// ExternalTxId, when set, is the idempotency key: a second mutation with the
// same id is rejected with ErrDuplicateTransaction.
type MutationParams struct {
	UserId       string
	Asset        string
	Type         string // "tip-in", "tip-out", "deposit", "withdrawal"
	Amount       decimal.Decimal
	ExternalTxId string
	Address      string
	Reference    string
}

// Ledger is the authoritative per-user, per-asset balance store.
type Ledger interface {
	Credit(ctx context.Context, p MutationParams) (*models.Transaction, error)
	Debit(ctx context.Context, p MutationParams) (*models.Transaction, error)
	Transfer(ctx context.Context, fromUser, toUser, asset string, amount decimal.Decimal) (*models.TransferRecord, error)
	GetBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error)
}

// Directory resolves wallet links for the reconciler and settlement paths.
type Directory interface {
	Linked(ctx context.Context, userId, chain string) (*models.WalletLink, error)
	ActiveLinks(ctx context.Context) ([]models.WalletLink, error)
}
