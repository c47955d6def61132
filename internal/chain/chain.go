package chain

import (
	"context"
	"errors"

	"justthetip/internal/assets"

	"github.com/shopspring/decimal"
)

// ConfirmStatus is the settlement state of a submitted transaction as
// reported by the chain.
type ConfirmStatus int

const (
	// StatusPending means the transaction is not yet in a confirmed block.
	StatusPending ConfirmStatus = iota
	// StatusConfirmed means the transaction landed and did not error.
	StatusConfirmed
	// StatusFailed means the transaction landed but errored on-chain, or
	// was dropped. Funds did not move.
	StatusFailed
)

func (s ConfirmStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNoSigner is returned by Send when the client was built without a
	// hot wallet key.
	ErrNoSigner = errors.New("no hot wallet signer configured")

	// ErrAirdropUnavailable is returned by RequestTestFunds outside devnet.
	ErrAirdropUnavailable = errors.New("airdrop is only available on devnet")

	// ErrNoTokenAccount is returned by Send when the destination owner has
	// no token account for the asset's mint.
	ErrNoTokenAccount = errors.New("destination has no token account for mint")
)

// Client is the blockchain surface the engine depends on. Implementations
// must be safe for concurrent use.
type Client interface {
	// GetBalance returns the confirmed balance of an address in whole
	// asset units (not base units).
	GetBalance(ctx context.Context, address string, asset assets.Descriptor) (decimal.Decimal, error)

	// Send moves amount from the hot wallet to destination and returns the
	// transaction signature. A returned signature does not mean the
	// transaction confirmed; callers poll Confirm.
	Send(ctx context.Context, destination string, amount decimal.Decimal, asset assets.Descriptor) (string, error)

	// Confirm reports the current status of a previously submitted
	// transaction.
	Confirm(ctx context.Context, signature string) (ConfirmStatus, error)

	// IsValidAddress checks address syntax only. It makes no RPC call.
	IsValidAddress(address string) bool

	// RequestTestFunds asks the devnet faucet to credit address.
	RequestTestFunds(ctx context.Context, address string, amount decimal.Decimal) (string, error)
}
