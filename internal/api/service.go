package api

import (
	"errors"

	"justthetip/internal/assets"
	"justthetip/internal/chain"
	"justthetip/internal/ledger"
	"justthetip/internal/store"
	"justthetip/internal/tips"
	"justthetip/internal/wallets"
	"justthetip/internal/withdraw"
)

// Service is the command surface over the engine. Every operation returns a
// Result with a stable machine-readable code instead of a raw error, so
// callers (bots, CLIs) can branch without string matching.
type Service struct {
	ledger      *ledger.Service
	tips        *tips.Workflow
	withdrawals *withdraw.Settlement
	wallets     *wallets.Directory
	client      chain.Client
	assets      *assets.Registry
}

func NewService(ledgerSvc *ledger.Service, tipsSvc *tips.Workflow, withdrawals *withdraw.Settlement, directory *wallets.Directory, client chain.Client, registry *assets.Registry) *Service {
	return &Service{
		ledger:      ledgerSvc,
		tips:        tipsSvc,
		withdrawals: withdrawals,
		wallets:     directory,
		client:      client,
		assets:      registry,
	}
}

// Result carries the outcome of an operation. Status is "ok" or "error";
// Code is set only on error.
type Result struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Stable error codes. New codes may be added; existing ones never change
// meaning.
const (
	CodeInsufficientBalance = "insufficient_balance"
	CodeInvalidAddress      = "invalid_address"
	CodeBelowMinimum        = "below_minimum"
	CodeAssetNotSupported   = "asset_not_supported"
	CodeWalletNotLinked     = "wallet_not_linked"
	CodeUnauthorized        = "unauthorized"
	CodeInvalidState        = "invalid_state"
	CodeSettlementFailed    = "settlement_failed"
	CodeConfirmationPending = "confirmation_pending"
	CodeDuplicate           = "duplicate_transaction"
	CodeNotFound            = "not_found"
	CodeBadRequest          = "bad_request"
	CodeInternal            = "internal_error"
)

func ok() Result {
	return Result{Status: "ok"}
}

func fail(err error) Result {
	return Result{Status: "error", Code: codeFor(err), Message: err.Error()}
}

func badRequest(message string) Result {
	return Result{Status: "error", Code: CodeBadRequest, Message: message}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, store.ErrInvalidAddress):
		return CodeInvalidAddress
	case errors.Is(err, store.ErrBelowMinimum):
		return CodeBelowMinimum
	case errors.Is(err, store.ErrAssetNotSupported):
		return CodeAssetNotSupported
	case errors.Is(err, store.ErrWalletNotLinked):
		return CodeWalletNotLinked
	case errors.Is(err, store.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, store.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, store.ErrSettlementFailed):
		return CodeSettlementFailed
	case errors.Is(err, store.ErrConfirmationPending):
		return CodeConfirmationPending
	case errors.Is(err, store.ErrDuplicateTransaction):
		return CodeDuplicate
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
