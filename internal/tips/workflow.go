package tips

import (
	"context"
	"errors"
	"fmt"
	"time"

	"justthetip/internal/assets"
	"justthetip/internal/ledger"
	"justthetip/internal/models"
	"justthetip/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Workflow runs the two-phase tip protocol: a tip is created pending and
// moves funds only when the sender confirms it. Balances are checked twice,
// once advisory at creation and once bindingly inside the transfer.
type Workflow struct {
	ledger *ledger.Service
	assets *assets.Registry
	ttl    time.Duration
}

func NewWorkflow(ledgerSvc *ledger.Service, registry *assets.Registry, ttl time.Duration) *Workflow {
	return &Workflow{
		ledger: ledgerSvc,
		assets: registry,
		ttl:    ttl,
	}
}

// Create registers a pending tip. The sender's balance is checked here as a
// courtesy; it is not reserved, so the authoritative check happens on
// Confirm.
func (w *Workflow) Create(ctx context.Context, fromUser, toUser, symbol string, amount decimal.Decimal) (*models.PendingTransfer, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("tip amount must be positive, got %s", amount.String())
	}
	if fromUser == toUser {
		return nil, fmt.Errorf("cannot tip yourself")
	}

	asset, err := w.assets.Lookup(symbol)
	if err != nil {
		return nil, err
	}

	balance, err := w.ledger.GetBalance(ctx, fromUser, asset.Symbol)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance=%s, requested=%s",
			store.ErrInsufficientBalance, balance.String(), amount.String())
	}

	pt := &models.PendingTransfer{
		Id:        uuid.New().String(),
		FromUser:  fromUser,
		ToUser:    toUser,
		Asset:     asset.Symbol,
		Amount:    amount,
		Status:    models.TipPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.ledger.InsertPendingTransfer(ctx, pt); err != nil {
		return nil, err
	}

	zap.L().Info("Created pending tip",
		zap.String("tip_id", pt.Id),
		zap.String("from_user", fromUser),
		zap.String("to_user", toUser),
		zap.String("asset", asset.Symbol),
		zap.String("amount", amount.String()))

	return pt, nil
}

// Confirm applies a pending tip. Only the sender may confirm. The guarded
// pending-to-confirmed transition and the transfer commit as one database
// transaction, so two racing confirms apply at most once and a failed
// transfer leaves the tip pending rather than confirmed without funds
// moved. A sender whose balance dropped below the tip amount since creation
// gets the tip cancelled with a reason instead.
func (w *Workflow) Confirm(ctx context.Context, tipId, actor string) (*models.TransferRecord, error) {
	pt, err := w.ledger.GetPendingTransfer(ctx, tipId)
	if err != nil {
		return nil, err
	}
	if actor != pt.FromUser {
		return nil, fmt.Errorf("%w: only %s can confirm tip %s", store.ErrUnauthorized, pt.FromUser, tipId)
	}
	if pt.Status.Terminal() {
		return nil, fmt.Errorf("%w: tip %s is %s", store.ErrInvalidState, tipId, pt.Status)
	}

	if w.expired(pt) {
		// Lazy expiry: the sweeper may not have run yet.
		if err := w.ledger.TransitionPendingTransfer(ctx, tipId, models.TipExpired, "expired before confirmation"); err != nil && !errors.Is(err, store.ErrInvalidState) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: tip %s expired", store.ErrInvalidState, tipId)
	}

	record, err := w.ledger.ApplyPendingTransfer(ctx, tipId, pt.FromUser, pt.ToUser, pt.Asset, pt.Amount)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			// The rollback left the tip pending; settle it as cancelled.
			if trErr := w.ledger.TransitionPendingTransfer(ctx, tipId, models.TipCancelled, "insufficient balance at confirmation"); trErr != nil && !errors.Is(trErr, store.ErrInvalidState) {
				zap.L().Error("Failed to cancel tip after balance check",
					zap.String("tip_id", tipId), zap.Error(trErr))
			}
			return nil, err
		}
		// Anything else rolled back whole: the tip is still pending and the
		// sender can retry.
		return nil, err
	}

	zap.L().Info("Confirmed tip",
		zap.String("tip_id", tipId),
		zap.String("transfer_id", record.Id),
		zap.String("amount", pt.Amount.String()))

	return record, nil
}

// Cancel voids a pending tip without moving funds. Only the sender may
// cancel.
func (w *Workflow) Cancel(ctx context.Context, tipId, actor string) error {
	pt, err := w.ledger.GetPendingTransfer(ctx, tipId)
	if err != nil {
		return err
	}
	if actor != pt.FromUser {
		return fmt.Errorf("%w: only %s can cancel tip %s", store.ErrUnauthorized, pt.FromUser, tipId)
	}

	if err := w.ledger.TransitionPendingTransfer(ctx, tipId, models.TipCancelled, "cancelled by sender"); err != nil {
		return err
	}

	zap.L().Info("Cancelled tip", zap.String("tip_id", tipId), zap.String("from_user", pt.FromUser))
	return nil
}

// Get returns a tip by id.
func (w *Workflow) Get(ctx context.Context, tipId string) (*models.PendingTransfer, error) {
	return w.ledger.GetPendingTransfer(ctx, tipId)
}

// History returns the user's applied transfers, newest first.
func (w *Workflow) History(ctx context.Context, userId string, limit int) ([]models.TransferRecord, error) {
	return w.ledger.GetTransferHistory(ctx, userId, limit)
}

// Totals aggregates the user's applied tips per asset.
func (w *Workflow) Totals(ctx context.Context, userId string) ([]models.TransferTotals, error) {
	return w.ledger.GetTransferTotals(ctx, userId)
}

// SweepExpired expires every pending tip older than the TTL. Run
// periodically; Confirm also checks lazily so a stale tip can never apply.
func (w *Workflow) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-w.ttl)
	swept, err := w.ledger.ExpirePendingTransfers(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		zap.L().Info("Expired stale tips", zap.Int64("count", swept))
	}
	return swept, nil
}

func (w *Workflow) expired(pt *models.PendingTransfer) bool {
	return time.Now().UTC().After(pt.CreatedAt.Add(w.ttl))
}
