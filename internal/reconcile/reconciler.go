package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"justthetip/internal/assets"
	"justthetip/internal/chain"
	"justthetip/internal/ledger"
	"justthetip/internal/models"
	"justthetip/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reconciler detects deposits by polling linked wallet balances and crediting
// positive deltas against the stored baseline. The credit and the baseline
// advance commit in one transaction, guarded on the baseline the delta was
// read from, so neither a crash nor an overlapping sweep can credit a
// transition twice.
type Reconciler struct {
	ledger     *ledger.Service
	directory  store.Directory
	client     chain.Client
	assets     *assets.Registry
	interval   time.Duration
	maxWorkers int

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewReconciler(ledgerSvc *ledger.Service, directory store.Directory, client chain.Client, registry *assets.Registry, cfg models.EngineConfig) *Reconciler {
	return &Reconciler{
		ledger:     ledgerSvc,
		directory:  directory,
		client:     client,
		assets:     registry,
		interval:   cfg.ReconcileInterval,
		maxWorkers: cfg.ReconcileMaxWorkers,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start launches the polling loop.
func (r *Reconciler) Start(ctx context.Context) {
	zap.L().Info("Starting deposit reconciler",
		zap.Duration("interval", r.interval),
		zap.Int("max_workers", r.maxWorkers))
	go r.pollLoop(ctx)
}

// Stop shuts the loop down and waits for the in-flight sweep to finish.
func (r *Reconciler) Stop() {
	zap.L().Info("Stopping deposit reconciler")
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Deposit reconciler stopped")
}

func (r *Reconciler) pollLoop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep checks every active wallet link once, fanning out across a bounded
// worker pool.
func (r *Reconciler) Sweep(ctx context.Context) {
	links, err := r.directory.ActiveLinks(ctx)
	if err != nil {
		zap.L().Error("Failed to list wallet links", zap.Error(err))
		return
	}
	if len(links) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxWorkers)

	for _, link := range links {
		link := link
		g.Go(func() error {
			if err := r.checkLink(gctx, link); err != nil {
				zap.L().Error("Failed to reconcile wallet",
					zap.String("user_id", link.UserId),
					zap.String("address", link.Address),
					zap.String("chain", link.Chain),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// checkLink reconciles every registry asset on the link's chain, not just
// the one the user linked with: a wallet holding both native and token
// balances is watched for all of them. Baselines live per (address, asset).
func (r *Reconciler) checkLink(ctx context.Context, link models.WalletLink) error {
	watched := r.assets.ForChain(link.Chain)
	if len(watched) == 0 {
		return fmt.Errorf("%w: no assets registered for chain %s", store.ErrAssetNotSupported, link.Chain)
	}

	for _, asset := range watched {
		if err := r.checkAsset(ctx, link, asset); err != nil {
			return fmt.Errorf("asset %s: %w", asset.Symbol, err)
		}
	}
	return nil
}

func (r *Reconciler) checkAsset(ctx context.Context, link models.WalletLink, asset *assets.Descriptor) error {
	current, err := r.client.GetBalance(ctx, link.Address, *asset)
	if err != nil {
		return fmt.Errorf("unable to read chain balance: %w", err)
	}

	now := time.Now().UTC()
	obs, err := r.ledger.GetObservation(ctx, link.Address, asset.Symbol)
	if errors.Is(err, store.ErrNotFound) {
		// First sighting: record the baseline without crediting what was
		// already there.
		return r.ledger.UpsertObservation(ctx, &models.DepositObservation{
			Address:          link.Address,
			Asset:            asset.Symbol,
			LastKnownBalance: current,
			LastCheckedAt:    now,
		})
	}
	if err != nil {
		return err
	}

	delta := current.Sub(obs.LastKnownBalance)

	switch {
	case delta.IsNegative():
		// Funds left the wallet outside our control. Lower the baseline;
		// never debit the ledger for external movement.
		zap.L().Warn("Wallet balance decreased externally",
			zap.String("address", link.Address),
			zap.String("asset", asset.Symbol),
			zap.String("previous", obs.LastKnownBalance.String()),
			zap.String("current", current.String()))
		obs.LastKnownBalance = current
		obs.LastCheckedAt = now
		return r.ledger.UpsertObservation(ctx, obs)

	case delta.IsPositive() && delta.GreaterThanOrEqual(asset.MinDeposit()):
		return r.credit(ctx, link, asset, obs.LastKnownBalance, current, delta, now)

	default:
		// Zero, or dust below the deposit minimum. The baseline stays put
		// so dust can accumulate into a creditable deposit.
		obs.LastCheckedAt = now
		return r.ledger.UpsertObservation(ctx, obs)
	}
}

// credit applies one detected deposit. The ledger credit and the baseline
// advance commit together, guarded on the baseline the delta was computed
// from, so each observed balance transition is credited exactly once: a
// crash retry finds the baseline already advanced and a zero delta, and a
// wallet drained then topped back up to an earlier level is a fresh
// transition, not a duplicate.
func (r *Reconciler) credit(ctx context.Context, link models.WalletLink, asset *assets.Descriptor, baseline, current, delta decimal.Decimal, now time.Time) error {
	obs := models.DepositObservation{
		Address:          link.Address,
		Asset:            asset.Symbol,
		LastKnownBalance: current,
		LastCheckedAt:    now,
	}
	tx, err := r.ledger.CreditWithObservation(ctx, store.MutationParams{
		UserId:    link.UserId,
		Asset:     asset.Symbol,
		Type:      "deposit",
		Amount:    delta,
		Address:   link.Address,
		Reference: fmt.Sprintf("deposit detected at %s", link.Address),
	}, obs, baseline)
	if errors.Is(err, store.ErrConcurrentModification) {
		// A concurrent sweep advanced the baseline first; its credit stands.
		zap.L().Warn("Deposit already credited by a concurrent sweep",
			zap.String("address", link.Address),
			zap.String("asset", asset.Symbol),
			zap.String("baseline", baseline.String()))
		return nil
	}
	if err != nil {
		return err
	}

	zap.L().Info("Credited deposit",
		zap.String("user_id", link.UserId),
		zap.String("asset", asset.Symbol),
		zap.String("amount", delta.String()),
		zap.String("transaction_id", tx.Id),
		zap.String("address", link.Address))

	return nil
}
