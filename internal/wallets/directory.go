package wallets

import (
	"context"
	"fmt"
	"time"

	"justthetip/internal/assets"
	"justthetip/internal/chain"
	"justthetip/internal/ledger"
	"justthetip/internal/models"
	"justthetip/internal/store"

	"go.uber.org/zap"
)

// Directory maintains the mapping from internal users to external wallet
// addresses, one link per (user, chain).
type Directory struct {
	ledger *ledger.Service
	client chain.Client
	assets *assets.Registry
}

var _ store.Directory = (*Directory)(nil)

func NewDirectory(ledgerSvc *ledger.Service, client chain.Client, registry *assets.Registry) *Directory {
	return &Directory{
		ledger: ledgerSvc,
		client: client,
		assets: registry,
	}
}

// Link associates userId with an external address for the asset's chain,
// replacing any previous link on that chain. The current on-chain balance is
// recorded as the reconciliation baseline, so funds already sitting at the
// address are never credited retroactively.
func (d *Directory) Link(ctx context.Context, userId, symbol, address string) (*models.WalletLink, error) {
	asset, err := d.assets.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	if asset.Chain == "" {
		return nil, fmt.Errorf("%w: %s has no settlement chain", store.ErrAssetNotSupported, asset.Symbol)
	}
	if !d.client.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidAddress, address)
	}

	balance, err := d.client.GetBalance(ctx, address, *asset)
	if err != nil {
		return nil, fmt.Errorf("unable to read balance for %s: %w", address, err)
	}

	now := time.Now().UTC()
	link := &models.WalletLink{
		UserId:   userId,
		Chain:    asset.Chain,
		Address:  address,
		Asset:    asset.Symbol,
		LinkedAt: now,
	}
	if err := d.ledger.UpsertWalletLink(ctx, link); err != nil {
		return nil, err
	}

	obs := &models.DepositObservation{
		Address:          address,
		Asset:            asset.Symbol,
		LastKnownBalance: balance,
		LastCheckedAt:    now,
	}
	if err := d.ledger.UpsertObservation(ctx, obs); err != nil {
		return nil, err
	}

	zap.L().Info("Linked wallet",
		zap.String("user_id", userId),
		zap.String("chain", asset.Chain),
		zap.String("address", address),
		zap.String("baseline", balance.String()))

	return link, nil
}

// Linked returns the active link for (user, chain), or store.ErrWalletNotLinked.
func (d *Directory) Linked(ctx context.Context, userId, chainName string) (*models.WalletLink, error) {
	return d.ledger.GetWalletLink(ctx, userId, chainName)
}

// ActiveLinks returns every linked wallet for the reconciler to poll.
func (d *Directory) ActiveLinks(ctx context.Context) ([]models.WalletLink, error) {
	return d.ledger.ListWalletLinks(ctx)
}
