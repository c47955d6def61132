package reconcile

import (
	"context"
	"testing"
	"time"

	"justthetip/internal/assets"
	"justthetip/internal/chain"
	"justthetip/internal/ledger"
	"justthetip/internal/models"
	"justthetip/internal/wallets"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) (*Reconciler, *ledger.Service, *wallets.Directory, *chain.Fake) {
	t.Helper()

	ledgerSvc, err := ledger.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(ledgerSvc.Close)

	registry, err := assets.NewRegistry([]assets.Descriptor{
		{Symbol: "SOLANA", Chain: "solana", Decimals: 9, MinimumDeposit: "1", SettlementSupported: true},
		{Symbol: "SOLUSDC", Chain: "solana", Decimals: 6, Mint: "mint1", MinimumDeposit: "1", SettlementSupported: true},
	})
	require.NoError(t, err)

	fake := chain.NewFake()
	directory := wallets.NewDirectory(ledgerSvc, fake, registry)

	r := NewReconciler(ledgerSvc, directory, fake, registry, models.EngineConfig{
		ReconcileInterval:   time.Minute,
		ReconcileMaxWorkers: 2,
	})
	return r, ledgerSvc, directory, fake
}

func TestSweep_CreditsDepositDelta(t *testing.T) {
	r, ledgerSvc, directory, fake := newTestReconciler(t)
	ctx := context.Background()

	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(2))
	_, err := directory.Link(ctx, "alice", "SOLANA", "addr1")
	require.NoError(t, err)

	// Linking must not credit what was already there.
	r.Sweep(ctx)
	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.IsZero(), "pre-link funds were credited")

	// New deposit arrives.
	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(5))
	r.Sweep(ctx)

	balance, _ = ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(3)), "expected delta of 3, got %s", balance.String())
}

func TestSweep_IsIdempotent(t *testing.T) {
	r, ledgerSvc, directory, fake := newTestReconciler(t)
	ctx := context.Background()

	fake.SetBalance("addr1", "SOLANA", decimal.Zero)
	_, err := directory.Link(ctx, "alice", "SOLANA", "addr1")
	require.NoError(t, err)

	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(4))

	r.Sweep(ctx)
	r.Sweep(ctx)
	r.Sweep(ctx)

	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(4)), "repeated sweeps double-credited: %s", balance.String())
}

func TestSweep_DustAccumulatesUntilThreshold(t *testing.T) {
	r, ledgerSvc, directory, fake := newTestReconciler(t)
	ctx := context.Background()

	fake.SetBalance("addr1", "SOLANA", decimal.Zero)
	_, err := directory.Link(ctx, "alice", "SOLANA", "addr1")
	require.NoError(t, err)

	// Below the 1 SOLANA minimum: no credit, baseline unchanged.
	fake.SetBalance("addr1", "SOLANA", decimal.RequireFromString("0.4"))
	r.Sweep(ctx)

	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.IsZero(), "dust was credited")

	obs, err := ledgerSvc.GetObservation(ctx, "addr1", "SOLANA")
	require.NoError(t, err)
	assert.True(t, obs.LastKnownBalance.IsZero(), "dust moved the baseline")

	// More dust arrives and the total clears the threshold.
	fake.SetBalance("addr1", "SOLANA", decimal.RequireFromString("1.1"))
	r.Sweep(ctx)

	balance, _ = ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.RequireFromString("1.1")),
		"accumulated dust not credited in full: %s", balance.String())
}

func TestSweep_NegativeDeltaLowersBaselineOnly(t *testing.T) {
	r, ledgerSvc, directory, fake := newTestReconciler(t)
	ctx := context.Background()

	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(10))
	_, err := directory.Link(ctx, "alice", "SOLANA", "addr1")
	require.NoError(t, err)

	// Owner moves funds out of the watched wallet on their own.
	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(6))
	r.Sweep(ctx)

	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.IsZero(), "external spend was debited from the ledger")

	obs, err := ledgerSvc.GetObservation(ctx, "addr1", "SOLANA")
	require.NoError(t, err)
	assert.True(t, obs.LastKnownBalance.Equal(decimal.NewFromInt(6)))

	// A later deposit is measured from the lowered baseline.
	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(8))
	r.Sweep(ctx)

	balance, _ = ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(2)))
}

func TestSweep_CreditsRedepositAfterDrain(t *testing.T) {
	r, ledgerSvc, directory, fake := newTestReconciler(t)
	ctx := context.Background()

	fake.SetBalance("addr1", "SOLANA", decimal.Zero)
	_, err := directory.Link(ctx, "alice", "SOLANA", "addr1")
	require.NoError(t, err)

	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(5))
	r.Sweep(ctx)

	// Owner drains the wallet, then a fresh deposit lands the balance back
	// on a level that was credited before. It is a new inflow and must be
	// credited like any other.
	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(3))
	r.Sweep(ctx)
	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(5))
	r.Sweep(ctx)

	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(7)),
		"redeposit after drain was not credited: got %s, want 7", balance.String())
}

func TestSweep_WatchesEveryChainAsset(t *testing.T) {
	r, ledgerSvc, directory, fake := newTestReconciler(t)
	ctx := context.Background()

	// The link is created for the native asset, but the wallet already
	// holds tokens too.
	fake.SetBalance("addr1", "SOLANA", decimal.Zero)
	fake.SetBalance("addr1", "SOLUSDC", decimal.NewFromInt(50))
	_, err := directory.Link(ctx, "alice", "SOLANA", "addr1")
	require.NoError(t, err)

	// First sweep baselines the token without crediting pre-link funds.
	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(2))
	r.Sweep(ctx)

	solBalance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, solBalance.Equal(decimal.NewFromInt(2)))

	usdcBalance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLUSDC")
	assert.True(t, usdcBalance.IsZero(), "pre-link token funds were credited")

	// A token deposit on the same wallet is picked up from then on.
	fake.SetBalance("addr1", "SOLUSDC", decimal.NewFromInt(80))
	r.Sweep(ctx)

	usdcBalance, _ = ledgerSvc.GetBalance(ctx, "alice", "SOLUSDC")
	assert.True(t, usdcBalance.Equal(decimal.NewFromInt(30)),
		"token deposit not credited: got %s, want 30", usdcBalance.String())
}

func TestSweep_MultipleLinks(t *testing.T) {
	r, ledgerSvc, directory, fake := newTestReconciler(t)
	ctx := context.Background()

	for _, tc := range []struct{ user, addr string }{
		{"alice", "addr1"}, {"bob", "addr2"}, {"carol", "addr3"},
	} {
		fake.SetBalance(tc.addr, "SOLANA", decimal.Zero)
		_, err := directory.Link(ctx, tc.user, "SOLANA", tc.addr)
		require.NoError(t, err)
	}

	fake.SetBalance("addr1", "SOLANA", decimal.NewFromInt(1))
	fake.SetBalance("addr2", "SOLANA", decimal.NewFromInt(2))
	fake.SetBalance("addr3", "SOLANA", decimal.NewFromInt(3))

	r.Sweep(ctx)

	for i, user := range []string{"alice", "bob", "carol"} {
		balance, err := ledgerSvc.GetBalance(ctx, user, "SOLANA")
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(int64(i+1))),
			"user %s: expected %d, got %s", user, i+1, balance.String())
	}
}
