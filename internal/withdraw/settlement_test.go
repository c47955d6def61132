package withdraw

import (
	"context"
	"errors"
	"testing"
	"time"

	"justthetip/internal/assets"
	"justthetip/internal/chain"
	"justthetip/internal/ledger"
	"justthetip/internal/models"
	"justthetip/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSettlement(t *testing.T, maxAttempts int) (*Settlement, *ledger.Service, *chain.Fake) {
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
		{Symbol: "SOLANA", Chain: "solana", Decimals: 9, MinimumWithdrawal: "10", SettlementSupported: true},
		{Symbol: "POLYGON", Decimals: 18, SettlementSupported: false},
	})
	require.NoError(t, err)

	fake := chain.NewFake()
	return NewSettlement(ledgerSvc, fake, registry, maxAttempts), ledgerSvc, fake
}

func fund(t *testing.T, ledgerSvc *ledger.Service, userId, amount string) {
	t.Helper()
	_, err := ledgerSvc.Credit(context.Background(), store.MutationParams{
		UserId: userId, Asset: "SOLANA", Type: "deposit",
		Amount:       decimal.RequireFromString(amount),
		ExternalTxId: "fund-" + userId,
	})
	require.NoError(t, err)
}

func TestRequest_ValidationOrder(t *testing.T) {
	s, ledgerSvc, fake := newTestSettlement(t, 3)
	ctx := context.Background()
	fund(t, ledgerSvc, "alice", "100")
	fake.MarkInvalid("bad-addr")

	// Settlement support is checked before anything else.
	_, err := s.Request(ctx, "alice", "POLYGON", "bad-addr", decimal.NewFromInt(50))
	assert.ErrorIs(t, err, store.ErrAssetNotSupported)

	_, err = s.Request(ctx, "alice", "SOLANA", "bad-addr", decimal.NewFromInt(50))
	assert.ErrorIs(t, err, store.ErrInvalidAddress)

	_, err = s.Request(ctx, "alice", "SOLANA", "good-addr", decimal.NewFromInt(5))
	assert.ErrorIs(t, err, store.ErrBelowMinimum)

	_, err = s.Request(ctx, "alice", "SOLANA", "good-addr", decimal.NewFromInt(500))
	assert.ErrorIs(t, err, store.ErrInsufficientBalance)

	// Nothing above should have reached the chain.
	assert.Empty(t, fake.Sends())
}

func TestRequest_SubmitsAndKeepsBalance(t *testing.T) {
	s, ledgerSvc, fake := newTestSettlement(t, 3)
	ctx := context.Background()
	fund(t, ledgerSvc, "alice", "100")

	record, err := s.Request(ctx, "alice", "SOLANA", "dest-addr", decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalSubmitted, record.Status)
	assert.NotEmpty(t, record.ChainSignature)

	sends := fake.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, "dest-addr", sends[0].Destination)

	// The debit waits for chain confirmation.
	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "balance debited before confirmation")
}

func TestRequest_SendFailureLeavesLedgerUntouched(t *testing.T) {
	s, ledgerSvc, fake := newTestSettlement(t, 3)
	ctx := context.Background()
	fund(t, ledgerSvc, "alice", "100")
	fake.FailSends(errors.New("rpc timeout"))

	record, err := s.Request(ctx, "alice", "SOLANA", "dest-addr", decimal.NewFromInt(25))
	assert.ErrorIs(t, err, store.ErrSettlementFailed)
	assert.Nil(t, record)

	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))
}

func TestConfirm_DebitsAfterChainConfirmation(t *testing.T) {
	s, ledgerSvc, fake := newTestSettlement(t, 3)
	ctx := context.Background()
	fund(t, ledgerSvc, "alice", "100")

	record, err := s.Request(ctx, "alice", "SOLANA", "dest-addr", decimal.NewFromInt(25))
	require.NoError(t, err)

	fake.SetStatus(record.ChainSignature, chain.StatusConfirmed)

	settled, err := s.Confirm(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalConfirmed, settled.Status)

	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(75)))

	// Settled withdrawals cannot be confirmed again.
	_, err = s.Confirm(ctx, record.Id)
	assert.ErrorIs(t, err, store.ErrInvalidState)

	balance, _ = ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(75)), "second confirm debited again")
}

func TestConfirm_ChainFailureNoDebit(t *testing.T) {
	s, ledgerSvc, fake := newTestSettlement(t, 3)
	ctx := context.Background()
	fund(t, ledgerSvc, "alice", "100")

	record, err := s.Request(ctx, "alice", "SOLANA", "dest-addr", decimal.NewFromInt(25))
	require.NoError(t, err)

	fake.SetStatus(record.ChainSignature, chain.StatusFailed)

	failed, err := s.Confirm(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalFailed, failed.Status)
	assert.NotEmpty(t, failed.FailureReason)

	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "failed withdrawal was debited")
}

func TestConfirm_PendingCountsAttemptsThenParks(t *testing.T) {
	s, ledgerSvc, _ := newTestSettlement(t, 2)
	ctx := context.Background()
	fund(t, ledgerSvc, "alice", "100")

	record, err := s.Request(ctx, "alice", "SOLANA", "dest-addr", decimal.NewFromInt(25))
	require.NoError(t, err)

	// Fake reports pending by default.
	for i := 1; i <= 2; i++ {
		updated, err := s.Confirm(ctx, record.Id)
		assert.ErrorIs(t, err, store.ErrConfirmationPending)
		assert.Equal(t, i, updated.ConfirmAttempts)
		assert.False(t, updated.NeedsReview)
	}

	parked, err := s.Confirm(ctx, record.Id)
	assert.ErrorIs(t, err, store.ErrConfirmationPending)
	assert.True(t, parked.NeedsReview)

	// Parked withdrawals leave the polling set.
	require.NoError(t, s.Poll(ctx))
	after, err := s.Status(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, parked.ConfirmAttempts, after.ConfirmAttempts)
}

func TestConfirm_DebitFailureParksForReview(t *testing.T) {
	s, ledgerSvc, fake := newTestSettlement(t, 2)
	ctx := context.Background()
	fund(t, ledgerSvc, "alice", "100")

	record, err := s.Request(ctx, "alice", "SOLANA", "dest-addr", decimal.NewFromInt(25))
	require.NoError(t, err)

	// Funds are not reserved at submit time; the user spends them before
	// the chain confirms.
	_, err = ledgerSvc.Debit(ctx, store.MutationParams{
		UserId: "alice", Asset: "SOLANA", Type: "withdrawal",
		Amount: decimal.NewFromInt(90), ExternalTxId: "spend",
	})
	require.NoError(t, err)

	fake.SetStatus(record.ChainSignature, chain.StatusConfirmed)

	// The chain transfer settled but the debit cannot land. Each confirm
	// burns an attempt instead of retrying forever.
	for i := 1; i <= 2; i++ {
		_, err := s.Confirm(ctx, record.Id)
		assert.ErrorIs(t, err, store.ErrInsufficientBalance)

		after, err := s.Status(ctx, record.Id)
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalSubmitted, after.Status)
		assert.Equal(t, i, after.ConfirmAttempts)
		assert.False(t, after.NeedsReview)
	}

	_, err = s.Confirm(ctx, record.Id)
	assert.ErrorIs(t, err, store.ErrInsufficientBalance)

	parked, err := s.Status(ctx, record.Id)
	require.NoError(t, err)
	assert.True(t, parked.NeedsReview, "failing debit never reached manual review")

	// Parked withdrawals leave the polling set.
	require.NoError(t, s.Poll(ctx))
	after, err := s.Status(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, parked.ConfirmAttempts, after.ConfirmAttempts)
}

func TestPoll_SettlesSubmitted(t *testing.T) {
	s, ledgerSvc, fake := newTestSettlement(t, 3)
	ctx := context.Background()
	fund(t, ledgerSvc, "alice", "100")

	record, err := s.Request(ctx, "alice", "SOLANA", "dest-addr", decimal.NewFromInt(30))
	require.NoError(t, err)
	fake.SetStatus(record.ChainSignature, chain.StatusConfirmed)

	require.NoError(t, s.Poll(ctx))

	after, err := s.Status(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalConfirmed, after.Status)

	balance, _ := ledgerSvc.GetBalance(ctx, "alice", "SOLANA")
	assert.True(t, balance.Equal(decimal.NewFromInt(70)))
}
