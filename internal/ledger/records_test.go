package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"justthetip/internal/models"
	"justthetip/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func insertTestTip(t *testing.T, service *Service, createdAt time.Time) string {
	t.Helper()
	pt := &models.PendingTransfer{
		Id:        uuid.New().String(),
		FromUser:  "alice",
		ToUser:    "bob",
		Asset:     "SOLANA",
		Amount:    decimal.NewFromInt(1),
		Status:    models.TipPending,
		CreatedAt: createdAt,
	}
	if err := service.InsertPendingTransfer(context.Background(), pt); err != nil {
		t.Fatalf("InsertPendingTransfer failed: %v", err)
	}
	return pt.Id
}

func TestPendingTransfer_RoundTrip(t *testing.T) {
	service := setupTestService(t)
	ctx := context.Background()

	id := insertTestTip(t, service, time.Now().UTC())

	pt, err := service.GetPendingTransfer(ctx, id)
	if err != nil {
		t.Fatalf("GetPendingTransfer failed: %v", err)
	}
	if pt.Status != models.TipPending {
		t.Errorf("Expected pending status, got %s", pt.Status)
	}
	if !pt.Amount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected amount 1, got %s", pt.Amount.String())
	}
}

func TestGetPendingTransfer_NotFound(t *testing.T) {
	service := setupTestService(t)

	_, err := service.GetPendingTransfer(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransitionPendingTransfer_AtMostOnce(t *testing.T) {
	service := setupTestService(t)
	ctx := context.Background()

	id := insertTestTip(t, service, time.Now().UTC())

	if err := service.TransitionPendingTransfer(ctx, id, models.TipConfirmed, ""); err != nil {
		t.Fatalf("First transition failed: %v", err)
	}

	// Second transition finds no pending row and must refuse.
	err := service.TransitionPendingTransfer(ctx, id, models.TipCancelled, "late cancel")
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("Expected ErrInvalidState, got %v", err)
	}

	pt, _ := service.GetPendingTransfer(ctx, id)
	if pt.Status != models.TipConfirmed {
		t.Errorf("Status changed by losing transition: %s", pt.Status)
	}
}

func TestTransitionPendingTransfer_RejectsNonTerminal(t *testing.T) {
	service := setupTestService(t)

	id := insertTestTip(t, service, time.Now().UTC())
	err := service.TransitionPendingTransfer(context.Background(), id, models.TipPending, "")
	if err == nil {
		t.Fatal("Expected error for transition to pending")
	}
}

func TestExpirePendingTransfers_OnlyOld(t *testing.T) {
	service := setupTestService(t)
	ctx := context.Background()

	oldId := insertTestTip(t, service, time.Now().UTC().Add(-time.Hour))
	freshId := insertTestTip(t, service, time.Now().UTC())

	swept, err := service.ExpirePendingTransfers(ctx, time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ExpirePendingTransfers failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("Expected 1 swept tip, got %d", swept)
	}

	old, _ := service.GetPendingTransfer(ctx, oldId)
	fresh, _ := service.GetPendingTransfer(ctx, freshId)
	if old.Status != models.TipExpired {
		t.Errorf("Old tip not expired: %s", old.Status)
	}
	if fresh.Status != models.TipPending {
		t.Errorf("Fresh tip wrongly expired: %s", fresh.Status)
	}
}

func TestWithdrawalRecord_RoundTripAndList(t *testing.T) {
	service := setupTestService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	record := &models.WithdrawalRecord{
		Id:          uuid.New().String(),
		UserId:      "alice",
		Asset:       "SOLANA",
		Amount:      decimal.RequireFromString("10"),
		Destination: "dest-addr",
		Status:      models.WithdrawalValidated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := service.InsertWithdrawal(ctx, record); err != nil {
		t.Fatalf("InsertWithdrawal failed: %v", err)
	}

	// Validated records are not picked up by the confirmation poller.
	submitted, err := service.ListSubmittedWithdrawals(ctx)
	if err != nil {
		t.Fatalf("ListSubmittedWithdrawals failed: %v", err)
	}
	if len(submitted) != 0 {
		t.Fatalf("Expected no submitted withdrawals, got %d", len(submitted))
	}

	record.Status = models.WithdrawalSubmitted
	record.ChainSignature = "sig1"
	if err := service.UpdateWithdrawal(ctx, record); err != nil {
		t.Fatalf("UpdateWithdrawal failed: %v", err)
	}

	submitted, _ = service.ListSubmittedWithdrawals(ctx)
	if len(submitted) != 1 {
		t.Fatalf("Expected 1 submitted withdrawal, got %d", len(submitted))
	}
	if submitted[0].ChainSignature != "sig1" {
		t.Errorf("Expected signature sig1, got %s", submitted[0].ChainSignature)
	}

	// Review-parked records drop out of the polling set.
	record.NeedsReview = true
	if err := service.UpdateWithdrawal(ctx, record); err != nil {
		t.Fatalf("UpdateWithdrawal failed: %v", err)
	}
	submitted, _ = service.ListSubmittedWithdrawals(ctx)
	if len(submitted) != 0 {
		t.Fatalf("Review-parked withdrawal still listed: %d", len(submitted))
	}
}

func TestWalletLink_UpsertReplacesSameChain(t *testing.T) {
	service := setupTestService(t)
	ctx := context.Background()

	first := &models.WalletLink{
		UserId: "alice", Chain: "solana", Address: "addr1",
		Asset: "SOLANA", LinkedAt: time.Now().UTC(),
	}
	if err := service.UpsertWalletLink(ctx, first); err != nil {
		t.Fatalf("UpsertWalletLink failed: %v", err)
	}

	second := &models.WalletLink{
		UserId: "alice", Chain: "solana", Address: "addr2",
		Asset: "SOLANA", LinkedAt: time.Now().UTC(),
	}
	if err := service.UpsertWalletLink(ctx, second); err != nil {
		t.Fatalf("UpsertWalletLink replace failed: %v", err)
	}

	link, err := service.GetWalletLink(ctx, "alice", "solana")
	if err != nil {
		t.Fatalf("GetWalletLink failed: %v", err)
	}
	if link.Address != "addr2" {
		t.Errorf("Expected replaced address addr2, got %s", link.Address)
	}

	links, err := service.ListWalletLinks(ctx)
	if err != nil {
		t.Fatalf("ListWalletLinks failed: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("Expected 1 link after replace, got %d", len(links))
	}
}

func TestGetWalletLink_NotLinked(t *testing.T) {
	service := setupTestService(t)

	_, err := service.GetWalletLink(context.Background(), "nobody", "solana")
	if !errors.Is(err, store.ErrWalletNotLinked) {
		t.Fatalf("Expected ErrWalletNotLinked, got %v", err)
	}
}

func TestObservation_UpsertAndGet(t *testing.T) {
	service := setupTestService(t)
	ctx := context.Background()

	obs := &models.DepositObservation{
		Address:          "addr1",
		Asset:            "SOLANA",
		LastKnownBalance: decimal.RequireFromString("1.5"),
		LastCheckedAt:    time.Now().UTC(),
	}
	if err := service.UpsertObservation(ctx, obs); err != nil {
		t.Fatalf("UpsertObservation failed: %v", err)
	}

	obs.LastKnownBalance = decimal.RequireFromString("2.5")
	if err := service.UpsertObservation(ctx, obs); err != nil {
		t.Fatalf("UpsertObservation update failed: %v", err)
	}

	stored, err := service.GetObservation(ctx, "addr1", "SOLANA")
	if err != nil {
		t.Fatalf("GetObservation failed: %v", err)
	}
	if !stored.LastKnownBalance.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("Expected baseline 2.5, got %s", stored.LastKnownBalance.String())
	}
}
