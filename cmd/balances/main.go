package main

import (
	"context"
	"flag"
	"fmt"

	"justthetip/internal/common"
	"justthetip/internal/config"
	"justthetip/internal/ledger"
	"justthetip/internal/models"

	"go.uber.org/zap"
)

func formatTransactionId(txId string) string {
	if txId == "" {
		return "none"
	}
	if len(txId) > 8 {
		return txId[:8] + "..."
	}
	return txId
}

func printBalance(balance models.AccountBalance, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	lastTx := formatTransactionId(balance.LastTransactionId)

	fmt.Printf("%s %-15s: %20s (v%d, last_tx: %s, updated: %s)\n",
		symbol,
		balance.Asset,
		balance.Balance.String(),
		balance.Version,
		lastTx,
		balance.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printHistory(transactions []models.Transaction) {
	for i, tx := range transactions {
		prefix := common.BoxPrefix(i == len(transactions)-1)
		fmt.Printf("%s %-12s %20s  balance %s → %s  (%s)\n",
			prefix,
			tx.Type,
			tx.Amount.String(),
			tx.BalanceBefore.String(),
			tx.BalanceAfter.String(),
			tx.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func showBalances(ctx context.Context, ledgerSvc *ledger.Service, userId string) error {
	balances, err := ledgerSvc.GetAllBalances(ctx, userId)
	if err != nil {
		return err
	}

	fmt.Printf("\n┌─ User: %s\n", userId)
	fmt.Printf("│  Assets: %d\n", len(balances))
	common.PrintBoxSeparator(78)

	if len(balances) == 0 {
		fmt.Println("└  (no balances)")
		return nil
	}
	for i, balance := range balances {
		printBalance(balance, i == len(balances)-1)
	}
	return nil
}

func showTipTotals(ctx context.Context, ledgerSvc *ledger.Service, userId string) error {
	totals, err := ledgerSvc.GetTransferTotals(ctx, userId)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		return nil
	}

	fmt.Printf("\n┌─ Tips: %s\n", userId)
	common.PrintBoxSeparator(78)
	for i, t := range totals {
		prefix := common.BoxPrefix(i == len(totals)-1)
		fmt.Printf("%s %-15s: sent %s (%d), received %s (%d)\n",
			prefix, t.Asset,
			t.Sent.String(), t.SentCount,
			t.Received.String(), t.ReceivedCount)
	}
	return nil
}

func showHistory(ctx context.Context, ledgerSvc *ledger.Service, userId, asset string, limit int) error {
	transactions, err := ledgerSvc.GetTransactionHistory(ctx, userId, asset, limit, 0)
	if err != nil {
		return err
	}

	fmt.Printf("\n┌─ History: %s / %s (%d entries)\n", userId, asset, len(transactions))
	common.PrintBoxSeparator(78)

	if len(transactions) == 0 {
		fmt.Println("└  (no transactions)")
		return nil
	}
	printHistory(transactions)
	return nil
}

func main() {
	userFlag := flag.String("user", "", "User id (required)")
	assetFlag := flag.String("asset", "", "Show transaction history for this asset")
	limitFlag := flag.Int("limit", 20, "History entries to show")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *userFlag == "" {
		logger.Fatal("--user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	ledgerSvc, err := common.InitializeLedgerOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open ledger", zap.Error(err))
	}
	defer ledgerSvc.Close()

	if err := showBalances(ctx, ledgerSvc, *userFlag); err != nil {
		logger.Fatal("Failed to read balances", zap.Error(err))
	}

	if err := showTipTotals(ctx, ledgerSvc, *userFlag); err != nil {
		logger.Fatal("Failed to read tip totals", zap.Error(err))
	}

	if *assetFlag != "" {
		if err := showHistory(ctx, ledgerSvc, *userFlag, *assetFlag, *limitFlag); err != nil {
			logger.Fatal("Failed to read history", zap.Error(err))
		}
	}

	fmt.Println()
}
