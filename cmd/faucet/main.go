package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"justthetip/internal/common"
	"justthetip/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Devnet-only helper: airdrops SOL to an address so deposits can be tested
// end to end. The node rejects the request on any other network.
func main() {
	addressFlag := flag.String("address", "", "Recipient address (required)")
	amountFlag := flag.String("amount", "1", "SOL amount to request")
	flag.Parse()

	if *addressFlag == "" {
		fmt.Fprintln(os.Stderr, "Error: --address is required")
		flag.Usage()
		os.Exit(1)
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil || !amount.IsPositive() {
		fmt.Fprintf(os.Stderr, "Error: invalid amount %q\n", *amountFlag)
		os.Exit(1)
	}

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	resp := services.Api.RequestTestFunds(ctx, *addressFlag, amount)
	if resp.Status != "ok" {
		fmt.Printf("\n❌ %s (%s)\n\n", resp.Message, resp.Code)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Airdrop requested\n")
	fmt.Printf("   Address:   %s\n", *addressFlag)
	fmt.Printf("   Amount:    %s SOL\n", amount.String())
	fmt.Printf("   Signature: %s\n\n", resp.Signature)
}
