package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"justthetip/internal/api"
	"justthetip/internal/common"
	"justthetip/internal/config"

	"go.uber.org/zap"
)

func main() {
	userFlag := flag.String("user", "", "User id (required)")
	assetFlag := flag.String("asset", "", "Asset symbol, e.g. SOLANA (required)")
	addressFlag := flag.String("address", "", "External wallet address (required)")
	flag.Parse()

	if *userFlag == "" || *assetFlag == "" || *addressFlag == "" {
		fmt.Fprintln(os.Stderr, "Error: --user, --asset and --address are required")
		flag.Usage()
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

	resp := services.Api.LinkWallet(ctx, api.LinkWalletRequest{
		UserId:  *userFlag,
		Asset:   *assetFlag,
		Address: *addressFlag,
	})
	if resp.Status != "ok" {
		fmt.Printf("\n❌ %s (%s)\n\n", resp.Message, resp.Code)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Wallet linked\n")
	fmt.Printf("   User:    %s\n", resp.Link.UserId)
	fmt.Printf("   Chain:   %s\n", resp.Link.Chain)
	fmt.Printf("   Address: %s\n", resp.Link.Address)
	fmt.Println("\nDeposits at this address will be credited after the next reconciler sweep.")
	fmt.Println("Funds already at the address are NOT credited retroactively.")
}
