package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"justthetip/internal/api"
	"justthetip/internal/common"
	"justthetip/internal/config"
	"justthetip/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	userId      string
	asset       string
	amount      decimal.Decimal
	destination string
	watch       bool
	statusId    string
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	userFlag := flag.String("user", "", "User id (required)")
	assetFlag := flag.String("asset", "", "Asset symbol, e.g. SOLANA (required)")
	amountFlag := flag.String("amount", "", "Amount to withdraw (required)")
	destinationFlag := flag.String("destination", "", "Destination address (required)")
	watchFlag := flag.Bool("watch", false, "Poll until the withdrawal settles")
	statusFlag := flag.String("status", "", "Show status of an existing withdrawal and exit")
	flag.Parse()

	if *statusFlag != "" {
		return &withdrawalRequest{statusId: *statusFlag}, nil
	}

	if *userFlag == "" || *assetFlag == "" || *amountFlag == "" || *destinationFlag == "" {
		return nil, fmt.Errorf("all flags are required: --user, --asset, --amount, --destination")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	return &withdrawalRequest{
		userId:      *userFlag,
		asset:       *assetFlag,
		amount:      amount,
		destination: *destinationFlag,
		watch:       *watchFlag,
	}, nil
}

func printWithdrawal(record *models.WithdrawalRecord) {
	fmt.Printf("\n┌─ Withdrawal: %s\n", record.Id)
	fmt.Printf("│  User:        %s\n", record.UserId)
	fmt.Printf("│  Amount:      %s\n", common.FormatAmount(record.Amount, record.Asset))
	fmt.Printf("│  Destination: %s\n", record.Destination)
	fmt.Printf("│  Status:      %s\n", record.Status)
	if record.ChainSignature != "" {
		fmt.Printf("│  Signature:   %s\n", record.ChainSignature)
	}
	if record.FailureReason != "" {
		fmt.Printf("│  Failure:     %s\n", record.FailureReason)
	}
	if record.NeedsReview {
		fmt.Println("│  ⚠ Parked for manual review")
	}
	fmt.Println("└")
}

func watchUntilSettled(ctx context.Context, services *common.Services, withdrawalId string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		// Drive confirmation directly so --watch works without the daemon.
		if err := services.Withdrawals.Poll(ctx); err != nil {
			zap.L().Error("Confirmation poll failed", zap.Error(err))
		}

		resp := services.Api.GetWithdrawalStatus(ctx, withdrawalId)
		if resp.Status != "ok" {
			fmt.Printf("❌ %s (%s)\n", resp.Message, resp.Code)
			return
		}

		record := resp.Withdrawal
		switch record.Status {
		case models.WithdrawalConfirmed:
			fmt.Println("✅ Withdrawal settled - ledger debited")
			printWithdrawal(record)
			return
		case models.WithdrawalFailed:
			fmt.Println("❌ Withdrawal failed on chain - no funds debited")
			printWithdrawal(record)
			return
		default:
			if record.NeedsReview {
				fmt.Println("⚠ Withdrawal parked for manual review")
				printWithdrawal(record)
				return
			}
			fmt.Printf("⏳ Awaiting confirmation (attempt %d)...\n", record.ConfirmAttempts)
		}
	}
}

func main() {
	req, err := parseAndValidateFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
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

	if req.statusId != "" {
		resp := services.Api.GetWithdrawalStatus(ctx, req.statusId)
		if resp.Status != "ok" {
			fmt.Printf("\n❌ %s (%s)\n\n", resp.Message, resp.Code)
			os.Exit(1)
		}
		printWithdrawal(resp.Withdrawal)
		return
	}

	resp := services.Api.RequestWithdrawal(ctx, api.WithdrawalRequest{
		UserId:      req.userId,
		Asset:       req.asset,
		Destination: req.destination,
		Amount:      req.amount,
	})
	if resp.Status != "ok" {
		fmt.Printf("\n❌ %s (%s)\n\n", resp.Message, resp.Code)
		os.Exit(1)
	}

	fmt.Println("\n✅ Withdrawal submitted to chain")
	printWithdrawal(resp.Withdrawal)

	if req.watch {
		watchUntilSettled(ctx, services, resp.Withdrawal.Id, cfg.Engine.ConfirmPollInterval)
	} else {
		fmt.Println("\nThe engine daemon will settle this withdrawal; check back with --status.")
	}
}
