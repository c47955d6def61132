package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"justthetip/internal/api"
	"justthetip/internal/common"
	"justthetip/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type tipCommand struct {
	action string
	from   string
	to     string
	asset  string
	amount decimal.Decimal
	tipId  string
	actor  string
}

func parseFlags() (*tipCommand, error) {
	actionFlag := flag.String("action", "", "One of: create, confirm, cancel, status (required)")
	fromFlag := flag.String("from", "", "Sender user id (create)")
	toFlag := flag.String("to", "", "Recipient user id (create)")
	assetFlag := flag.String("asset", "", "Asset symbol, e.g. SOLANA (create)")
	amountFlag := flag.String("amount", "", "Tip amount (create)")
	tipFlag := flag.String("tip", "", "Tip id (confirm, cancel, status)")
	actorFlag := flag.String("actor", "", "Acting user id (confirm, cancel)")
	flag.Parse()

	cmd := &tipCommand{
		action: *actionFlag,
		from:   *fromFlag,
		to:     *toFlag,
		asset:  *assetFlag,
		tipId:  *tipFlag,
		actor:  *actorFlag,
	}

	switch cmd.action {
	case "create":
		if cmd.from == "" || cmd.to == "" || cmd.asset == "" || *amountFlag == "" {
			return nil, fmt.Errorf("create requires --from, --to, --asset and --amount")
		}
		amount, err := decimal.NewFromString(*amountFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid amount format: %w", err)
		}
		cmd.amount = amount
	case "confirm", "cancel":
		if cmd.tipId == "" || cmd.actor == "" {
			return nil, fmt.Errorf("%s requires --tip and --actor", cmd.action)
		}
	case "status":
		if cmd.tipId == "" {
			return nil, fmt.Errorf("status requires --tip")
		}
	default:
		return nil, fmt.Errorf("unknown --action %q, expected create, confirm, cancel or status", cmd.action)
	}

	return cmd, nil
}

func run(ctx context.Context, apiSvc *api.Service, cmd *tipCommand) api.TransferResponse {
	switch cmd.action {
	case "create":
		return apiSvc.CreateTransfer(ctx, api.CreateTransferRequest{
			FromUser: cmd.from,
			ToUser:   cmd.to,
			Asset:    cmd.asset,
			Amount:   cmd.amount,
		})
	case "confirm":
		return apiSvc.ConfirmTransfer(ctx, cmd.tipId, cmd.actor)
	case "cancel":
		return apiSvc.CancelTransfer(ctx, cmd.tipId, cmd.actor)
	default:
		return apiSvc.GetTransfer(ctx, cmd.tipId)
	}
}

func printResponse(resp api.TransferResponse) {
	if resp.Status != "ok" {
		fmt.Printf("\n❌ %s (%s)\n\n", resp.Message, resp.Code)
		os.Exit(1)
	}

	if resp.Tip != nil {
		fmt.Printf("\n✅ Tip %s is %s\n", resp.Tip.Id, resp.Tip.Status)
		fmt.Printf("   %s → %s: %s\n", resp.Tip.FromUser, resp.Tip.ToUser,
			common.FormatAmount(resp.Tip.Amount, resp.Tip.Asset))
		if resp.Tip.Reason != "" {
			fmt.Printf("   Reason: %s\n", resp.Tip.Reason)
		}
		fmt.Println()
		return
	}
	if resp.Transfer != nil {
		fmt.Printf("\n✅ Tip applied: transfer %s\n", resp.Transfer.Id)
		fmt.Printf("   %s → %s: %s\n", resp.Transfer.FromUser, resp.Transfer.ToUser,
			common.FormatAmount(resp.Transfer.Amount, resp.Transfer.Asset))
		fmt.Println()
		return
	}
	fmt.Println("\n✅ Done")
}

func main() {
	cmd, err := parseFlags()
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

	printResponse(run(ctx, services.Api, cmd))
}
