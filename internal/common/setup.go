package common

import (
	"context"
	"log"
	"strings"

	"justthetip/internal/api"
	"justthetip/internal/assets"
	"justthetip/internal/chain"
	"justthetip/internal/config"
	"justthetip/internal/ledger"
	"justthetip/internal/models"
	"justthetip/internal/tips"
	"justthetip/internal/wallets"
	"justthetip/internal/withdraw"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles every initialized engine component for the cmd tools.
type Services struct {
	Ledger      *ledger.Service
	Chain       chain.Client
	Assets      *assets.Registry
	Wallets     *wallets.Directory
	Tips        *tips.Workflow
	Withdrawals *withdraw.Settlement
	Api         *api.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the full engine. The hot wallet key is optional:
// without it the chain client is read-only and withdrawals fail at Send.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	ledgerSvc, err := ledger.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	registry, err := assets.Load(cfg.Engine.AssetsFile)
	if err != nil {
		ledgerSvc.Close()
		return nil, err
	}

	var signer *chain.Signer
	if key := config.HotWalletKey(); key != "" {
		signer, err = chain.NewSignerFromBase58(key)
		if err != nil {
			ledgerSvc.Close()
			return nil, err
		}
		zap.L().Info("Loaded hot wallet signer")
	} else {
		zap.L().Warn("HOT_WALLET_PRIVATE_KEY not set - chain client is read-only")
	}

	client, err := chain.NewSolanaClient(cfg.Chain, signer)
	if err != nil {
		ledgerSvc.Close()
		return nil, err
	}

	directory := wallets.NewDirectory(ledgerSvc, client, registry)
	tipsSvc := tips.NewWorkflow(ledgerSvc, registry, cfg.Engine.TipTTL)
	withdrawals := withdraw.NewSettlement(ledgerSvc, client, registry, cfg.Engine.MaxConfirmAttempts)

	return &Services{
		Ledger:      ledgerSvc,
		Chain:       client,
		Assets:      registry,
		Wallets:     directory,
		Tips:        tipsSvc,
		Withdrawals: withdrawals,
		Api:         api.NewService(ledgerSvc, tipsSvc, withdrawals, directory, client, registry),
	}, nil
}

// InitializeLedgerOnly opens just the ledger, for read-only tools that never
// touch the chain.
func InitializeLedgerOnly(ctx context.Context, cfg *models.Config) (*ledger.Service, error) {
	return ledger.NewService(ctx, cfg.Database)
}

func (cs *Services) Close() {
	if cs.Ledger != nil {
		cs.Ledger.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
