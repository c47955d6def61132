package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"justthetip/internal/common"
	"justthetip/internal/config"
	"justthetip/internal/reconcile"

	"go.uber.org/zap"
)

// The engine daemon runs the three background loops: deposit reconciliation,
// tip expiry sweeping, and withdrawal confirmation polling.
func main() {
	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting settlement engine",
		zap.String("network", cfg.Chain.Network),
		zap.String("endpoint", cfg.Chain.Endpoint))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	reconciler := reconcile.NewReconciler(services.Ledger, services.Wallets, services.Chain, services.Assets, cfg.Engine)
	reconciler.Start(ctx)

	stopChan := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepLoop(ctx, services, cfg.Engine.TipSweepInterval, stopChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		confirmLoop(ctx, services, cfg.Engine.ConfirmPollInterval, stopChan)
	}()

	zap.L().Info("Settlement engine running",
		zap.Duration("reconcile_interval", cfg.Engine.ReconcileInterval),
		zap.Duration("tip_sweep_interval", cfg.Engine.TipSweepInterval),
		zap.Duration("confirm_interval", cfg.Engine.ConfirmPollInterval))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	zap.L().Info("Received shutdown signal", zap.String("signal", sig.String()))

	close(stopChan)
	cancel()
	reconciler.Stop()
	wg.Wait()

	zap.L().Info("Settlement engine stopped")
}

func sweepLoop(ctx context.Context, services *common.Services, interval time.Duration, stopChan <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := services.Tips.SweepExpired(ctx); err != nil {
				zap.L().Error("Tip expiry sweep failed", zap.Error(err))
			}
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func confirmLoop(ctx context.Context, services *common.Services, interval time.Duration, stopChan <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := services.Withdrawals.Poll(ctx); err != nil {
				zap.L().Error("Withdrawal confirmation poll failed", zap.Error(err))
			}
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
