package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"justthetip/internal/models"
)

// Load reads the engine configuration from the environment, applying
// defaults for everything except the hot wallet key (see HotWalletKey).
func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	rpcTimeout, err := getEnvDuration("RPC_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	reconcileInterval, err := getEnvDuration("RECONCILE_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	tipTTL, err := getEnvDuration("TIP_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	tipSweepInterval, err := getEnvDuration("TIP_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	confirmInterval, err := getEnvDuration("WITHDRAWAL_CONFIRM_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "justthetip.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Chain: models.ChainConfig{
			Endpoint:       getEnvString("RPC_ENDPOINT", "https://api.devnet.solana.com"),
			Network:        getEnvString("CHAIN_NETWORK", "devnet"),
			RequestTimeout: rpcTimeout,
			RateLimit:      getEnvFloat("RPC_RATE_LIMIT", 10),
			RateBurst:      getEnvInt("RPC_BURST", 20),
		},
		Engine: models.EngineConfig{
			ReconcileInterval:   reconcileInterval,
			ReconcileMaxWorkers: getEnvInt("RECONCILE_MAX_WORKERS", 4),
			TipTTL:              tipTTL,
			TipSweepInterval:    tipSweepInterval,
			ConfirmPollInterval: confirmInterval,
			MaxConfirmAttempts:  getEnvInt("WITHDRAWAL_MAX_CONFIRM_ATTEMPTS", 30),
			AssetsFile:          getEnvString("ASSETS_FILE", "assets.yaml"),
		},
	}, nil
}

// HotWalletKey returns the base58 hot wallet keypair, empty when unset.
// Read-only tools run without it.
func HotWalletKey() string {
	return os.Getenv("HOT_WALLET_PRIVATE_KEY")
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
