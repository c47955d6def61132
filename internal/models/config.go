package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Chain    ChainConfig
	Engine   EngineConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// ChainConfig holds blockchain client settings
type ChainConfig struct {
	Endpoint       string
	Network        string // mainnet, devnet, testnet
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second to the RPC node
	RateBurst      int
}

// EngineConfig holds the settlement engine's background-loop settings
type EngineConfig struct {
	ReconcileInterval   time.Duration
	ReconcileMaxWorkers int
	TipTTL              time.Duration
	TipSweepInterval    time.Duration
	ConfirmPollInterval time.Duration
	MaxConfirmAttempts  int
	AssetsFile          string
}
