package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"justthetip/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Service is the authoritative balance store plus the persistence layer for
// the settlement engine's records (pending transfers, withdrawals, wallet
// links, deposit observations). All monetary values are stored as decimal
// strings; nothing in this package ever touches a float.
type Service struct {
	db    *sql.DB
	locks *keyLocks
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db, locks: newKeyLocks()}
	if err := service.initSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Ledger service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	-- Account Balances (Current State - Hot Data)
	CREATE TABLE IF NOT EXISTS account_balances (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		last_transaction_id TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, asset)
	);

	-- Balance mutations (Audit Trail - Cold Data)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		external_transaction_id TEXT,
		address TEXT,
		reference TEXT,
		status TEXT DEFAULT 'confirmed',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Confirmed peer-to-peer transfers (append-only)
	CREATE TABLE IF NOT EXISTS transfer_records (
		id TEXT PRIMARY KEY,
		from_user TEXT NOT NULL,
		to_user TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- In-flight tips awaiting confirm/cancel/expiry
	CREATE TABLE IF NOT EXISTS pending_transfers (
		id TEXT PRIMARY KEY,
		from_user TEXT NOT NULL,
		to_user TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Withdrawal settlement records
	CREATE TABLE IF NOT EXISTS withdrawal_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		destination TEXT NOT NULL,
		status TEXT NOT NULL,
		chain_signature TEXT NOT NULL DEFAULT '',
		failure_reason TEXT NOT NULL DEFAULT '',
		confirm_attempts INTEGER NOT NULL DEFAULT 0,
		needs_review INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- One linked external address per (user, chain)
	CREATE TABLE IF NOT EXISTS wallet_links (
		user_id TEXT NOT NULL,
		chain TEXT NOT NULL,
		address TEXT NOT NULL,
		asset TEXT NOT NULL,
		linked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, chain)
	);

	-- Reconciliation baselines per linked address
	CREATE TABLE IF NOT EXISTS deposit_observations (
		address TEXT NOT NULL,
		asset TEXT NOT NULL,
		last_known_balance TEXT NOT NULL DEFAULT '0',
		last_checked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (address, asset)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_account_balances_user_asset ON account_balances(user_id, asset);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_asset ON transactions(user_id, asset);
	CREATE INDEX IF NOT EXISTS idx_transactions_external_id ON transactions(external_transaction_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_transfer_records_from ON transfer_records(from_user);
	CREATE INDEX IF NOT EXISTS idx_transfer_records_to ON transfer_records(to_user);
	CREATE INDEX IF NOT EXISTS idx_pending_transfers_status ON pending_transfers(status);
	CREATE INDEX IF NOT EXISTS idx_withdrawal_records_user ON withdrawal_records(user_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawal_records_status ON withdrawal_records(status);
	`

	_, err := s.db.Exec(schema)
	return err
}
