package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"justthetip/internal/models"
	"justthetip/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Ledger.
var _ store.Ledger = (*Service)(nil)

// GetBalance returns the current balance for a (user, asset) key without
// side effects. A missing row reads as zero.
func (s *Service) GetBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error) {
	var balanceStr string
	err := s.db.QueryRowContext(ctx, queryGetBalance, userId, asset).Scan(&balanceStr)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance %q: %w", balanceStr, err)
	}
	return balance, nil
}

// GetAllBalances returns all non-zero balances for a user.
func (s *Service) GetAllBalances(ctx context.Context, userId string) ([]models.AccountBalance, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAllUserBalances, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get all balances: %w", err)
	}
	defer closeRows(rows)

	var balances []models.AccountBalance
	for rows.Next() {
		var balance models.AccountBalance
		var balanceStr string
		var lastTxId sql.NullString
		if err := rows.Scan(&balance.Id, &balance.UserId, &balance.Asset, &balanceStr,
			&lastTxId, &balance.Version, &balance.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balance.LastTransactionId = lastTxId.String

		balance.Balance, err = decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance %q: %w", balanceStr, err)
		}
		balances = append(balances, balance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}
	return balances, nil
}

// GetTransactionHistory returns paginated mutation history for a user/asset.
func (s *Service) GetTransactionHistory(ctx context.Context, userId, asset string, limit, offset int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, userId, asset, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var amountStr, beforeStr, afterStr string
		var externalTxId, address, reference sql.NullString
		if err := rows.Scan(&tx.Id, &tx.UserId, &tx.Asset, &tx.Type,
			&amountStr, &beforeStr, &afterStr,
			&externalTxId, &address, &reference,
			&tx.Status, &tx.CreatedAt, &tx.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ExternalTxId = externalTxId.String
		tx.Address = address.String
		tx.Reference = reference.String

		if tx.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amountStr, err)
		}
		if tx.BalanceBefore, err = decimal.NewFromString(beforeStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance before %q: %w", beforeStr, err)
		}
		if tx.BalanceAfter, err = decimal.NewFromString(afterStr); err != nil {
			return nil, fmt.Errorf("failed to parse balance after %q: %w", afterStr, err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// GetTransferHistory returns confirmed tips sent or received by a user,
// newest first.
func (s *Service) GetTransferHistory(ctx context.Context, userId string, limit int) ([]models.TransferRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryGetTransferHistory, userId, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer history: %w", err)
	}
	defer closeRows(rows)

	var records []models.TransferRecord
	for rows.Next() {
		var rec models.TransferRecord
		var amountStr string
		if err := rows.Scan(&rec.Id, &rec.FromUser, &rec.ToUser, &rec.Asset, &amountStr, &rec.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer record: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("failed to parse transfer amount %q: %w", amountStr, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfer rows: %w", err)
	}
	return records, nil
}

// GetTransferTotals aggregates the user's applied tips per asset, sent and
// received separately.
func (s *Service) GetTransferTotals(ctx context.Context, userId string) ([]models.TransferTotals, error) {
	rows, err := s.db.QueryContext(ctx, queryGetTransferRows, userId, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer totals: %w", err)
	}
	defer closeRows(rows)

	byAsset := make(map[string]*models.TransferTotals)
	var order []string
	for rows.Next() {
		var fromUser, toUser, asset, amountStr string
		if err := rows.Scan(&fromUser, &toUser, &asset, &amountStr); err != nil {
			return nil, fmt.Errorf("failed to scan transfer row: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transfer amount %q: %w", amountStr, err)
		}

		totals, ok := byAsset[asset]
		if !ok {
			totals = &models.TransferTotals{Asset: asset}
			byAsset[asset] = totals
			order = append(order, asset)
		}
		if fromUser == userId {
			totals.Sent = totals.Sent.Add(amount)
			totals.SentCount++
		}
		if toUser == userId {
			totals.Received = totals.Received.Add(amount)
			totals.ReceivedCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfer rows: %w", err)
	}

	out := make([]models.TransferTotals, 0, len(order))
	for _, asset := range order {
		out = append(out, *byAsset[asset])
	}
	return out, nil
}

// ReconcileBalance verifies that the stored balance matches the sum of all
// confirmed mutations for the key.
func (s *Service) ReconcileBalance(ctx context.Context, userId, asset string) error {
	currentBalance, err := s.GetBalance(ctx, userId, asset)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryConfirmedTransactionAmounts, userId, asset)
	if err != nil {
		return fmt.Errorf("failed to read confirmed transactions: %w", err)
	}
	defer closeRows(rows)

	// Sum in Go so the comparison stays exact; SQLite would coerce the
	// decimal strings to floats.
	calculatedBalance := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return fmt.Errorf("failed to scan transaction amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse transaction amount %q: %w", amountStr, err)
		}
		calculatedBalance = calculatedBalance.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating transaction amounts: %w", err)
	}

	if !currentBalance.Equal(calculatedBalance) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.String("current_balance", currentBalance.String()),
			zap.String("calculated_balance", calculatedBalance.String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s",
			currentBalance.String(), calculatedBalance.String())
	}
	return nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
