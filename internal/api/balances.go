package api

import (
	"context"

	"justthetip/internal/models"

	"github.com/shopspring/decimal"
)

type BalanceResponse struct {
	Result
	UserId  string          `json:"user_id,omitempty"`
	Asset   string          `json:"asset,omitempty"`
	Balance decimal.Decimal `json:"balance"`
}

type BalancesResponse struct {
	Result
	UserId   string                  `json:"user_id,omitempty"`
	Balances []models.AccountBalance `json:"balances,omitempty"`
}

type HistoryResponse struct {
	Result
	Transactions []models.Transaction    `json:"transactions,omitempty"`
	Transfers    []models.TransferRecord `json:"transfers,omitempty"`
}

type TotalsResponse struct {
	Result
	UserId string                  `json:"user_id,omitempty"`
	Totals []models.TransferTotals `json:"totals,omitempty"`
}

// GetBalance returns the user's balance for one asset. Unknown users and
// assets read as zero.
func (s *Service) GetBalance(ctx context.Context, userId, asset string) BalanceResponse {
	if userId == "" || asset == "" {
		return BalanceResponse{Result: badRequest("user_id and asset are required")}
	}

	balance, err := s.ledger.GetBalance(ctx, userId, asset)
	if err != nil {
		return BalanceResponse{Result: fail(err)}
	}
	return BalanceResponse{Result: ok(), UserId: userId, Asset: asset, Balance: balance}
}

// GetBalances returns all non-zero balances for a user.
func (s *Service) GetBalances(ctx context.Context, userId string) BalancesResponse {
	if userId == "" {
		return BalancesResponse{Result: badRequest("user_id is required")}
	}

	balances, err := s.ledger.GetAllBalances(ctx, userId)
	if err != nil {
		return BalancesResponse{Result: fail(err)}
	}
	return BalancesResponse{Result: ok(), UserId: userId, Balances: balances}
}

// GetTransactionHistory returns paginated ledger mutations for a user and
// asset, newest first.
func (s *Service) GetTransactionHistory(ctx context.Context, userId, asset string, limit, offset int) HistoryResponse {
	if userId == "" || asset == "" {
		return HistoryResponse{Result: badRequest("user_id and asset are required")}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.ledger.GetTransactionHistory(ctx, userId, asset, limit, offset)
	if err != nil {
		return HistoryResponse{Result: fail(err)}
	}
	return HistoryResponse{Result: ok(), Transactions: transactions}
}

// GetTransferHistory returns the user's tips, sent and received, newest
// first.
func (s *Service) GetTransferHistory(ctx context.Context, userId string, limit int) HistoryResponse {
	if userId == "" {
		return HistoryResponse{Result: badRequest("user_id is required")}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	transfers, err := s.tips.History(ctx, userId, limit)
	if err != nil {
		return HistoryResponse{Result: fail(err)}
	}
	return HistoryResponse{Result: ok(), Transfers: transfers}
}

// GetTransferTotals returns the user's lifetime tip totals per asset.
func (s *Service) GetTransferTotals(ctx context.Context, userId string) TotalsResponse {
	if userId == "" {
		return TotalsResponse{Result: badRequest("user_id is required")}
	}

	totals, err := s.tips.Totals(ctx, userId)
	if err != nil {
		return TotalsResponse{Result: fail(err)}
	}
	return TotalsResponse{Result: ok(), UserId: userId, Totals: totals}
}
