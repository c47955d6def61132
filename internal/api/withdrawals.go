package api

import (
	"context"

	"justthetip/internal/models"

	"github.com/shopspring/decimal"
)

type WithdrawalRequest struct {
	UserId      string          `json:"user_id"`
	Asset       string          `json:"asset"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
}

type WithdrawalResponse struct {
	Result
	Withdrawal *models.WithdrawalRecord `json:"withdrawal,omitempty"`
}

// RequestWithdrawal validates and submits a withdrawal to the chain. The
// returned record is submitted, not yet settled; poll GetWithdrawalStatus.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) WithdrawalResponse {
	if req.UserId == "" || req.Asset == "" || req.Destination == "" {
		return WithdrawalResponse{Result: badRequest("user_id, asset and destination are required")}
	}

	record, err := s.withdrawals.Request(ctx, req.UserId, req.Asset, req.Destination, req.Amount)
	if err != nil {
		return WithdrawalResponse{Result: fail(err)}
	}
	return WithdrawalResponse{Result: ok(), Withdrawal: record}
}

// GetWithdrawalStatus returns the current settlement state of a withdrawal.
func (s *Service) GetWithdrawalStatus(ctx context.Context, withdrawalId string) WithdrawalResponse {
	if withdrawalId == "" {
		return WithdrawalResponse{Result: badRequest("withdrawal_id is required")}
	}

	record, err := s.withdrawals.Status(ctx, withdrawalId)
	if err != nil {
		return WithdrawalResponse{Result: fail(err)}
	}
	return WithdrawalResponse{Result: ok(), Withdrawal: record}
}
