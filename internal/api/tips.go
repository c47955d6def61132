package api

import (
	"context"

	"justthetip/internal/models"

	"github.com/shopspring/decimal"
)

type CreateTransferRequest struct {
	FromUser string          `json:"from_user"`
	ToUser   string          `json:"to_user"`
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
}

type TransferResponse struct {
	Result
	Tip      *models.PendingTransfer `json:"tip,omitempty"`
	Transfer *models.TransferRecord  `json:"transfer,omitempty"`
}

// CreateTransfer opens a pending tip from one user to another.
func (s *Service) CreateTransfer(ctx context.Context, req CreateTransferRequest) TransferResponse {
	if req.FromUser == "" || req.ToUser == "" || req.Asset == "" {
		return TransferResponse{Result: badRequest("from_user, to_user and asset are required")}
	}

	tip, err := s.tips.Create(ctx, req.FromUser, req.ToUser, req.Asset, req.Amount)
	if err != nil {
		return TransferResponse{Result: fail(err)}
	}
	return TransferResponse{Result: ok(), Tip: tip}
}

// ConfirmTransfer applies a pending tip. Actor must be the tip's sender.
func (s *Service) ConfirmTransfer(ctx context.Context, tipId, actor string) TransferResponse {
	if tipId == "" || actor == "" {
		return TransferResponse{Result: badRequest("tip_id and actor are required")}
	}

	record, err := s.tips.Confirm(ctx, tipId, actor)
	if err != nil {
		return TransferResponse{Result: fail(err)}
	}
	return TransferResponse{Result: ok(), Transfer: record}
}

// CancelTransfer voids a pending tip. Actor must be the tip's sender.
func (s *Service) CancelTransfer(ctx context.Context, tipId, actor string) TransferResponse {
	if tipId == "" || actor == "" {
		return TransferResponse{Result: badRequest("tip_id and actor are required")}
	}

	if err := s.tips.Cancel(ctx, tipId, actor); err != nil {
		return TransferResponse{Result: fail(err)}
	}
	return TransferResponse{Result: ok()}
}

// GetTransfer returns a tip by id.
func (s *Service) GetTransfer(ctx context.Context, tipId string) TransferResponse {
	if tipId == "" {
		return TransferResponse{Result: badRequest("tip_id is required")}
	}

	tip, err := s.tips.Get(ctx, tipId)
	if err != nil {
		return TransferResponse{Result: fail(err)}
	}
	return TransferResponse{Result: ok(), Tip: tip}
}
