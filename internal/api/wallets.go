package api

import (
	"context"

	"justthetip/internal/models"

	"github.com/shopspring/decimal"
)

type LinkWalletRequest struct {
	UserId  string `json:"user_id"`
	Asset   string `json:"asset"`
	Address string `json:"address"`
}

type WalletResponse struct {
	Result
	Link *models.WalletLink `json:"link,omitempty"`
}

type FaucetResponse struct {
	Result
	Signature string `json:"signature,omitempty"`
}

// LinkWallet registers an external address for deposit detection and records
// its current balance as the reconciliation baseline.
func (s *Service) LinkWallet(ctx context.Context, req LinkWalletRequest) WalletResponse {
	if req.UserId == "" || req.Asset == "" || req.Address == "" {
		return WalletResponse{Result: badRequest("user_id, asset and address are required")}
	}

	link, err := s.wallets.Link(ctx, req.UserId, req.Asset, req.Address)
	if err != nil {
		return WalletResponse{Result: fail(err)}
	}
	return WalletResponse{Result: ok(), Link: link}
}

// GetWallet returns the user's linked wallet for a chain.
func (s *Service) GetWallet(ctx context.Context, userId, chainName string) WalletResponse {
	if userId == "" || chainName == "" {
		return WalletResponse{Result: badRequest("user_id and chain are required")}
	}

	link, err := s.wallets.Linked(ctx, userId, chainName)
	if err != nil {
		return WalletResponse{Result: fail(err)}
	}
	return WalletResponse{Result: ok(), Link: link}
}

// RequestTestFunds asks the devnet faucet to fund an address. The deposit
// reconciler picks the credit up on its next sweep.
func (s *Service) RequestTestFunds(ctx context.Context, address string, amount decimal.Decimal) FaucetResponse {
	if address == "" {
		return FaucetResponse{Result: badRequest("address is required")}
	}

	signature, err := s.client.RequestTestFunds(ctx, address, amount)
	if err != nil {
		return FaucetResponse{Result: fail(err)}
	}
	return FaucetResponse{Result: ok(), Signature: signature}
}
