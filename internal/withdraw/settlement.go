package withdraw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"justthetip/internal/assets"
	"justthetip/internal/chain"
	"justthetip/internal/ledger"
	"justthetip/internal/models"
	"justthetip/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Settlement moves ledger funds onto the chain. The ledger debit happens only
// after the chain reports the transaction confirmed, keyed by the chain
// signature so a crashed and restarted poller can never debit twice.
type Settlement struct {
	ledger      *ledger.Service
	client      chain.Client
	assets      *assets.Registry
	maxAttempts int
}

func NewSettlement(ledgerSvc *ledger.Service, client chain.Client, registry *assets.Registry, maxAttempts int) *Settlement {
	return &Settlement{
		ledger:      ledgerSvc,
		client:      client,
		assets:      registry,
		maxAttempts: maxAttempts,
	}
}

// Request validates and submits a withdrawal. On return the record is
// "submitted" with a chain signature, or "failed" with no ledger mutation.
func (s *Settlement) Request(ctx context.Context, userId, symbol, destination string, amount decimal.Decimal) (*models.WithdrawalRecord, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %s", amount.String())
	}

	asset, err := s.assets.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	if !asset.SettlementSupported {
		return nil, fmt.Errorf("%w: %s withdrawals are not settled on-chain", store.ErrAssetNotSupported, asset.Symbol)
	}
	if !s.client.IsValidAddress(destination) {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidAddress, destination)
	}
	if amount.LessThan(asset.MinWithdrawal()) {
		return nil, fmt.Errorf("%w: minimum withdrawal is %s %s",
			store.ErrBelowMinimum, asset.MinWithdrawal().String(), asset.Symbol)
	}

	balance, err := s.ledger.GetBalance(ctx, userId, asset.Symbol)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance=%s, requested=%s",
			store.ErrInsufficientBalance, balance.String(), amount.String())
	}

	now := time.Now().UTC()
	record := &models.WithdrawalRecord{
		Id:          uuid.New().String(),
		UserId:      userId,
		Asset:       asset.Symbol,
		Amount:      amount,
		Destination: destination,
		Status:      models.WithdrawalValidated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.ledger.InsertWithdrawal(ctx, record); err != nil {
		return nil, err
	}

	signature, err := s.client.Send(ctx, destination, amount, *asset)
	if err != nil {
		record.Status = models.WithdrawalFailed
		record.FailureReason = err.Error()
		if updateErr := s.ledger.UpdateWithdrawal(ctx, record); updateErr != nil {
			zap.L().Error("Failed to mark withdrawal failed",
				zap.String("withdrawal_id", record.Id), zap.Error(updateErr))
		}
		return nil, fmt.Errorf("%w: %s", store.ErrSettlementFailed, err)
	}

	record.Status = models.WithdrawalSubmitted
	record.ChainSignature = signature
	if err := s.ledger.UpdateWithdrawal(ctx, record); err != nil {
		return nil, err
	}

	zap.L().Info("Submitted withdrawal",
		zap.String("withdrawal_id", record.Id),
		zap.String("user_id", userId),
		zap.String("asset", asset.Symbol),
		zap.String("amount", amount.String()),
		zap.String("signature", signature))

	return record, nil
}

// Confirm advances one submitted withdrawal. Chain-confirmed withdrawals get
// the ledger debit (idempotent on the signature) and move to confirmed.
// Still-pending ones burn a confirmation attempt; past maxAttempts they are
// parked for manual review, as are confirmed ones whose debit keeps
// failing. Pending outcomes surface as store.ErrConfirmationPending.
func (s *Settlement) Confirm(ctx context.Context, withdrawalId string) (*models.WithdrawalRecord, error) {
	record, err := s.ledger.GetWithdrawal(ctx, withdrawalId)
	if err != nil {
		return nil, err
	}
	if record.Status != models.WithdrawalSubmitted {
		return nil, fmt.Errorf("%w: withdrawal %s is %s", store.ErrInvalidState, withdrawalId, record.Status)
	}

	status, err := s.client.Confirm(ctx, record.ChainSignature)
	if err != nil {
		return nil, fmt.Errorf("unable to check confirmation for %s: %w", record.ChainSignature, err)
	}

	switch status {
	case chain.StatusConfirmed:
		return s.settle(ctx, record)

	case chain.StatusFailed:
		record.Status = models.WithdrawalFailed
		record.FailureReason = "transaction failed on chain"
		if err := s.ledger.UpdateWithdrawal(ctx, record); err != nil {
			return nil, err
		}
		zap.L().Warn("Withdrawal failed on chain",
			zap.String("withdrawal_id", record.Id),
			zap.String("signature", record.ChainSignature))
		return record, nil

	default:
		record.ConfirmAttempts++
		if record.ConfirmAttempts > s.maxAttempts {
			record.NeedsReview = true
			zap.L().Warn("Withdrawal parked for manual review",
				zap.String("withdrawal_id", record.Id),
				zap.Int("attempts", record.ConfirmAttempts))
		}
		if err := s.ledger.UpdateWithdrawal(ctx, record); err != nil {
			return nil, err
		}
		return record, fmt.Errorf("%w: withdrawal %s, attempt %d",
			store.ErrConfirmationPending, record.Id, record.ConfirmAttempts)
	}
}

func (s *Settlement) settle(ctx context.Context, record *models.WithdrawalRecord) (*models.WithdrawalRecord, error) {
	_, err := s.ledger.Debit(ctx, store.MutationParams{
		UserId:       record.UserId,
		Asset:        record.Asset,
		Type:         "withdrawal",
		Amount:       record.Amount,
		ExternalTxId: record.ChainSignature,
		Address:      record.Destination,
		Reference:    fmt.Sprintf("withdrawal %s", record.Id),
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
		// The chain transfer has settled but the ledger debit did not land,
		// for example the user spent the funds between submit and confirm.
		// Retry on later polls, but bounded: this inconsistency cannot heal
		// itself, so past maxAttempts it goes to manual review.
		record.ConfirmAttempts++
		if record.ConfirmAttempts > s.maxAttempts {
			record.NeedsReview = true
			zap.L().Error("Withdrawal settled on chain but ledger debit keeps failing, parking for manual review",
				zap.String("withdrawal_id", record.Id),
				zap.String("user_id", record.UserId),
				zap.Int("attempts", record.ConfirmAttempts),
				zap.Error(err))
		}
		if updateErr := s.ledger.UpdateWithdrawal(ctx, record); updateErr != nil {
			zap.L().Error("Failed to record debit failure",
				zap.String("withdrawal_id", record.Id), zap.Error(updateErr))
		}
		return nil, err
	}

	record.Status = models.WithdrawalConfirmed
	if err := s.ledger.UpdateWithdrawal(ctx, record); err != nil {
		return nil, err
	}

	zap.L().Info("Settled withdrawal",
		zap.String("withdrawal_id", record.Id),
		zap.String("user_id", record.UserId),
		zap.String("amount", record.Amount.String()),
		zap.String("signature", record.ChainSignature))

	return record, nil
}

// Poll runs Confirm over every submitted withdrawal not held for review.
func (s *Settlement) Poll(ctx context.Context) error {
	records, err := s.ledger.ListSubmittedWithdrawals(ctx)
	if err != nil {
		return err
	}

	for i := range records {
		if _, err := s.Confirm(ctx, records[i].Id); err != nil {
			if errors.Is(err, store.ErrConfirmationPending) {
				continue
			}
			zap.L().Error("Withdrawal confirmation error",
				zap.String("withdrawal_id", records[i].Id), zap.Error(err))
		}
	}
	return nil
}

// Status returns the current state of a withdrawal.
func (s *Settlement) Status(ctx context.Context, withdrawalId string) (*models.WithdrawalRecord, error) {
	return s.ledger.GetWithdrawal(ctx, withdrawalId)
}
