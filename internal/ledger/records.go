package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"justthetip/internal/models"
	"justthetip/internal/store"

	"github.com/shopspring/decimal"
)

// InsertPendingTransfer persists a freshly created tip in the pending state.
func (s *Service) InsertPendingTransfer(ctx context.Context, pt *models.PendingTransfer) error {
	_, err := s.db.ExecContext(ctx, queryInsertPendingTransfer,
		pt.Id, pt.FromUser, pt.ToUser, pt.Asset, pt.Amount.String(), string(pt.Status), pt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pending transfer: %w", err)
	}
	return nil
}

// GetPendingTransfer loads a tip by id, or store.ErrNotFound.
func (s *Service) GetPendingTransfer(ctx context.Context, id string) (*models.PendingTransfer, error) {
	var pt models.PendingTransfer
	var amountStr, status string
	err := s.db.QueryRowContext(ctx, queryGetPendingTransfer, id).Scan(
		&pt.Id, &pt.FromUser, &pt.ToUser, &pt.Asset, &amountStr, &status, &pt.Reason, &pt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pending transfer %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transfer: %w", err)
	}
	if pt.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse tip amount %q: %w", amountStr, err)
	}
	pt.Status = models.TipStatus(status)
	return &pt, nil
}

// TransitionPendingTransfer moves a tip from pending into a terminal state.
// Returns store.ErrInvalidState when the tip already left pending, which is
// what makes a duplicate confirm a no-op instead of a double-apply.
func (s *Service) TransitionPendingTransfer(ctx context.Context, id string, to models.TipStatus, reason string) error {
	if !to.Terminal() {
		return fmt.Errorf("cannot transition tip %s to non-terminal state %s", id, to)
	}

	result, err := s.db.ExecContext(ctx, queryTransitionPendingTransfer, string(to), reason, id)
	if err != nil {
		return fmt.Errorf("failed to transition pending transfer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: pending transfer %s is not pending", store.ErrInvalidState, id)
	}
	return nil
}

// ExpirePendingTransfers marks all pending tips created before the cutoff
// as expired, returning how many were swept.
func (s *Service) ExpirePendingTransfers(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryExpirePendingTransfers, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending transfers: %w", err)
	}
	return result.RowsAffected()
}

// InsertWithdrawal persists a validated withdrawal record.
func (s *Service) InsertWithdrawal(ctx context.Context, w *models.WithdrawalRecord) error {
	_, err := s.db.ExecContext(ctx, queryInsertWithdrawal,
		w.Id, w.UserId, w.Asset, w.Amount.String(), w.Destination, string(w.Status), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal record: %w", err)
	}
	return nil
}

// UpdateWithdrawal writes the current settlement state of a withdrawal.
func (s *Service) UpdateWithdrawal(ctx context.Context, w *models.WithdrawalRecord) error {
	needsReview := 0
	if w.NeedsReview {
		needsReview = 1
	}
	_, err := s.db.ExecContext(ctx, queryUpdateWithdrawal,
		string(w.Status), w.ChainSignature, w.FailureReason, w.ConfirmAttempts, needsReview, w.Id)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal record: %w", err)
	}
	return nil
}

// GetWithdrawal loads a withdrawal record by id, or store.ErrNotFound.
func (s *Service) GetWithdrawal(ctx context.Context, id string) (*models.WithdrawalRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetWithdrawal, id)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, id)
	}
	return w, err
}

// ListSubmittedWithdrawals returns withdrawals awaiting chain confirmation,
// oldest first, excluding those flagged for manual review.
func (s *Service) ListSubmittedWithdrawals(ctx context.Context) ([]models.WithdrawalRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryListSubmittedWithdrawals)
	if err != nil {
		return nil, fmt.Errorf("failed to list submitted withdrawals: %w", err)
	}
	defer closeRows(rows)

	var records []models.WithdrawalRecord
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row rowScanner) (*models.WithdrawalRecord, error) {
	var w models.WithdrawalRecord
	var amountStr, status string
	var needsReview int
	err := row.Scan(&w.Id, &w.UserId, &w.Asset, &amountStr, &w.Destination, &status,
		&w.ChainSignature, &w.FailureReason, &w.ConfirmAttempts, &needsReview,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if w.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse withdrawal amount %q: %w", amountStr, err)
	}
	w.Status = models.WithdrawalStatus(status)
	w.NeedsReview = needsReview != 0
	return &w, nil
}

// UpsertWalletLink stores a user's linked address for a chain, replacing any
// previous link on the same chain.
func (s *Service) UpsertWalletLink(ctx context.Context, link *models.WalletLink) error {
	_, err := s.db.ExecContext(ctx, queryUpsertWalletLink,
		link.UserId, link.Chain, link.Address, link.Asset, link.LinkedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert wallet link: %w", err)
	}
	return nil
}

// GetWalletLink returns the link for (user, chain), or store.ErrWalletNotLinked.
func (s *Service) GetWalletLink(ctx context.Context, userId, chain string) (*models.WalletLink, error) {
	var link models.WalletLink
	err := s.db.QueryRowContext(ctx, queryGetWalletLink, userId, chain).Scan(
		&link.UserId, &link.Chain, &link.Address, &link.Asset, &link.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s on chain %s", store.ErrWalletNotLinked, userId, chain)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet link: %w", err)
	}
	return &link, nil
}

// ListWalletLinks returns every active link, oldest first.
func (s *Service) ListWalletLinks(ctx context.Context) ([]models.WalletLink, error) {
	rows, err := s.db.QueryContext(ctx, queryListWalletLinks)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet links: %w", err)
	}
	defer closeRows(rows)

	var links []models.WalletLink
	for rows.Next() {
		var link models.WalletLink
		if err := rows.Scan(&link.UserId, &link.Chain, &link.Address, &link.Asset, &link.LinkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet link rows: %w", err)
	}
	return links, nil
}

// UpsertObservation writes a reconciliation baseline outside of a credit
// (link time and negative-delta paths).
func (s *Service) UpsertObservation(ctx context.Context, obs *models.DepositObservation) error {
	_, err := s.db.ExecContext(ctx, queryUpsertObservation,
		obs.Address, obs.Asset, obs.LastKnownBalance.String(), obs.LastCheckedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert deposit observation: %w", err)
	}
	return nil
}

// GetObservation returns the baseline for (address, asset), or store.ErrNotFound.
func (s *Service) GetObservation(ctx context.Context, address, asset string) (*models.DepositObservation, error) {
	var obs models.DepositObservation
	var balanceStr string
	err := s.db.QueryRowContext(ctx, queryGetObservation, address, asset).Scan(
		&obs.Address, &obs.Asset, &balanceStr, &obs.LastCheckedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: observation for %s/%s", store.ErrNotFound, address, asset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit observation: %w", err)
	}
	if obs.LastKnownBalance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse observation balance %q: %w", balanceStr, err)
	}
	return &obs, nil
}
