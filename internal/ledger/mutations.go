package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"justthetip/internal/models"
	"justthetip/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// lockStripes is sized so unrelated users almost never contend while keeping
// the lock table bounded.
const lockStripes = 64

// keyLocks serializes read-modify-write cycles per (user, asset) key.
// Operations on different keys proceed concurrently; a transfer acquires
// both endpoint stripes in index order to avoid lock inversion. Stripes are
// held only around the in-memory and database mutation, never across
// network I/O.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{}
}

func (k *keyLocks) index(userId, asset string) int {
	h := fnv.New32a()
	h.Write([]byte(userId))
	h.Write([]byte{0})
	h.Write([]byte(asset))
	return int(h.Sum32() % lockStripes)
}

func (k *keyLocks) lock(idx int) func() {
	k.stripes[idx].Lock()
	return k.stripes[idx].Unlock
}

// lockPair acquires two stripes in ascending index order. Equal indices
// collapse to a single acquisition.
func (k *keyLocks) lockPair(a, b int) func() {
	if a == b {
		return k.lock(a)
	}
	if a > b {
		a, b = b, a
	}
	k.stripes[a].Lock()
	k.stripes[b].Lock()
	return func() {
		k.stripes[b].Unlock()
		k.stripes[a].Unlock()
	}
}

// Credit atomically adds amount to the (user, asset) balance. The balance
// row is created lazily on first credit.
func (s *Service) Credit(ctx context.Context, p store.MutationParams) (*models.Transaction, error) {
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("credit amount must be positive, got %s", p.Amount.String())
	}

	unlock := s.locks.lock(s.locks.index(p.UserId, p.Asset))
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := s.applyMutationTx(ctx, tx, p, p.Amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit credit: %w", err)
	}
	return record, nil
}

// Debit atomically subtracts amount from the (user, asset) balance. Fails
// with ErrInsufficientBalance when amount exceeds the current balance; the
// balance can never go negative.
func (s *Service) Debit(ctx context.Context, p store.MutationParams) (*models.Transaction, error) {
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("debit amount must be positive, got %s", p.Amount.String())
	}

	unlock := s.locks.lock(s.locks.index(p.UserId, p.Asset))
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := s.applyMutationTx(ctx, tx, p, p.Amount.Neg())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit debit: %w", err)
	}
	return record, nil
}

// Transfer moves amount from one user to another as a single atomic
// operation: the debit and credit land in one database transaction along
// with exactly one transfer record. If the debit fails nothing is written.
func (s *Service) Transfer(ctx context.Context, fromUser, toUser, asset string, amount decimal.Decimal) (*models.TransferRecord, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("transfer amount must be positive, got %s", amount.String())
	}
	if fromUser == toUser {
		return nil, fmt.Errorf("cannot transfer to self")
	}

	unlock := s.locks.lockPair(
		s.locks.index(fromUser, asset),
		s.locks.index(toUser, asset),
	)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := s.transferTx(ctx, tx, fromUser, toUser, asset, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}

	zap.L().Info("Transfer applied",
		zap.String("transfer_id", record.Id),
		zap.String("from_user", fromUser),
		zap.String("to_user", toUser),
		zap.String("asset", asset),
		zap.String("amount", amount.String()))

	return record, nil
}

// ApplyPendingTransfer claims a pending tip and applies its transfer in one
// database transaction. The claim is the guarded pending-to-confirmed
// transition: zero rows means the tip already left pending and nothing is
// written. A failing transfer rolls the claim back with it, so a confirmed
// tip without its balance movement cannot exist, not even across a crash.
func (s *Service) ApplyPendingTransfer(ctx context.Context, tipId, fromUser, toUser, asset string, amount decimal.Decimal) (*models.TransferRecord, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("transfer amount must be positive, got %s", amount.String())
	}
	if fromUser == toUser {
		return nil, fmt.Errorf("cannot transfer to self")
	}

	unlock := s.locks.lockPair(
		s.locks.index(fromUser, asset),
		s.locks.index(toUser, asset),
	)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, queryTransitionPendingTransfer, string(models.TipConfirmed), "", tipId)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending transfer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: pending transfer %s is not pending", store.ErrInvalidState, tipId)
	}

	record, err := s.transferTx(ctx, tx, fromUser, toUser, asset, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pending transfer: %w", err)
	}

	zap.L().Info("Transfer applied",
		zap.String("tip_id", tipId),
		zap.String("transfer_id", record.Id),
		zap.String("from_user", fromUser),
		zap.String("to_user", toUser),
		zap.String("asset", asset),
		zap.String("amount", amount.String()))

	return record, nil
}

// transferTx writes the debit, credit, and transfer record inside an open
// transaction.
func (s *Service) transferTx(ctx context.Context, tx *sql.Tx, fromUser, toUser, asset string, amount decimal.Decimal) (*models.TransferRecord, error) {
	recordId := uuid.New().String()
	reference := fmt.Sprintf("tip %s -> %s", fromUser, toUser)

	if _, err := s.applyMutationTx(ctx, tx, store.MutationParams{
		UserId:    fromUser,
		Asset:     asset,
		Type:      "tip-out",
		Amount:    amount,
		Reference: reference,
	}, amount.Neg()); err != nil {
		return nil, err
	}

	if _, err := s.applyMutationTx(ctx, tx, store.MutationParams{
		UserId:    toUser,
		Asset:     asset,
		Type:      "tip-in",
		Amount:    amount,
		Reference: reference,
	}, amount); err != nil {
		return nil, err
	}

	appliedAt := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, queryInsertTransferRecord,
		recordId, fromUser, toUser, asset, amount.String(), appliedAt); err != nil {
		return nil, fmt.Errorf("failed to insert transfer record: %w", err)
	}

	return &models.TransferRecord{
		Id:        recordId,
		FromUser:  fromUser,
		ToUser:    toUser,
		Asset:     asset,
		Amount:    amount,
		AppliedAt: appliedAt,
	}, nil
}

// CreditWithObservation credits a detected deposit delta and advances the
// reconciliation baseline in the same database transaction. The baseline
// update is guarded on expectedBalance, the value the caller computed the
// delta from: a crash retry re-reads the advanced baseline and sees a zero
// delta, and a racing sweep loses the guard and gets
// ErrConcurrentModification with nothing written.
func (s *Service) CreditWithObservation(ctx context.Context, p store.MutationParams, obs models.DepositObservation, expectedBalance decimal.Decimal) (*models.Transaction, error) {
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("deposit credit must be positive, got %s", p.Amount.String())
	}

	unlock := s.locks.lock(s.locks.index(p.UserId, p.Asset))
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := s.applyMutationTx(ctx, tx, p, p.Amount)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, queryAdvanceObservation,
		obs.LastKnownBalance.String(), obs.LastCheckedAt,
		obs.Address, obs.Asset, expectedBalance.String())
	if err != nil {
		return nil, fmt.Errorf("failed to advance deposit observation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("deposit baseline moved under us - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deposit credit: %w", err)
	}
	return record, nil
}

// applyMutationTx performs one signed balance mutation inside an open
// transaction. signed is the delta to apply (already negated for debits);
// p.Amount stays positive for validation and logging.
func (s *Service) applyMutationTx(ctx context.Context, tx *sql.Tx, p store.MutationParams, signed decimal.Decimal) (*models.Transaction, error) {
	// External idempotency: a known external transaction id means this
	// mutation already happened.
	if p.ExternalTxId != "" {
		var existingTxId string
		err := tx.QueryRowContext(ctx, queryCheckDuplicateTransaction, p.ExternalTxId).Scan(&existingTxId)
		if err == nil {
			zap.L().Warn("Duplicate external transaction id detected, skipping",
				zap.String("external_tx_id", p.ExternalTxId),
				zap.String("existing_internal_tx_id", existingTxId))
			return nil, fmt.Errorf("%w: external_transaction_id %s already exists", store.ErrDuplicateTransaction, p.ExternalTxId)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to check for duplicate transaction: %w", err)
		}
	}

	var currentBalanceStr, accountId string
	var version int64

	err := tx.QueryRowContext(ctx, queryGetAccountBalance, p.UserId, p.Asset).Scan(&accountId, &currentBalanceStr, &version)

	var currentBalance decimal.Decimal
	switch {
	case errors.Is(err, sql.ErrNoRows):
		accountId = uuid.New().String()
		currentBalance = decimal.Zero
		version = 1
		if _, err := tx.ExecContext(ctx, queryInsertAccountBalance, accountId, p.UserId, p.Asset, "0", 1); err != nil {
			return nil, fmt.Errorf("failed to create account balance: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	default:
		currentBalance, err = decimal.NewFromString(currentBalanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse current balance %q: %w", currentBalanceStr, err)
		}
	}

	newBalance := currentBalance.Add(signed)
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("%w: balance=%s, requested=%s",
			store.ErrInsufficientBalance, currentBalance.String(), signed.Neg().String())
	}

	transactionId := uuid.New().String()
	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, queryInsertTransaction,
		transactionId, p.UserId, p.Asset, p.Type,
		signed.String(), currentBalance.String(), newBalance.String(),
		p.ExternalTxId, p.Address, p.Reference, "confirmed", now, now); err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance,
		newBalance.String(), transactionId, p.UserId, p.Asset, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	zap.L().Debug("Balance mutation applied",
		zap.String("transaction_id", transactionId),
		zap.String("user_id", p.UserId),
		zap.String("asset", p.Asset),
		zap.String("type", p.Type),
		zap.String("old_balance", currentBalance.String()),
		zap.String("new_balance", newBalance.String()))

	return &models.Transaction{
		Id:            transactionId,
		UserId:        p.UserId,
		Asset:         p.Asset,
		Type:          p.Type,
		Amount:        signed,
		BalanceBefore: currentBalance,
		BalanceAfter:  newBalance,
		ExternalTxId:  p.ExternalTxId,
		Address:       p.Address,
		Reference:     p.Reference,
		Status:        "confirmed",
		CreatedAt:     now,
		ProcessedAt:   now,
	}, nil
}
