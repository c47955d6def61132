package ledger

const (
	// Balance queries
	queryGetBalance = `
		SELECT balance
		FROM account_balances
		WHERE user_id = ? AND asset = ?`

	queryGetAllUserBalances = `
		SELECT id, user_id, asset, balance, last_transaction_id, version, updated_at
		FROM account_balances
		WHERE user_id = ? AND balance != '0'
		ORDER BY asset`

	queryGetAccountBalance = `
		SELECT id, balance, version
		FROM account_balances
		WHERE user_id = ? AND asset = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, user_id, asset, balance, version)
		VALUES (?, ?, ?, ?, ?)`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, last_transaction_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND asset = ? AND version = ?`

	// Transaction queries
	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE external_transaction_id = ? LIMIT 1`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, asset, transaction_type, amount, balance_before, balance_after,
			external_transaction_id, address, reference, status, created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, user_id, asset, transaction_type, amount, balance_before, balance_after,
		       external_transaction_id, address, reference, status, created_at, processed_at
		FROM transactions
		WHERE user_id = ? AND asset = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryConfirmedTransactionAmounts = `
		SELECT amount
		FROM transactions
		WHERE user_id = ? AND asset = ? AND status = 'confirmed'`

	// Transfer record queries
	queryInsertTransferRecord = `
		INSERT INTO transfer_records (id, from_user, to_user, asset, amount, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetTransferHistory = `
		SELECT id, from_user, to_user, asset, amount, applied_at
		FROM transfer_records
		WHERE from_user = ? OR to_user = ?
		ORDER BY applied_at DESC
		LIMIT ?`

	// Amounts are summed in Go so they stay decimal; a SQL SUM would
	// coerce the text column to float.
	queryGetTransferRows = `
		SELECT from_user, to_user, asset, amount
		FROM transfer_records
		WHERE from_user = ? OR to_user = ?`

	// Pending transfer queries
	queryInsertPendingTransfer = `
		INSERT INTO pending_transfers (id, from_user, to_user, asset, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetPendingTransfer = `
		SELECT id, from_user, to_user, asset, amount, status, reason, created_at
		FROM pending_transfers
		WHERE id = ?`

	// Guarded transition: only fires while the row is still pending, so a
	// second confirm or cancel affects zero rows.
	queryTransitionPendingTransfer = `
		UPDATE pending_transfers
		SET status = ?, reason = ?
		WHERE id = ? AND status = 'pending'`

	queryExpirePendingTransfers = `
		UPDATE pending_transfers
		SET status = 'expired'
		WHERE status = 'pending' AND created_at < ?`

	// Withdrawal queries
	queryInsertWithdrawal = `
		INSERT INTO withdrawal_records (
			id, user_id, asset, amount, destination, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetWithdrawal = `
		SELECT id, user_id, asset, amount, destination, status, chain_signature,
		       failure_reason, confirm_attempts, needs_review, created_at, updated_at
		FROM withdrawal_records
		WHERE id = ?`

	queryUpdateWithdrawal = `
		UPDATE withdrawal_records
		SET status = ?, chain_signature = ?, failure_reason = ?, confirm_attempts = ?,
		    needs_review = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryListSubmittedWithdrawals = `
		SELECT id, user_id, asset, amount, destination, status, chain_signature,
		       failure_reason, confirm_attempts, needs_review, created_at, updated_at
		FROM withdrawal_records
		WHERE status = 'submitted' AND needs_review = 0
		ORDER BY created_at`

	// Wallet link queries
	queryUpsertWalletLink = `
		INSERT INTO wallet_links (user_id, chain, address, asset, linked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, chain) DO UPDATE SET
			address = excluded.address,
			asset = excluded.asset,
			linked_at = excluded.linked_at`

	queryGetWalletLink = `
		SELECT user_id, chain, address, asset, linked_at
		FROM wallet_links
		WHERE user_id = ? AND chain = ?`

	queryListWalletLinks = `
		SELECT user_id, chain, address, asset, linked_at
		FROM wallet_links
		ORDER BY linked_at`

	// Deposit observation queries
	queryUpsertObservation = `
		INSERT INTO deposit_observations (address, asset, last_known_balance, last_checked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address, asset) DO UPDATE SET
			last_known_balance = excluded.last_known_balance,
			last_checked_at = excluded.last_checked_at`

	// Guarded advance: only fires while the baseline still holds the value
	// the caller observed, so two sweeps crediting the same delta race to
	// a single winner.
	queryAdvanceObservation = `
		UPDATE deposit_observations
		SET last_known_balance = ?, last_checked_at = ?
		WHERE address = ? AND asset = ? AND last_known_balance = ?`

	queryGetObservation = `
		SELECT address, asset, last_known_balance, last_checked_at
		FROM deposit_observations
		WHERE address = ? AND asset = ?`
)
