package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetWalletByProvider retrieves a provider's wallet, nil if none exists yet
func (s *Store) GetWalletByProvider(ctx context.Context, providerID int64) (*models.ProviderWallet, error) {
	var wallet models.ProviderWallet
	err := s.db.GetContext(ctx, &wallet,
		"SELECT * FROM provider_wallets WHERE provider_id = $1", providerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetTransactionsByProvider retrieves a provider's ledger, newest first
func (s *Store) GetTransactionsByProvider(ctx context.Context, providerID int64) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	err := s.db.SelectContext(ctx, &txns,
		"SELECT * FROM credit_transactions WHERE provider_id = $1 ORDER BY created_at DESC, id DESC", providerID)
	return txns, err
}

// SumTransactionsByProvider sums the signed ledger amounts for a provider.
// Always equals the wallet balance; exposed for reconciliation checks.
func (s *Store) SumTransactionsByProvider(ctx context.Context, providerID int64) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum,
		"SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE provider_id = $1", providerID)
	return sum, err
}

// ApplyWalletTransaction applies one signed amount to a provider's wallet
// under an exclusive row lock. A negative resulting balance aborts with no
// partial write. The wallet is lazily created with the initial grant on
// first touch, itself a ledger entry.
func (s *Store) ApplyWalletTransaction(ctx context.Context, providerID, amount int64, txType, note string, offerID *int64, initialGrant int64, now time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	wallet, err := lockOrCreateWalletTx(ctx, tx, providerID, initialGrant, now)
	if err != nil {
		return 0, err
	}

	if amount == 0 {
		// First-touch creation only; nothing to ledger.
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return wallet.Balance, nil
	}

	nextBalance := wallet.Balance + amount
	if nextBalance < 0 {
		return 0, fmt.Errorf("provider %d balance %d cannot absorb %d: %w",
			providerID, wallet.Balance, amount, ErrInsufficientCredit)
	}

	if err := applyLedgerRowTx(ctx, tx, providerID, txType, amount, nextBalance, note, offerID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return nextBalance, nil
}

// lockOrCreateWalletTx locks the provider's wallet row, creating it with the
// configured starting grant if this is the first touch. The grant itself is
// recorded as a ledger row.
func lockOrCreateWalletTx(ctx context.Context, tx *sqlx.Tx, providerID, initialGrant int64, now time.Time) (*models.ProviderWallet, error) {
	var wallet models.ProviderWallet
	err := tx.GetContext(ctx, &wallet,
		"SELECT * FROM provider_wallets WHERE provider_id = $1 FOR UPDATE", providerID)
	if err == nil {
		return &wallet, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	err = tx.GetContext(ctx, &wallet, `
		INSERT INTO provider_wallets (provider_id, balance)
		VALUES ($1, $2)
		RETURNING *`,
		providerID, initialGrant)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	if initialGrant > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO credit_transactions (provider_id, transaction_type, amount, balance_after, note)
			VALUES ($1, $2, $3, $4, $5)`,
			providerID, models.TransactionTypeInitialGrant, initialGrant, initialGrant, "starting credit grant")
		if err != nil {
			return nil, fmt.Errorf("failed to record initial grant: %w", err)
		}
	}

	return &wallet, nil
}

// applyLedgerRowTx moves the balance and appends the immutable ledger row
// with its balance_after snapshot, inside the caller's transaction.
func applyLedgerRowTx(ctx context.Context, tx *sqlx.Tx, providerID int64, txType string, amount, balanceAfter int64, note string, offerID *int64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE provider_wallets SET balance = $1, updated_at = NOW() WHERE provider_id = $2",
		balanceAfter, providerID)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (provider_id, transaction_type, amount, balance_after, note, offer_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		providerID, txType, amount, balanceAfter, note, offerID)
	if err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}
	return nil
}
