package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// WalletService exposes the quote-credit ledger: balances, top-ups, and
// the reconciliation check that the ledger always sums to the balance.
type WalletService struct {
	store    *store.Store
	business config.BusinessConfig
	logger   *zap.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(st *store.Store, business config.BusinessConfig) *WalletService {
	return &WalletService{
		store:    st,
		business: business,
		logger:   util.GetLogger(),
	}
}

// EnsureWallet creates the provider's wallet with the initial grant if it
// does not exist yet. Safe to call repeatedly.
func (ws *WalletService) EnsureWallet(ctx context.Context, providerID int64) (int64, error) {
	return ws.store.ApplyWalletTransaction(ctx, providerID, 0, "", "",
		nil, ws.business.InitialCreditGrant, time.Now())
}

// GetBalance returns the provider's current credit balance, creating the
// wallet on first touch.
func (ws *WalletService) GetBalance(ctx context.Context, providerID int64) (int64, error) {
	wallet, err := ws.store.GetWalletByProvider(ctx, providerID)
	if err != nil {
		return 0, err
	}
	if wallet == nil {
		return ws.EnsureWallet(ctx, providerID)
	}
	return wallet.Balance, nil
}

// Topup credits the provider's wallet with a named credit package.
func (ws *WalletService) Topup(ctx context.Context, providerID int64, packageKey string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Topup")
	defer span.End()

	pkg := ws.findPackage(packageKey)
	if pkg == nil {
		return 0, fmt.Errorf("unknown credit package %q: %w", packageKey, ErrValidation)
	}

	balance, err := ws.store.ApplyWalletTransaction(ctx, providerID, pkg.Credits,
		models.TransactionTypeTopup, fmt.Sprintf("Top-up: %s", pkg.Name),
		nil, ws.business.InitialCreditGrant, time.Now())
	if err != nil {
		return 0, err
	}
	ws.logger.Info("Wallet topped up",
		zap.Int64("provider_id", providerID),
		zap.String("package", pkg.Key),
		zap.Int64("balance", balance))
	return balance, nil
}

// ListTransactions returns the provider's ledger, newest first.
func (ws *WalletService) ListTransactions(ctx context.Context, providerID int64) ([]models.CreditTransaction, error) {
	return ws.store.GetTransactionsByProvider(ctx, providerID)
}

// Packages lists the purchasable credit packages.
func (ws *WalletService) Packages() []config.CreditPackage {
	return ws.business.CreditPackages
}

// Reconcile verifies the ledger sums to the stored balance. A mismatch
// means a write bypassed the ledger and needs manual investigation.
func (ws *WalletService) Reconcile(ctx context.Context, providerID int64) (bool, error) {
	wallet, err := ws.store.GetWalletByProvider(ctx, providerID)
	if err != nil {
		return false, err
	}
	if wallet == nil {
		return true, nil
	}
	sum, err := ws.store.SumTransactionsByProvider(ctx, providerID)
	if err != nil {
		return false, err
	}
	if sum != wallet.Balance {
		ws.logger.Error("Wallet ledger mismatch",
			zap.Int64("provider_id", providerID),
			zap.Int64("balance", wallet.Balance),
			zap.Int64("ledger_sum", sum))
		return false, nil
	}
	return true, nil
}

func (ws *WalletService) findPackage(key string) *config.CreditPackage {
	for i := range ws.business.CreditPackages {
		if ws.business.CreditPackages[i].Key == key {
			return &ws.business.CreditPackages[i]
		}
	}
	return nil
}
