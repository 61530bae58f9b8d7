package tokens

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dsemenov/datavault/internal/server/models"
)

type Repository interface {
	// EnsureAccount creates the account row with a zero balance if absent.
	EnsureAccount(ctx context.Context, userID string) error

	GetAccount(ctx context.Context, userID string) (*models.TokenAccount, error)

	// GetBalanceForUpdate reads the balance with a row lock held until the
	// surrounding transaction ends. Returns common.ErrNotFound for absent
	// accounts.
	GetBalanceForUpdate(ctx context.Context, userID string) (decimal.Decimal, error)

	// AddBalance applies a signed delta to the account balance.
	AddBalance(ctx context.Context, userID string, delta decimal.Decimal) error

	AppendTransaction(ctx context.Context, entry *models.TokenTransaction) error
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error)
}
