// Package tokens provides the PostgreSQL-backed repository for token
// accounts and their append-only transaction log.
//
// Balance mutations are meant to run inside dbx.WithTx with the account rows
// locked via GetBalanceForUpdate first; the schema additionally enforces
// balance >= 0 as a last line of defense.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/dbx"
	"github.com/dsemenov/datavault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureAccount creates the account row with a zero balance if absent.
func (r *PostgresRepository) EnsureAccount(ctx context.Context, userID string) error {
	query := `
		INSERT INTO token_accounts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetAccount fetches one account or common.ErrNotFound.
func (r *PostgresRepository) GetAccount(ctx context.Context, userID string) (*models.TokenAccount, error) {
	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM token_accounts
		WHERE user_id = $1
	`
	account := &models.TokenAccount{}
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&account.UserID, &account.Balance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

// GetBalanceForUpdate reads the balance with the row locked until the
// surrounding transaction ends, serializing concurrent operations per account.
func (r *PostgresRepository) GetBalanceForUpdate(ctx context.Context, userID string) (decimal.Decimal, error) {
	query := `
		SELECT balance
		FROM token_accounts
		WHERE user_id = $1
		FOR UPDATE
	`
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, common.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

// AddBalance applies a signed delta to the account balance.
func (r *PostgresRepository) AddBalance(ctx context.Context, userID string, delta decimal.Decimal) error {
	query := `
		UPDATE token_accounts
		SET balance = balance + $2, updated_at = now()
		WHERE user_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, userID, delta)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: token account %s", common.ErrNotFound, userID)
	}
	return nil
}

// AppendTransaction inserts one log entry.
func (r *PostgresRepository) AppendTransaction(ctx context.Context, entry *models.TokenTransaction) error {
	query := `
		INSERT INTO token_transactions (id, user_id, tx_type, amount, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		entry.ID, entry.UserID, entry.Type, entry.Amount, entry.Reason).
		Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListTransactions returns the user's log entries, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error) {
	query := `
		SELECT id, user_id, tx_type, amount, reason, created_at
		FROM token_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.TokenTransaction
	for rows.Next() {
		var item models.TokenTransaction
		if err := rows.Scan(&item.ID, &item.UserID, &item.Type, &item.Amount, &item.Reason, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
