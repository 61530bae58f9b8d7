// Package services contains the server-side business logic. This file
// implements TokenService, the per-user incentive ledger: balances with an
// append-only transaction log.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/dbx"
	"github.com/dsemenov/datavault/internal/logging"
	"github.com/dsemenov/datavault/internal/server/eventbus"
	"github.com/dsemenov/datavault/internal/server/models"
	"github.com/dsemenov/datavault/internal/server/repositories/repomanager"
)

// TokenService mutates token accounts. Every balance change runs inside a
// transaction with the touched account rows locked first, so concurrent
// operations on one account serialize and the balance never goes negative
// in any committed state. Operations on disjoint accounts proceed in
// parallel.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	bus         eventbus.Bus
	logger      logging.Logger
}

// NewTokenService constructs a TokenService.
func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, bus eventbus.Bus, logger logging.Logger) *TokenService {
	return &TokenService{
		db:          db,
		repomanager: m,
		bus:         bus,
		logger:      logger.With("module", "token_service"),
	}
}

// validateAmount accepts strictly positive amounts with at most
// models.AmountScale decimal places. Excess precision is rejected, never
// truncated.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", common.ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(models.AmountScale)) {
		return fmt.Errorf("%w: at most %d decimal places", common.ErrInvalidAmount, models.AmountScale)
	}
	return nil
}

// Award credits amount to userID, creating the account on first touch.
// Never fails for a well-formed positive amount.
func (s *TokenService) Award(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*models.TokenTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	entry := &models.TokenTransaction{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   models.TransactionEarn,
		Amount: amount,
		Reason: reason,
	}

	var newBalance decimal.Decimal
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tokens(tx)

		if err := repo.EnsureAccount(ctx, userID); err != nil {
			return err
		}
		balance, err := repo.GetBalanceForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := repo.AddBalance(ctx, userID, amount); err != nil {
			return err
		}
		newBalance = balance.Add(amount)
		return repo.AppendTransaction(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("award error: %w", err)
	}

	s.publishBalance(userID, newBalance)
	return entry, nil
}

// Spend debits amount from userID. Fails with common.ErrInsufficientBalance
// when the balance is below amount; an absent account spends as balance 0.
func (s *TokenService) Spend(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*models.TokenTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	entry := &models.TokenTransaction{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   models.TransactionSpend,
		Amount: amount,
		Reason: reason,
	}

	var newBalance decimal.Decimal
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tokens(tx)

		balance, err := repo.GetBalanceForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrInsufficientBalance
			}
			return err
		}
		if balance.LessThan(amount) {
			return common.ErrInsufficientBalance
		}
		if err := repo.AddBalance(ctx, userID, amount.Neg()); err != nil {
			return err
		}
		newBalance = balance.Sub(amount)
		return repo.AppendTransaction(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, common.ErrInsufficientBalance) {
			return nil, common.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("spend error: %w", err)
	}

	s.publishBalance(userID, newBalance)
	return entry, nil
}

// Transfer moves amount from one user to another as an atomic debit-credit
// pair: either both accounts change or neither does. Account rows are locked
// in user-id order so opposite-direction transfers cannot deadlock.
//
// A self-transfer is not special-cased: it runs as two entries against the
// same account and still fails with common.ErrInsufficientBalance when the
// balance is below amount.
func (s *TokenService) Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal) (*models.TokenTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	debit := &models.TokenTransaction{
		ID:     uuid.NewString(),
		UserID: fromUserID,
		Type:   models.TransactionSpend,
		Amount: amount,
		Reason: fmt.Sprintf("transfer to %s", toUserID),
	}
	credit := &models.TokenTransaction{
		ID:     uuid.NewString(),
		UserID: toUserID,
		Type:   models.TransactionEarn,
		Amount: amount,
		Reason: fmt.Sprintf("transfer from %s", fromUserID),
	}

	ids := []string{fromUserID}
	if toUserID != fromUserID {
		ids = append(ids, toUserID)
	}
	sort.Strings(ids)

	balances := make(map[string]decimal.Decimal, len(ids))

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tokens(tx)

		for _, id := range ids {
			if err := repo.EnsureAccount(ctx, id); err != nil {
				return err
			}
		}
		for _, id := range ids {
			balance, err := repo.GetBalanceForUpdate(ctx, id)
			if err != nil {
				return err
			}
			balances[id] = balance
		}

		if balances[fromUserID].LessThan(amount) {
			return common.ErrInsufficientBalance
		}

		if err := repo.AddBalance(ctx, fromUserID, amount.Neg()); err != nil {
			return err
		}
		if err := repo.AddBalance(ctx, toUserID, amount); err != nil {
			return err
		}
		if err := repo.AppendTransaction(ctx, debit); err != nil {
			return err
		}
		return repo.AppendTransaction(ctx, credit)
	})
	if err != nil {
		if errors.Is(err, common.ErrInsufficientBalance) {
			return nil, common.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("transfer error: %w", err)
	}

	if fromUserID == toUserID {
		s.publishBalance(fromUserID, balances[fromUserID])
	} else {
		s.publishBalance(fromUserID, balances[fromUserID].Sub(amount))
		s.publishBalance(toUserID, balances[toUserID].Add(amount))
	}
	s.bus.Publish(eventbus.TopicTokenTransferred, eventbus.Event{
		UserID:  fromUserID,
		Payload: debit,
	})

	return debit, nil
}

// Balance returns the user's account; an account never touched reads as
// balance 0.
func (s *TokenService) Balance(ctx context.Context, userID string) (*models.TokenAccount, error) {
	repo := s.repomanager.Tokens(s.db)

	account, err := repo.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return &models.TokenAccount{UserID: userID, Balance: decimal.Zero}, nil
		}
		return nil, fmt.Errorf("balance error: %w", err)
	}
	return account, nil
}

// History returns the user's transaction log, newest first.
func (s *TokenService) History(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	repo := s.repomanager.Tokens(s.db)
	entries, err := repo.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history error: %w", err)
	}
	return entries, nil
}

func (s *TokenService) publishBalance(userID string, balance decimal.Decimal) {
	s.bus.Publish(eventbus.TopicBalanceChanged, eventbus.Event{
		UserID:  userID,
		Payload: map[string]string{"userId": userID, "balance": balance.String()},
	})
}
