package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the maximum number of decimal places carried by token
// amounts and balances. Inputs with more precision are rejected, never
// rounded.
const AmountScale = 6

// TokenAccount holds one user's incentive balance. The balance is
// non-negative after every committed operation.
type TokenAccount struct {
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TransactionType distinguishes credits from debits in the transaction log.
type TransactionType string

const (
	TransactionEarn  TransactionType = "earn"
	TransactionSpend TransactionType = "spend"
)

// TokenTransaction is one append-only entry in a user's transaction log.
// Amount is always positive; the type carries the sign.
type TokenTransaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"timestamp"`
}
