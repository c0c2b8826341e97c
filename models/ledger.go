package models

import (
	"time"
)

// TransactionType represents the type of money movement
type TransactionType string

const (
	TransactionTypeInitial      TransactionType = "initial"
	TransactionTypeBet          TransactionType = "bet"
	TransactionTypeRefund       TransactionType = "refund"
	TransactionTypePayout       TransactionType = "payout"
	TransactionTypeLevelUp      TransactionType = "level_up"
	TransactionTypeDailyBonus   TransactionType = "daily_bonus"
	TransactionTypeItemPurchase TransactionType = "item_purchase"
	TransactionTypeGachaItem    TransactionType = "gacha_item"
	TransactionTypeGeneral      TransactionType = "general"
)

// MultiplierEligible reports whether an active money multiplier applies to
// positive amounts of this type.
func (t TransactionType) MultiplierEligible() bool {
	switch t {
	case TransactionTypeLevelUp, TransactionTypeDailyBonus,
		TransactionTypeGachaItem, TransactionTypePayout, TransactionTypeGeneral:
		return true
	}
	return false
}

// MoneyTransaction is one append-only ledger row. BalanceAfter snapshots the
// authoritative balance immediately after the movement; the most recent
// row's BalanceAfter always equals the user's current balance.
type MoneyTransaction struct {
	ID           int64           `db:"id"`
	UserID       int64           `db:"user_id"`
	Type         TransactionType `db:"type"`
	Amount       int64           `db:"amount"`
	Description  string          `db:"description"`
	BalanceAfter int64           `db:"balance_after"`
	CreatedAt    time.Time       `db:"created_at"`
}

// TransactResult is returned to the caller after a successful transaction
type TransactResult struct {
	Amount     int64
	NewBalance int64
}

// ReconcileResult reports a ledger audit for one user. Legacy marks users
// whose history predates ledger introduction (no initial transaction); they
// are reported distinctly rather than flagged as a hard mismatch.
type ReconcileResult struct {
	Balance           int64
	CalculatedBalance int64
	Mismatch          bool
	Legacy            bool
}
