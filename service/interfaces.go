package service

import (
	"context"
	"time"

	"derby/events"
	"derby/models"
)

// UserRepository defines the interface for user game-state data access
type UserRepository interface {
	// GetByID retrieves a user, nil if absent
	GetByID(ctx context.Context, userID int64) (*models.User, error)

	// GetForUpdate retrieves and row-locks a user within the current transaction
	GetForUpdate(ctx context.Context, userID int64) (*models.User, error)

	// Create creates a new user with the initial balance; returns nil
	// without error when the user already exists
	Create(ctx context.Context, userID int64, username string, initialBalance int64) (*models.User, error)

	// SetMoney updates a user's balance
	SetMoney(ctx context.Context, userID int64, money int64) error

	// SetLoanState updates the daily borrowing counter and its date
	SetLoanState(ctx context.Context, userID int64, todayLoanAmount int64, lastLoanDate time.Time) error

	// SetProgress updates experience points and level
	SetProgress(ctx context.Context, userID int64, xp int64, level int) error

	// SetLastBonusDate records a daily bonus claim
	SetLastBonusDate(ctx context.Context, userID int64, date time.Time) error
}

// LedgerRepository defines the interface for the append-only transaction log
type LedgerRepository interface {
	// Record appends one transaction row; must not poison the enclosing
	// transaction on failure
	Record(ctx context.Context, tx *models.MoneyTransaction) error

	// GetByUser returns the most recent transactions for a user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.MoneyTransaction, error)

	// SumAmounts recomputes the balance as the sum of all amounts
	SumAmounts(ctx context.Context, userID int64) (int64, error)

	// HasInitial reports whether the history contains an initial grant
	HasInitial(ctx context.Context, userID int64) (bool, error)
}

// RaceRepository defines the interface for race lifecycle data access
type RaceRepository interface {
	GetByID(ctx context.Context, raceID string) (*models.Race, error)
	GetByIDs(ctx context.Context, raceIDs []string) (map[string]*models.Race, error)
	CreateIfAbsent(ctx context.Context, race *models.Race) (*models.Race, error)

	// TryBeginCalculating is the waiting -> calculating CAS; (nil, nil)
	// means another caller holds the resolution
	TryBeginCalculating(ctx context.Context, raceID string, now, staleBefore time.Time) (*models.Race, error)

	// Finish persists the outcome, guarded on the calculating state
	Finish(ctx context.Context, raceID string, winnerID int, ranking []int, finishedAt time.Time) error

	// ResetToWaiting is the crash-recovery edge after a failed settlement
	ResetToWaiting(ctx context.Context, raceID string) error

	GetLastFinished(ctx context.Context) (*models.Race, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	Create(ctx context.Context, bet *models.Bet) error
	GetByID(ctx context.Context, betID int64) (*models.Bet, error)
	GetByRaceAndUser(ctx context.Context, raceID string, userID int64) ([]*models.Bet, error)
	GetUnsettledByRace(ctx context.Context, raceID string) ([]*models.Bet, error)
	GetUnsettledWin5ByDay(ctx context.Context, dayPrefix string) ([]*models.Bet, error)

	// SettlePayout writes payout/is_win guarded on payout = 0; reports
	// whether this call performed the write
	SettlePayout(ctx context.Context, betID int64, payout int64) (bool, error)

	// Delete removes a bet owned by the user; reports whether a row was deleted
	Delete(ctx context.Context, betID int64, userID int64) (bool, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork represents one atomic set of repository operations
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() UserRepository
	LedgerRepository() LedgerRepository
	RaceRepository() RaceRepository
	BetRepository() BetRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// LedgerService defines the caller-facing money operations
type LedgerService interface {
	// Transact applies one signed money movement under the debt floor and
	// daily loan cap rules
	Transact(ctx context.Context, userID int64, amount int64, description string, txType models.TransactionType) (*models.TransactResult, error)

	// Reconcile audits a user's ledger against the authoritative balance
	Reconcile(ctx context.Context, userID int64) (*models.ReconcileResult, error)

	// GetHistory returns the most recent ledger rows
	GetHistory(ctx context.Context, userID int64, limit int) ([]*models.MoneyTransaction, error)

	// ClaimDailyBonus credits the daily bonus, once per calendar day
	ClaimDailyBonus(ctx context.Context, userID int64) (*models.TransactResult, error)
}

// WageringService defines the caller-facing wagering operations
type WageringService interface {
	// GetActiveRace resolves the bettable race, lazily creating and settling
	// races as their post times pass
	GetActiveRace(ctx context.Context, userID int64) (*models.ActiveRaceView, error)

	// PlaceBet atomically debits the total and persists one bet row per
	// requested wager
	PlaceBet(ctx context.Context, userID int64, raceID string, requests []models.BetRequest) (*models.PlaceBetResult, error)

	// CancelBet removes a bet before cutoff and refunds its total
	CancelBet(ctx context.Context, userID int64, betID int64) (*models.CancelBetResult, error)
}
