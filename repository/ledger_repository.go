package repository

import (
	"context"
	"fmt"

	"derby/database"
	"derby/models"
	"github.com/jackc/pgx/v5"
)

// LedgerRepository implements the service.LedgerRepository interface over
// the append-only money_transactions table.
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{q: db.Pool}
}

// newLedgerRepositoryWithTx creates a new ledger repository with a transaction
func newLedgerRepositoryWithTx(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

// Record appends one transaction row. The insert runs under its own
// savepoint so a failure here cannot poison the enclosing transaction:
// balance correctness takes priority over audit completeness, and callers
// are free to log and continue.
func (r *LedgerRepository) Record(ctx context.Context, tx *models.MoneyTransaction) error {
	inner, err := r.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ledger insert: %w", err)
	}

	query := `
		INSERT INTO money_transactions (user_id, type, amount, description, balance_after)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err = inner.QueryRow(ctx, query,
		tx.UserID,
		tx.Type,
		tx.Amount,
		tx.Description,
		tx.BalanceAfter,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		_ = inner.Rollback(ctx)
		return fmt.Errorf("failed to record transaction for user %d: %w", tx.UserID, err)
	}

	if err := inner.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger insert: %w", err)
	}
	return nil
}

// GetByUser returns the most recent transactions for a user
func (r *LedgerRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.MoneyTransaction, error) {
	query := `
		SELECT id, user_id, type, amount, description, balance_after, created_at
		FROM money_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	var txs []*models.MoneyTransaction
	for rows.Next() {
		var tx models.MoneyTransaction
		err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.Description, &tx.BalanceAfter, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

// SumAmounts recomputes a user's balance as the sum of all ledger amounts
func (r *LedgerRepository) SumAmounts(ctx context.Context, userID int64) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM money_transactions WHERE user_id = $1`

	var sum int64
	if err := r.q.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions for user %d: %w", userID, err)
	}
	return sum, nil
}

// HasInitial reports whether the user's history contains an initial grant.
// Users without one predate ledger introduction.
func (r *LedgerRepository) HasInitial(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT 1 FROM money_transactions WHERE user_id = $1 AND type = $2 LIMIT 1`

	var one int
	err := r.q.QueryRow(ctx, query, userID, models.TransactionTypeInitial).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check initial transaction for user %d: %w", userID, err)
	}
	return true, nil
}
