package repository

import (
	"context"
	"fmt"
	"time"

	"derby/database"
	"derby/models"
	"github.com/jackc/pgx/v5"
)

const userColumns = `user_id, username, money, xp, level, money_multiplier,
		multiplier_expires_at, last_loan_date, today_loan_amount, last_bonus_date,
		created_at, updated_at`

// UserRepository implements the service.UserRepository interface
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx queryable) *UserRepository {
	return &UserRepository{q: tx}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.UserID,
		&user.Username,
		&user.Money,
		&user.XP,
		&user.Level,
		&user.MoneyMultiplier,
		&user.MultiplierExpiresAt,
		&user.LastLoanDate,
		&user.TodayLoanAmount,
		&user.LastBonusDate,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID retrieves a user by ID, nil if absent
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	user, err := scanUser(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return user, nil
}

// GetForUpdate retrieves a user and row-locks it for the remainder of the
// enclosing transaction. Concurrent money movements for the same user
// serialize on this lock.
func (r *UserRepository) GetForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 FOR UPDATE`
	user, err := scanUser(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock user %d: %w", userID, err)
	}
	return user, nil
}

// Create creates a new user with the initial balance. Two first-contact
// requests can race here, so the insert yields to an existing row and
// returns nil; the caller re-reads under its own lock.
func (r *UserRepository) Create(ctx context.Context, userID int64, username string, initialBalance int64) (*models.User, error) {
	query := `
		INSERT INTO users (user_id, username, money)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING ` + userColumns

	user, err := scanUser(r.q.QueryRow(ctx, query, userID, username, initialBalance))
	if err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", userID, err)
	}
	return user, nil
}

// SetMoney updates a user's balance
func (r *UserRepository) SetMoney(ctx context.Context, userID int64, money int64) error {
	query := `UPDATE users SET money = $1, updated_at = NOW() WHERE user_id = $2`

	result, err := r.q.Exec(ctx, query, money, userID)
	if err != nil {
		return fmt.Errorf("failed to set money for user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// SetLoanState updates the daily borrowing tracking fields
func (r *UserRepository) SetLoanState(ctx context.Context, userID int64, todayLoanAmount int64, lastLoanDate time.Time) error {
	query := `
		UPDATE users
		SET today_loan_amount = $1, last_loan_date = $2, updated_at = NOW()
		WHERE user_id = $3
	`

	result, err := r.q.Exec(ctx, query, todayLoanAmount, lastLoanDate, userID)
	if err != nil {
		return fmt.Errorf("failed to set loan state for user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// SetProgress updates a user's experience points and level
func (r *UserRepository) SetProgress(ctx context.Context, userID int64, xp int64, level int) error {
	query := `UPDATE users SET xp = $1, level = $2, updated_at = NOW() WHERE user_id = $3`

	result, err := r.q.Exec(ctx, query, xp, level, userID)
	if err != nil {
		return fmt.Errorf("failed to set progress for user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// SetLastBonusDate records when the user last claimed the daily bonus
func (r *UserRepository) SetLastBonusDate(ctx context.Context, userID int64, date time.Time) error {
	query := `UPDATE users SET last_bonus_date = $1, updated_at = NOW() WHERE user_id = $2`

	result, err := r.q.Exec(ctx, query, date, userID)
	if err != nil {
		return fmt.Errorf("failed to set bonus date for user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}
