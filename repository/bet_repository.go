package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"derby/database"
	"derby/models"
	"github.com/jackc/pgx/v5"
)

const betColumns = `id, race_id, user_id, bet_type, bet_mode, tickets,
		base_amount, total_amount, payout, is_win, odds, group_id, created_at`

// BetRepository implements the service.BetRepository interface
type BetRepository struct {
	q queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx queryable) *BetRepository {
	return &BetRepository{q: tx}
}

func scanBet(row pgx.Row) (*models.Bet, error) {
	var bet models.Bet
	var ticketsJSON []byte

	err := row.Scan(
		&bet.ID,
		&bet.RaceID,
		&bet.UserID,
		&bet.Type,
		&bet.Mode,
		&ticketsJSON,
		&bet.BaseAmount,
		&bet.TotalAmount,
		&bet.Payout,
		&bet.IsWin,
		&bet.Odds,
		&bet.GroupID,
		&bet.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(ticketsJSON, &bet.Tickets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tickets: %w", err)
	}
	return &bet, nil
}

func (r *BetRepository) queryBets(ctx context.Context, query string, args ...any) ([]*models.Bet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bets: %w", err)
	}
	return bets, nil
}

// Create creates a new bet row
func (r *BetRepository) Create(ctx context.Context, bet *models.Bet) error {
	ticketsJSON, err := json.Marshal(bet.Tickets)
	if err != nil {
		return fmt.Errorf("failed to marshal tickets: %w", err)
	}

	query := `
		INSERT INTO bets
		(race_id, user_id, bet_type, bet_mode, tickets, base_amount, total_amount, odds, group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		bet.RaceID,
		bet.UserID,
		bet.Type,
		bet.Mode,
		ticketsJSON,
		bet.BaseAmount,
		bet.TotalAmount,
		bet.Odds,
		bet.GroupID,
	).Scan(&bet.ID, &bet.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bet for user %d on race %s: %w", bet.UserID, bet.RaceID, err)
	}
	return nil
}

// GetByID retrieves a bet by ID, nil if absent
func (r *BetRepository) GetByID(ctx context.Context, betID int64) (*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE id = $1`
	bet, err := scanBet(r.q.QueryRow(ctx, query, betID))
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %d: %w", betID, err)
	}
	return bet, nil
}

// GetByRaceAndUser returns a user's bets on one race
func (r *BetRepository) GetByRaceAndUser(ctx context.Context, raceID string, userID int64) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets
		WHERE race_id = $1 AND user_id = $2
		ORDER BY id`
	bets, err := r.queryBets(ctx, query, raceID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets for user %d on race %s: %w", userID, raceID, err)
	}
	return bets, nil
}

// GetUnsettledByRace returns every bet on a race still awaiting settlement
func (r *BetRepository) GetUnsettledByRace(ctx context.Context, raceID string) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets
		WHERE race_id = $1 AND payout = 0
		ORDER BY id`
	bets, err := r.queryBets(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsettled bets for race %s: %w", raceID, err)
	}
	return bets, nil
}

// GetUnsettledWin5ByDay returns unsettled quintet bets placed on any of the
// given day's races. Their settlement may have been deferred waiting for
// sibling races to finish.
func (r *BetRepository) GetUnsettledWin5ByDay(ctx context.Context, dayPrefix string) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets
		WHERE bet_type = $1 AND payout = 0 AND race_id LIKE $2
		ORDER BY id`
	bets, err := r.queryBets(ctx, query, models.BetTypeWin5, dayPrefix+"-%")
	if err != nil {
		return nil, fmt.Errorf("failed to get unsettled win5 bets for day %s: %w", dayPrefix, err)
	}
	return bets, nil
}

// SettlePayout writes the settlement result for one winning bet, guarded on
// payout = 0 so a retried settlement can never pay twice. Returns whether
// this call performed the write.
func (r *BetRepository) SettlePayout(ctx context.Context, betID int64, payout int64) (bool, error) {
	query := `UPDATE bets SET payout = $1, is_win = TRUE WHERE id = $2 AND payout = 0`

	result, err := r.q.Exec(ctx, query, payout, betID)
	if err != nil {
		return false, fmt.Errorf("failed to settle bet %d: %w", betID, err)
	}
	return result.RowsAffected() == 1, nil
}

// Delete removes a bet owned by the given user. Returns whether a row was
// deleted.
func (r *BetRepository) Delete(ctx context.Context, betID int64, userID int64) (bool, error) {
	query := `DELETE FROM bets WHERE id = $1 AND user_id = $2`

	result, err := r.q.Exec(ctx, query, betID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete bet %d: %w", betID, err)
	}
	return result.RowsAffected() == 1, nil
}
