package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"derby/database"
	"derby/models"
	"github.com/jackc/pgx/v5"
)

const raceColumns = `id, name, horses, status, scheduled_at, calculating_at,
		winner_id, ranking, finished_at, created_at`

// RaceRepository implements the service.RaceRepository interface. All race
// lifecycle exclusivity is enforced here with conditional updates.
type RaceRepository struct {
	q queryable
}

// NewRaceRepository creates a new race repository
func NewRaceRepository(db *database.DB) *RaceRepository {
	return &RaceRepository{q: db.Pool}
}

// newRaceRepositoryWithTx creates a new race repository with a transaction
func newRaceRepositoryWithTx(tx queryable) *RaceRepository {
	return &RaceRepository{q: tx}
}

func scanRace(row pgx.Row) (*models.Race, error) {
	var race models.Race
	var horsesJSON []byte
	var rankingJSON []byte

	err := row.Scan(
		&race.ID,
		&race.Name,
		&horsesJSON,
		&race.Status,
		&race.ScheduledAt,
		&race.CalculatingAt,
		&race.WinnerID,
		&rankingJSON,
		&race.FinishedAt,
		&race.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(horsesJSON, &race.Horses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal horses: %w", err)
	}
	if len(rankingJSON) > 0 {
		if err := json.Unmarshal(rankingJSON, &race.Ranking); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ranking: %w", err)
		}
	}
	return &race, nil
}

// GetByID retrieves a race by ID, nil if absent
func (r *RaceRepository) GetByID(ctx context.Context, raceID string) (*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id = $1`
	race, err := scanRace(r.q.QueryRow(ctx, query, raceID))
	if err != nil {
		return nil, fmt.Errorf("failed to get race %s: %w", raceID, err)
	}
	return race, nil
}

// GetByIDs retrieves multiple races keyed by ID
func (r *RaceRepository) GetByIDs(ctx context.Context, raceIDs []string) (map[string]*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id = ANY($1)`

	rows, err := r.q.Query(ctx, query, raceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get races: %w", err)
	}
	defer rows.Close()

	races := make(map[string]*models.Race)
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		races[race.ID] = race
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate races: %w", err)
	}
	return races, nil
}

// CreateIfAbsent inserts the race if no row exists for its slot and returns
// the authoritative row. Concurrent callers racing on the same slot all
// converge on whichever insert won.
func (r *RaceRepository) CreateIfAbsent(ctx context.Context, race *models.Race) (*models.Race, error) {
	horsesJSON, err := json.Marshal(race.Horses)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal horses: %w", err)
	}

	query := `
		INSERT INTO races (id, name, horses, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.q.Exec(ctx, query, race.ID, race.Name, horsesJSON, models.RaceStatusWaiting, race.ScheduledAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create race %s: %w", race.ID, err)
	}

	created, err := r.GetByID(ctx, race.ID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("race %s missing after insert", race.ID)
	}
	return created, nil
}

// TryBeginCalculating attempts the waiting -> calculating transition.
// The update succeeds for a waiting race, or for a calculating race whose
// calculating_at timestamp is older than staleBefore (a resolver that died
// mid-settlement without running recovery). Zero rows affected means
// another caller holds the resolution and is returned as (nil, nil).
func (r *RaceRepository) TryBeginCalculating(ctx context.Context, raceID string, now, staleBefore time.Time) (*models.Race, error) {
	query := `
		UPDATE races
		SET status = $1, calculating_at = $2
		WHERE id = $3
		  AND (status = $4 OR (status = $1 AND calculating_at < $5))
		RETURNING ` + raceColumns

	race, err := scanRace(r.q.QueryRow(ctx, query,
		models.RaceStatusCalculating, now, raceID, models.RaceStatusWaiting, staleBefore))
	if err != nil {
		return nil, fmt.Errorf("failed to begin calculating race %s: %w", raceID, err)
	}
	return race, nil
}

// Finish persists the outcome, guarded on the calculating state so a race
// can finish at most once.
func (r *RaceRepository) Finish(ctx context.Context, raceID string, winnerID int, ranking []int, finishedAt time.Time) error {
	rankingJSON, err := json.Marshal(ranking)
	if err != nil {
		return fmt.Errorf("failed to marshal ranking: %w", err)
	}

	query := `
		UPDATE races
		SET status = $1, winner_id = $2, ranking = $3, finished_at = $4
		WHERE id = $5 AND status = $6
	`
	result, err := r.q.Exec(ctx, query,
		models.RaceStatusFinished, winnerID, rankingJSON, finishedAt, raceID, models.RaceStatusCalculating)
	if err != nil {
		return fmt.Errorf("failed to finish race %s: %w", raceID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("race %s is not calculating", raceID)
	}
	return nil
}

// ResetToWaiting is the crash-recovery edge: a failed settlement rolls the
// race back so a later caller can retry from scratch.
func (r *RaceRepository) ResetToWaiting(ctx context.Context, raceID string) error {
	query := `
		UPDATE races
		SET status = $1, calculating_at = NULL
		WHERE id = $2 AND status = $3
	`
	_, err := r.q.Exec(ctx, query, models.RaceStatusWaiting, raceID, models.RaceStatusCalculating)
	if err != nil {
		return fmt.Errorf("failed to reset race %s: %w", raceID, err)
	}
	return nil
}

// GetLastFinished returns the most recently finished race, nil if none
func (r *RaceRepository) GetLastFinished(ctx context.Context) (*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races
		WHERE status = $1
		ORDER BY scheduled_at DESC
		LIMIT 1`

	race, err := scanRace(r.q.QueryRow(ctx, query, models.RaceStatusFinished))
	if err != nil {
		return nil, fmt.Errorf("failed to get last finished race: %w", err)
	}
	return race, nil
}
