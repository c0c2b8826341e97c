package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"derby/models"
	"derby/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaceRepository_CreateIfAbsent(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRaceRepository(testDB.DB)
	ctx := context.Background()

	t.Run("creates and reads back", func(t *testing.T) {
		race := testutil.CreateTestRace("20260314-0900", time.Now().Add(time.Hour))

		created, err := repo.CreateIfAbsent(ctx, race)
		require.NoError(t, err)
		require.NotNil(t, created)

		assert.Equal(t, race.ID, created.ID)
		assert.Equal(t, models.RaceStatusWaiting, created.Status)
		assert.Len(t, created.Horses, models.HorsesPerRace)
		assert.Equal(t, race.Horses[0].Name, created.Horses[0].Name)
		assert.False(t, created.CreatedAt.IsZero())
	})

	t.Run("second insert keeps the first row", func(t *testing.T) {
		first := testutil.CreateTestRace("20260314-1000", time.Now().Add(time.Hour))
		_, err := repo.CreateIfAbsent(ctx, first)
		require.NoError(t, err)

		competing := testutil.CreateTestRace("20260314-1000", time.Now().Add(time.Hour))
		competing.Horses[0].Name = "Late Arrival"

		winner, err := repo.CreateIfAbsent(ctx, competing)
		require.NoError(t, err)
		assert.Equal(t, first.Horses[0].Name, winner.Horses[0].Name)
	})
}

func TestRaceRepository_TryBeginCalculating(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRaceRepository(testDB.DB)
	ctx := context.Background()

	seed := func(id string) {
		_, err := repo.CreateIfAbsent(ctx, testutil.CreateTestRace(id, time.Now()))
		require.NoError(t, err)
	}

	t.Run("claims a waiting race", func(t *testing.T) {
		seed("20260314-0900")

		now := time.Now()
		race, err := repo.TryBeginCalculating(ctx, "20260314-0900", now, now.Add(-2*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, race)
		assert.Equal(t, models.RaceStatusCalculating, race.Status)
		require.NotNil(t, race.CalculatingAt)
	})

	t.Run("second caller misses", func(t *testing.T) {
		seed("20260314-1000")

		now := time.Now()
		first, err := repo.TryBeginCalculating(ctx, "20260314-1000", now, now.Add(-2*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := repo.TryBeginCalculating(ctx, "20260314-1000", now, now.Add(-2*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, second)
	})

	t.Run("stale claim can be taken over", func(t *testing.T) {
		seed("20260314-1100")

		// A resolver claimed the race five minutes ago and died.
		stale := time.Now().Add(-5 * time.Minute)
		first, err := repo.TryBeginCalculating(ctx, "20260314-1100", stale, stale.Add(-2*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, first)

		now := time.Now()
		takeover, err := repo.TryBeginCalculating(ctx, "20260314-1100", now, now.Add(-2*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, takeover)
		assert.Equal(t, models.RaceStatusCalculating, takeover.Status)
	})

	t.Run("exactly one concurrent claimer wins", func(t *testing.T) {
		seed("20260314-1200")

		const claimers = 10
		var wg sync.WaitGroup
		wins := make(chan *models.Race, claimers)

		now := time.Now()
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				race, err := repo.TryBeginCalculating(ctx, "20260314-1200", now, now.Add(-2*time.Minute))
				assert.NoError(t, err)
				if race != nil {
					wins <- race
				}
			}()
		}
		wg.Wait()
		close(wins)

		assert.Len(t, wins, 1)
	})
}

func TestRaceRepository_Finish(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRaceRepository(testDB.DB)
	ctx := context.Background()

	_, err := repo.CreateIfAbsent(ctx, testutil.CreateTestRace("20260314-0900", time.Now()))
	require.NoError(t, err)

	ranking := []int{3, 5, 1, 2, 4, 6, 7, 8}

	t.Run("rejects a race that is not calculating", func(t *testing.T) {
		err := repo.Finish(ctx, "20260314-0900", 3, ranking, time.Now())
		assert.Error(t, err)
	})

	t.Run("persists the outcome once calculating", func(t *testing.T) {
		now := time.Now()
		_, err := repo.TryBeginCalculating(ctx, "20260314-0900", now, now.Add(-2*time.Minute))
		require.NoError(t, err)

		err = repo.Finish(ctx, "20260314-0900", 3, ranking, now)
		require.NoError(t, err)

		race, err := repo.GetByID(ctx, "20260314-0900")
		require.NoError(t, err)
		assert.Equal(t, models.RaceStatusFinished, race.Status)
		require.NotNil(t, race.WinnerID)
		assert.Equal(t, 3, *race.WinnerID)
		assert.Equal(t, ranking, race.Ranking)
		require.NotNil(t, race.FinishedAt)
	})

	t.Run("cannot finish twice", func(t *testing.T) {
		err := repo.Finish(ctx, "20260314-0900", 5, ranking, time.Now())
		assert.Error(t, err)
	})
}

func TestRaceRepository_ResetToWaiting(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRaceRepository(testDB.DB)
	ctx := context.Background()

	_, err := repo.CreateIfAbsent(ctx, testutil.CreateTestRace("20260314-0900", time.Now()))
	require.NoError(t, err)

	now := time.Now()
	_, err = repo.TryBeginCalculating(ctx, "20260314-0900", now, now.Add(-2*time.Minute))
	require.NoError(t, err)

	require.NoError(t, repo.ResetToWaiting(ctx, "20260314-0900"))

	race, err := repo.GetByID(ctx, "20260314-0900")
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusWaiting, race.Status)
	assert.Nil(t, race.CalculatingAt)

	// The race can be claimed again after recovery.
	claimed, err := repo.TryBeginCalculating(ctx, "20260314-0900", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.NotNil(t, claimed)
}

func TestRaceRepository_GetLastFinished(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRaceRepository(testDB.DB)
	ctx := context.Background()

	last, err := repo.GetLastFinished(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	finish := func(id string, scheduledAt time.Time) {
		_, err := repo.CreateIfAbsent(ctx, testutil.CreateTestRace(id, scheduledAt))
		require.NoError(t, err)
		now := time.Now()
		_, err = repo.TryBeginCalculating(ctx, id, now, now.Add(-2*time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Finish(ctx, id, 1, []int{1, 2, 3, 4, 5, 6, 7, 8}, now))
	}

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	finish("20260314-0900", base)
	finish("20260314-1000", base.Add(time.Hour))

	last, err = repo.GetLastFinished(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "20260314-1000", last.ID)
}

func TestRaceRepository_GetByIDs(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	repo := NewRaceRepository(testDB.DB)
	ctx := context.Background()

	_, err := repo.CreateIfAbsent(ctx, testutil.CreateTestRace("20260314-0900", time.Now()))
	require.NoError(t, err)
	_, err = repo.CreateIfAbsent(ctx, testutil.CreateTestRace("20260314-1000", time.Now()))
	require.NoError(t, err)

	races, err := repo.GetByIDs(ctx, []string{"20260314-0900", "20260314-1000", "20260314-1100"})
	require.NoError(t, err)
	assert.Len(t, races, 2)
	assert.Contains(t, races, "20260314-0900")
	assert.Contains(t, races, "20260314-1000")
	assert.NotContains(t, races, "20260314-1100")
}
