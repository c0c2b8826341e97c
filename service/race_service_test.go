package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"derby/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func raceTestFixture(t *testing.T) (*RaceEngine, *MockUnitOfWorkFactory, *MockUnitOfWork, *MockUserRepository, *MockLedgerRepository, *MockRaceRepository, *MockBetRepository) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockUserRepo := new(MockUserRepository)
	mockLedgerRepo := new(MockLedgerRepository)
	mockRaceRepo := new(MockRaceRepository)
	mockBetRepo := new(MockBetRepository)
	mockUoW.SetRepositories(mockUserRepo, mockLedgerRepo, mockRaceRepo, mockBetRepo)

	engine := NewRaceEngine(mockFactory, testConfig(), NewSchedule(loc))
	return engine, mockFactory, mockUoW, mockUserRepo, mockLedgerRepo, mockRaceRepo, mockBetRepo
}

func waitingRace(t *testing.T, scheduledAt time.Time) *models.Race {
	t.Helper()
	race := finishedRace(1, 2, 3)
	race.Status = models.RaceStatusWaiting
	race.WinnerID = nil
	race.Ranking = nil
	race.ScheduledAt = scheduledAt
	return race
}

func TestRaceEngine_EnsureRace_CreatesMissingRow(t *testing.T) {
	ctx := context.Background()
	engine, mockFactory, mockUoW, _, _, mockRaceRepo, _ := raceTestFixture(t)

	post := tokyoTime(t, 9, 0)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRaceRepo.On("GetByID", ctx, "20260314-0900").Return(nil, nil)
	mockRaceRepo.On("CreateIfAbsent", ctx, mock.MatchedBy(func(r *models.Race) bool {
		return r.ID == "20260314-0900" &&
			r.Name == "Race 1" &&
			len(r.Horses) == models.HorsesPerRace
	})).Return(waitingRace(t, post), nil)

	race, err := engine.EnsureRace(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusWaiting, race.Status)
	mockRaceRepo.AssertExpectations(t)
}

func TestRaceEngine_ResolveIfDue_SkipsFutureRace(t *testing.T) {
	ctx := context.Background()
	engine, mockFactory, mockUoW, _, _, mockRaceRepo, _ := raceTestFixture(t)

	race := waitingRace(t, time.Now().Add(time.Hour))

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRaceRepo.On("GetByID", ctx, race.ID).Return(race, nil)

	err := engine.ResolveIfDue(ctx, race.ID)
	require.NoError(t, err)
	mockRaceRepo.AssertNotCalled(t, "TryBeginCalculating")
	mockRaceRepo.AssertNotCalled(t, "Finish")
}

func TestRaceEngine_ResolveIfDue_NoOpWhenAnotherResolverHolds(t *testing.T) {
	ctx := context.Background()
	engine, mockFactory, mockUoW, _, _, mockRaceRepo, _ := raceTestFixture(t)

	race := waitingRace(t, time.Now().Add(-time.Minute))

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRaceRepo.On("GetByID", ctx, race.ID).Return(race, nil)
	mockRaceRepo.On("TryBeginCalculating", ctx, race.ID,
		mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).Return(nil, nil)

	err := engine.ResolveIfDue(ctx, race.ID)
	require.NoError(t, err)
	mockRaceRepo.AssertNotCalled(t, "Finish")
}

func TestRaceEngine_ResolveIfDue_RecoversOnSettlementFailure(t *testing.T) {
	ctx := context.Background()
	engine, mockFactory, mockUoW, _, _, mockRaceRepo, _ := raceTestFixture(t)

	race := waitingRace(t, time.Now().Add(-time.Minute))
	claimed := waitingRace(t, race.ScheduledAt)
	claimed.Status = models.RaceStatusCalculating

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRaceRepo.On("GetByID", ctx, race.ID).Return(race, nil)
	mockRaceRepo.On("TryBeginCalculating", ctx, race.ID,
		mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).Return(claimed, nil)
	mockRaceRepo.On("Finish", ctx, race.ID, mock.Anything, mock.Anything,
		mock.AnythingOfType("time.Time")).Return(errors.New("connection lost"))
	mockRaceRepo.On("ResetToWaiting", ctx, race.ID).Return(nil)

	err := engine.ResolveIfDue(ctx, race.ID)
	require.Error(t, err)
	mockRaceRepo.AssertCalled(t, "ResetToWaiting", ctx, race.ID)
}

func TestRaceEngine_Settle_PaysWinningBet(t *testing.T) {
	ctx := context.Background()
	engine, mockFactory, mockUoW, mockUserRepo, mockLedgerRepo, mockRaceRepo, mockBetRepo := raceTestFixture(t)

	race := waitingRace(t, tokyoTime(t, 9, 0))
	race.Status = models.RaceStatusCalculating
	ranking := []int{3, 5, 1, 2, 4, 6, 7, 8}

	odds := 3.0
	winningBet := &models.Bet{
		ID:         7,
		RaceID:     race.ID,
		UserID:     100,
		Type:       models.BetTypeWin,
		Mode:       models.BetModeNormal,
		Tickets:    []models.Ticket{{3}},
		BaseAmount: 1000,
		Odds:       &odds,
	}
	losingBet := &models.Bet{
		ID:         8,
		RaceID:     race.ID,
		UserID:     101,
		Type:       models.BetTypeWin,
		Mode:       models.BetModeNormal,
		Tickets:    []models.Ticket{{8}},
		BaseAmount: 1000,
	}

	user := &models.User{UserID: 100, Money: 0, XP: 0, Level: 5, MoneyMultiplier: 1}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRaceRepo.On("Finish", ctx, race.ID, 3, ranking, mock.AnythingOfType("time.Time")).Return(nil)
	mockBetRepo.On("GetUnsettledByRace", ctx, race.ID).Return([]*models.Bet{winningBet, losingBet}, nil)
	mockBetRepo.On("GetUnsettledWin5ByDay", ctx, "20260314").Return([]*models.Bet{}, nil)

	// 1000 at captured odds 3.0.
	mockBetRepo.On("SettlePayout", ctx, int64(7), int64(3000)).Return(true, nil)
	mockUserRepo.On("GetForUpdate", ctx, int64(100)).Return(user, nil)
	mockUserRepo.On("SetMoney", ctx, int64(100), int64(3000)).Return(nil)
	mockUserRepo.On("SetProgress", ctx, int64(100), int64(300), 5).Return(nil)
	mockLedgerRepo.On("Record", ctx, mock.MatchedBy(func(tx *models.MoneyTransaction) bool {
		return tx.Type == models.TransactionTypePayout && tx.Amount == 3000
	})).Return(nil)

	err := engine.settle(ctx, race, ranking)
	require.NoError(t, err)

	// The losing bet keeps payout 0 and never touches the wallet.
	mockBetRepo.AssertNotCalled(t, "SettlePayout", ctx, int64(8), mock.Anything)
	mockBetRepo.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)
}

func TestRaceEngine_Settle_GuardedPayoutSkipsAlreadySettled(t *testing.T) {
	ctx := context.Background()
	engine, mockFactory, mockUoW, mockUserRepo, _, mockRaceRepo, mockBetRepo := raceTestFixture(t)

	race := waitingRace(t, tokyoTime(t, 9, 0))
	race.Status = models.RaceStatusCalculating
	ranking := []int{3, 5, 1, 2, 4, 6, 7, 8}

	odds := 3.0
	bet := &models.Bet{
		ID:         7,
		RaceID:     race.ID,
		UserID:     100,
		Type:       models.BetTypeWin,
		Mode:       models.BetModeNormal,
		Tickets:    []models.Ticket{{3}},
		BaseAmount: 1000,
		Odds:       &odds,
	}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRaceRepo.On("Finish", ctx, race.ID, 3, ranking, mock.AnythingOfType("time.Time")).Return(nil)
	mockBetRepo.On("GetUnsettledByRace", ctx, race.ID).Return([]*models.Bet{bet}, nil)
	mockBetRepo.On("GetUnsettledWin5ByDay", ctx, "20260314").Return([]*models.Bet{}, nil)

	// A concurrent settlement already wrote this payout.
	mockBetRepo.On("SettlePayout", ctx, int64(7), int64(3000)).Return(false, nil)

	err := engine.settle(ctx, race, ranking)
	require.NoError(t, err)
	mockUserRepo.AssertNotCalled(t, "SetMoney")
}

func TestRaceEngine_Settle_DefersWin5UntilQuintetComplete(t *testing.T) {
	ctx := context.Background()
	engine, mockFactory, mockUoW, mockUserRepo, _, mockRaceRepo, mockBetRepo := raceTestFixture(t)

	// Settling the day's second race while the rest are still waiting.
	race := waitingRace(t, tokyoTime(t, 10, 0))
	race.ID = "20260314-1000"
	race.Status = models.RaceStatusCalculating
	ranking := []int{1, 2, 3, 4, 5, 6, 7, 8}

	win5Bet := &models.Bet{
		ID:         9,
		RaceID:     "20260314-0900",
		UserID:     100,
		Type:       models.BetTypeWin5,
		Mode:       models.BetModeNormal,
		Tickets:    []models.Ticket{{1, 1, 1, 1, 1}},
		BaseAmount: 100,
	}

	first := waitingRace(t, tokyoTime(t, 9, 0))
	first.Status = models.RaceStatusFinished
	first.Ranking = []int{1, 2, 3}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRaceRepo.On("Finish", ctx, race.ID, 1, ranking, mock.AnythingOfType("time.Time")).Return(nil)
	mockBetRepo.On("GetUnsettledByRace", ctx, race.ID).Return([]*models.Bet{}, nil)
	mockBetRepo.On("GetUnsettledWin5ByDay", ctx, "20260314").Return([]*models.Bet{win5Bet}, nil)

	// Slots three to five have no rows yet.
	mockRaceRepo.On("GetByIDs", ctx, []string{
		"20260314-0900", "20260314-1000", "20260314-1100", "20260314-1200", "20260314-1300",
	}).Return(map[string]*models.Race{"20260314-0900": first}, nil)

	err := engine.settle(ctx, race, ranking)
	require.NoError(t, err)
	mockBetRepo.AssertNotCalled(t, "SettlePayout")
	mockUserRepo.AssertNotCalled(t, "SetMoney")
}

func TestRaceEngine_AwaitSettled_ReturnsOnceFinished(t *testing.T) {
	ctx := context.Background()
	engine, mockFactory, mockUoW, _, _, mockRaceRepo, _ := raceTestFixture(t)

	calculating := waitingRace(t, tokyoTime(t, 9, 0))
	calculating.Status = models.RaceStatusCalculating
	finished := waitingRace(t, tokyoTime(t, 9, 0))
	finished.Status = models.RaceStatusFinished

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRaceRepo.On("GetByID", ctx, calculating.ID).Return(calculating, nil).Twice()
	mockRaceRepo.On("GetByID", ctx, calculating.ID).Return(finished, nil).Once()

	race, err := engine.AwaitSettled(ctx, calculating.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusFinished, race.Status)
}

func TestGenerateField_DeterministicPerRace(t *testing.T) {
	a := generateField("20260314-0900")
	b := generateField("20260314-0900")
	c := generateField("20260314-1000")

	require.Len(t, a, models.HorsesPerRace)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	for i, h := range a {
		assert.Equal(t, i+1, h.ID)
		assert.GreaterOrEqual(t, h.Odds, 1.1)
		assert.LessOrEqual(t, h.Odds, 99.9)
		assert.Greater(t, h.WinRate, 0.0)
	}
}

func TestXPProgression(t *testing.T) {
	assert.Equal(t, int64(100), xpThreshold(1))
	assert.Equal(t, int64(300), xpThreshold(2))
	assert.Equal(t, int64(600), xpThreshold(3))

	assert.Equal(t, int64(10), payoutXP(0))
	assert.Equal(t, int64(10), payoutXP(50))
	assert.Equal(t, int64(300), payoutXP(3000))
}
