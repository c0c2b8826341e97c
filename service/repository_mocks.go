package service

import (
	"context"
	"time"

	"derby/events"
	"derby/models"

	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, userID int64, username string, initialBalance int64) (*models.User, error) {
	args := m.Called(ctx, userID, username, initialBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) SetMoney(ctx context.Context, userID int64, money int64) error {
	args := m.Called(ctx, userID, money)
	return args.Error(0)
}

func (m *MockUserRepository) SetLoanState(ctx context.Context, userID int64, todayLoanAmount int64, lastLoanDate time.Time) error {
	args := m.Called(ctx, userID, todayLoanAmount, lastLoanDate)
	return args.Error(0)
}

func (m *MockUserRepository) SetProgress(ctx context.Context, userID int64, xp int64, level int) error {
	args := m.Called(ctx, userID, xp, level)
	return args.Error(0)
}

func (m *MockUserRepository) SetLastBonusDate(ctx context.Context, userID int64, date time.Time) error {
	args := m.Called(ctx, userID, date)
	return args.Error(0)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Record(ctx context.Context, tx *models.MoneyTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.MoneyTransaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MoneyTransaction), args.Error(1)
}

func (m *MockLedgerRepository) SumAmounts(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) HasInitial(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// MockRaceRepository is a mock implementation of RaceRepository
type MockRaceRepository struct {
	mock.Mock
}

func (m *MockRaceRepository) GetByID(ctx context.Context, raceID string) (*models.Race, error) {
	args := m.Called(ctx, raceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

func (m *MockRaceRepository) GetByIDs(ctx context.Context, raceIDs []string) (map[string]*models.Race, error) {
	args := m.Called(ctx, raceIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.Race), args.Error(1)
}

func (m *MockRaceRepository) CreateIfAbsent(ctx context.Context, race *models.Race) (*models.Race, error) {
	args := m.Called(ctx, race)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

func (m *MockRaceRepository) TryBeginCalculating(ctx context.Context, raceID string, now, staleBefore time.Time) (*models.Race, error) {
	args := m.Called(ctx, raceID, now, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

func (m *MockRaceRepository) Finish(ctx context.Context, raceID string, winnerID int, ranking []int, finishedAt time.Time) error {
	args := m.Called(ctx, raceID, winnerID, ranking, finishedAt)
	return args.Error(0)
}

func (m *MockRaceRepository) ResetToWaiting(ctx context.Context, raceID string) error {
	args := m.Called(ctx, raceID)
	return args.Error(0)
}

func (m *MockRaceRepository) GetLastFinished(ctx context.Context) (*models.Race, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Race), args.Error(1)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) GetByID(ctx context.Context, betID int64) (*models.Bet, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByRaceAndUser(ctx context.Context, raceID string, userID int64) ([]*models.Bet, error) {
	args := m.Called(ctx, raceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetUnsettledByRace(ctx context.Context, raceID string) ([]*models.Bet, error) {
	args := m.Called(ctx, raceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetUnsettledWin5ByDay(ctx context.Context, dayPrefix string) ([]*models.Bet, error) {
	args := m.Called(ctx, dayPrefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) SettlePayout(ctx context.Context, betID int64, payout int64) (bool, error) {
	args := m.Called(ctx, betID, payout)
	return args.Bool(0), args.Error(1)
}

func (m *MockBetRepository) Delete(ctx context.Context, betID int64, userID int64) (bool, error) {
	args := m.Called(ctx, betID, userID)
	return args.Bool(0), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// nopPublisher swallows events for tests that do not assert on them
type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository
// accessors return whatever SetRepositories configured rather than going
// through expectations.
type MockUnitOfWork struct {
	mock.Mock

	users  UserRepository
	ledger LedgerRepository
	races  RaceRepository
	bets   BetRepository
	bus    EventPublisher
}

// SetRepositories wires the per-transaction repositories the mock hands out
func (m *MockUnitOfWork) SetRepositories(users UserRepository, ledger LedgerRepository, races RaceRepository, bets BetRepository) {
	m.users = users
	m.ledger = ledger
	m.races = races
	m.bets = bets
	m.bus = nopPublisher{}
}

// SetEventBus overrides the default event sink
func (m *MockUnitOfWork) SetEventBus(bus EventPublisher) {
	m.bus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository     { return m.users }
func (m *MockUnitOfWork) LedgerRepository() LedgerRepository { return m.ledger }
func (m *MockUnitOfWork) RaceRepository() RaceRepository     { return m.races }
func (m *MockUnitOfWork) BetRepository() BetRepository       { return m.bets }
func (m *MockUnitOfWork) EventBus() EventPublisher           { return m.bus }

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
