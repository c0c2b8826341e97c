package repository

import (
	"context"
	"testing"
	"time"

	"derby/events"
	"derby/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_CommitPersistsAndFlushesEvents(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	bus := events.NewBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventTypeUserCreated, func(ctx context.Context, e events.Event) {
		received <- e
	})

	factory := NewUnitOfWorkFactory(testDB.DB, bus)
	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))

	_, err := uow.UserRepository().Create(ctx, 42, "alice", 10000)
	require.NoError(t, err)
	uow.EventBus().Publish(events.UserCreatedEvent{UserID: 42, Username: "alice", InitialBalance: 10000})

	// Nothing is visible or emitted before commit.
	outside, err := NewUserRepository(testDB.DB).GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, outside)
	select {
	case <-received:
		t.Fatal("event emitted before commit")
	default:
	}

	require.NoError(t, uow.Commit())

	outside, err = NewUserRepository(testDB.DB).GetByID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, outside)
	assert.Equal(t, int64(10000), outside.Money)

	select {
	case e := <-received:
		created, ok := e.(events.UserCreatedEvent)
		require.True(t, ok)
		assert.Equal(t, int64(42), created.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("event never flushed after commit")
	}
}

func TestUnitOfWork_RollbackDiscardsEverything(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	bus := events.NewBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventTypeUserCreated, func(ctx context.Context, e events.Event) {
		received <- e
	})

	uow := NewUnitOfWorkFactory(testDB.DB, bus).Create()
	require.NoError(t, uow.Begin(ctx))

	_, err := uow.UserRepository().Create(ctx, 42, "alice", 10000)
	require.NoError(t, err)
	uow.EventBus().Publish(events.UserCreatedEvent{UserID: 42})

	require.NoError(t, uow.Rollback())

	outside, err := NewUserRepository(testDB.DB).GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, outside)

	select {
	case <-received:
		t.Fatal("event emitted despite rollback")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnitOfWork_RollbackAfterCommitIsNoop(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	uow := NewUnitOfWorkFactory(testDB.DB, events.NewBus()).Create()
	require.NoError(t, uow.Begin(ctx))

	_, err := uow.UserRepository().Create(ctx, 42, "alice", 10000)
	require.NoError(t, err)

	require.NoError(t, uow.Commit())
	require.NoError(t, uow.Rollback())

	outside, err := NewUserRepository(testDB.DB).GetByID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, outside)
}

func TestUnitOfWork_DoubleBeginFails(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	uow := NewUnitOfWorkFactory(testDB.DB, events.NewBus()).Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	assert.Error(t, uow.Begin(ctx))
}
