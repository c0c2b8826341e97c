package events

import (
	"context"
	"sync"

	"derby/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange EventType = "balance_change"
	EventTypeUserCreated   EventType = "user_created"
	EventTypeBetPlaced     EventType = "bet_placed"
	EventTypeBetCancelled  EventType = "bet_cancelled"
	EventTypeRaceFinished  EventType = "race_finished"
	EventTypePayoutAwarded EventType = "payout_awarded"
	EventTypeLevelUp       EventType = "level_up"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a ledger movement that occurred
type BalanceChangeEvent struct {
	UserID          int64
	OldBalance      int64
	NewBalance      int64
	ChangeAmount    int64
	TransactionType models.TransactionType
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// UserCreatedEvent represents a new user creation
type UserCreatedEvent struct {
	UserID         int64
	Username       string
	InitialBalance int64
}

func (e UserCreatedEvent) Type() EventType {
	return EventTypeUserCreated
}

// BetPlacedEvent represents one wager that was placed
type BetPlacedEvent struct {
	UserID      int64
	RaceID      string
	BetID       int64
	BetType     models.BetType
	TicketCount int
	TotalAmount int64
}

func (e BetPlacedEvent) Type() EventType {
	return EventTypeBetPlaced
}

// BetCancelledEvent represents a bet cancelled before cutoff
type BetCancelledEvent struct {
	UserID   int64
	RaceID   string
	BetID    int64
	Refunded int64
}

func (e BetCancelledEvent) Type() EventType {
	return EventTypeBetCancelled
}

// RaceFinishedEvent represents a race whose outcome was settled
type RaceFinishedEvent struct {
	RaceID   string
	WinnerID int
	Ranking  []int
}

func (e RaceFinishedEvent) Type() EventType {
	return EventTypeRaceFinished
}

// PayoutAwardedEvent represents a winning bet being credited
type PayoutAwardedEvent struct {
	UserID int64
	RaceID string
	BetID  int64
	Payout int64
}

func (e PayoutAwardedEvent) Type() EventType {
	return EventTypePayoutAwarded
}

// LevelUpEvent represents a user reaching a new level
type LevelUpEvent struct {
	UserID   int64
	NewLevel int
	Bonus    int64
}

func (e LevelUpEvent) Type() EventType {
	return EventTypeLevelUp
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit publishes an event to all registered handlers. Handlers run
// asynchronously so a slow subscriber cannot block the caller.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// TransactionalBus stashes events published during a unit of work and
// flushes them to the real bus only after the database commit succeeds.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush is called after a successful DB commit. Events are emitted on a
// background context since the transaction's context may already be done.
func (b *TransactionalBus) Flush(ctx context.Context) {
	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard is called after a rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
