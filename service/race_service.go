package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"derby/config"
	"derby/events"
	"derby/models"
	log "github.com/sirupsen/logrus"
)

const (
	// calculatingStaleAfter is how long a race may sit in calculating
	// before another caller may take the resolution over. A resolver that
	// died mid-settlement without running recovery holds the state at most
	// this long.
	calculatingStaleAfter = 2 * time.Minute

	// Readers observing a calculating race poll with bounded retries and
	// a short fixed delay rather than blocking indefinitely.
	settlePollRetries = 5
	settlePollDelay   = 200 * time.Millisecond
)

// RaceEngine owns the race lifecycle: lazy creation, the
// waiting -> calculating -> finished state machine, and settlement.
type RaceEngine struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
	schedule   *Schedule
}

// NewRaceEngine creates a new race engine
func NewRaceEngine(uowFactory UnitOfWorkFactory, cfg *config.Config, schedule *Schedule) *RaceEngine {
	return &RaceEngine{
		uowFactory: uowFactory,
		cfg:        cfg,
		schedule:   schedule,
	}
}

// Schedule exposes the engine's timetable
func (e *RaceEngine) Schedule() *Schedule {
	return e.schedule
}

// EnsureRace lazily creates the race row for a post time and returns the
// authoritative row. Creation is idempotent: concurrent callers converge on
// whichever insert won.
func (e *RaceEngine) EnsureRace(ctx context.Context, post time.Time) (*models.Race, error) {
	raceID := e.schedule.RaceID(post)

	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	race, err := uow.RaceRepository().GetByID(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if race == nil {
		race, err = uow.RaceRepository().CreateIfAbsent(ctx, &models.Race{
			ID:          raceID,
			Name:        e.schedule.RaceName(post),
			Horses:      generateField(raceID),
			ScheduledAt: post,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return race, nil
}

// GetRace reads one race, nil if absent
func (e *RaceEngine) GetRace(ctx context.Context, raceID string) (*models.Race, error) {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.RaceRepository().GetByID(ctx, raceID)
}

// ResolveIfDue transitions a race past its post time through calculating
// into finished, settling all bets. A CAS miss on the calculating
// transition means another caller holds the resolution and is a no-op.
func (e *RaceEngine) ResolveIfDue(ctx context.Context, raceID string) error {
	race, err := e.GetRace(ctx, raceID)
	if err != nil {
		return err
	}
	if race == nil {
		return fmt.Errorf("race %s: %w", raceID, ErrRaceNotFound)
	}

	now := time.Now()
	if race.Status == models.RaceStatusFinished || now.Before(race.ScheduledAt) {
		return nil
	}

	claimed, err := e.beginCalculating(ctx, raceID, now)
	if err != nil {
		return err
	}
	if claimed == nil {
		// Another resolver holds this race.
		return nil
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	ranking := drawRanking(claimed.Horses, rnd)

	if err := e.settle(ctx, claimed, ranking); err != nil {
		e.recover(ctx, raceID, err)
		return fmt.Errorf("settlement of race %s failed: %w", raceID, err)
	}
	return nil
}

// beginCalculating is the conditional waiting -> calculating write, its own
// unit of work so the claim is visible to concurrent pollers.
func (e *RaceEngine) beginCalculating(ctx context.Context, raceID string, now time.Time) (*models.Race, error) {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	race, err := uow.RaceRepository().TryBeginCalculating(ctx, raceID, now, now.Add(-calculatingStaleAfter))
	if err != nil {
		return nil, err
	}
	if race == nil {
		return nil, nil
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return race, nil
}

// settle persists the outcome and pays every winning bet in one
// all-or-nothing unit of work.
func (e *RaceEngine) settle(ctx context.Context, race *models.Race, ranking []int) error {
	now := time.Now()

	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.RaceRepository().Finish(ctx, race.ID, ranking[0], ranking, now); err != nil {
		return err
	}
	race.Ranking = ranking
	race.Status = models.RaceStatusFinished

	bets, err := uow.BetRepository().GetUnsettledByRace(ctx, race.ID)
	if err != nil {
		return err
	}

	for _, bet := range bets {
		if bet.Type == models.BetTypeWin5 {
			// Quintet bets settle through the day-level pass below.
			continue
		}
		outcome := evaluateBet(bet, race, nil)
		if err := e.payIfWon(ctx, uow, bet, outcome, now); err != nil {
			return err
		}
	}

	if err := e.settleWin5(ctx, uow, race, now); err != nil {
		return err
	}

	uow.EventBus().Publish(events.RaceFinishedEvent{
		RaceID:   race.ID,
		WinnerID: ranking[0],
		Ranking:  ranking,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

// settleWin5 evaluates the day's outstanding quintet bets. While any of the
// first five races is unfinished their settlement stays deferred; each
// sibling race finishing retries them.
func (e *RaceEngine) settleWin5(ctx context.Context, uow UnitOfWork, race *models.Race, now time.Time) error {
	dayKey := e.schedule.DayKey(race.ScheduledAt)

	pending, err := uow.BetRepository().GetUnsettledWin5ByDay(ctx, dayKey)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	quintet, err := e.loadQuintet(ctx, uow, race)
	if err != nil {
		return err
	}

	for _, bet := range pending {
		outcome := evaluateBet(bet, nil, quintet)
		if outcome.Deferred {
			continue
		}
		if err := e.payIfWon(ctx, uow, bet, outcome, now); err != nil {
			return err
		}
	}
	return nil
}

// loadQuintet resolves the day's first five races and their winners.
// Winners stays nil while any of them is unfinished.
func (e *RaceEngine) loadQuintet(ctx context.Context, uow UnitOfWork, settled *models.Race) (*quintetResult, error) {
	posts := e.schedule.FirstPosts(settled.ScheduledAt, Win5SlotCount)
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = e.schedule.RaceID(p)
	}

	byID, err := uow.RaceRepository().GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &quintetResult{
		Races:   make([]*models.Race, len(ids)),
		Winners: make([]int, len(ids)),
	}
	for i, id := range ids {
		r := byID[id]
		if id == settled.ID {
			// The race being settled carries its outcome in memory; the
			// stored row was just updated in this same transaction.
			r = settled
		}
		if r == nil || r.Status != models.RaceStatusFinished || len(r.Ranking) == 0 {
			result.Winners = nil
		}
		result.Races[i] = r
		if result.Winners != nil {
			result.Winners[i] = r.Ranking[0]
		}
	}
	return result, nil
}

// payIfWon commits a winning bet's payout with the guarded update, then
// credits the ledger and awards experience. The guard makes the credit
// at-most-once even under retried settlement.
func (e *RaceEngine) payIfWon(ctx context.Context, uow UnitOfWork, bet *models.Bet, outcome betOutcome, now time.Time) error {
	if !outcome.Win || outcome.Payout <= 0 {
		return nil
	}

	settledNow, err := uow.BetRepository().SettlePayout(ctx, bet.ID, outcome.Payout)
	if err != nil {
		return err
	}
	if !settledNow {
		return nil
	}

	desc := fmt.Sprintf("payout for %s bet on race %s", bet.Type, bet.RaceID)
	if _, _, err := applyTransaction(ctx, uow, e.cfg, bet.UserID, outcome.Payout, desc, models.TransactionTypePayout, now); err != nil {
		return err
	}

	if err := awardExperience(ctx, uow, e.cfg, bet.UserID, outcome.Payout, now); err != nil {
		return err
	}

	uow.EventBus().Publish(events.PayoutAwardedEvent{
		UserID: bet.UserID,
		RaceID: bet.RaceID,
		BetID:  bet.ID,
		Payout: outcome.Payout,
	})
	return nil
}

// recover is the crash-recovery path: roll the race back to waiting so a
// later caller retries settlement from scratch, and leave an audit trail.
func (e *RaceEngine) recover(ctx context.Context, raceID string, cause error) {
	log.WithFields(log.Fields{
		"raceID": raceID,
	}).WithError(cause).Error("Settlement failed, rolling race back to waiting")

	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.WithField("raceID", raceID).WithError(err).Error("Recovery begin failed")
		return
	}
	defer uow.Rollback()

	if err := uow.RaceRepository().ResetToWaiting(ctx, raceID); err != nil {
		log.WithField("raceID", raceID).WithError(err).Error("Recovery reset failed")
		return
	}
	if err := uow.Commit(); err != nil {
		log.WithField("raceID", raceID).WithError(err).Error("Recovery commit failed")
	}
}

// AwaitSettled polls a calculating race with bounded retries. Exhausting
// the retries is not an error; the last observed state is returned.
func (e *RaceEngine) AwaitSettled(ctx context.Context, raceID string) (*models.Race, error) {
	var race *models.Race
	var err error

	for attempt := 0; attempt <= settlePollRetries; attempt++ {
		race, err = e.GetRace(ctx, raceID)
		if err != nil {
			return nil, err
		}
		if race == nil || race.Status != models.RaceStatusCalculating {
			return race, nil
		}
		if attempt < settlePollRetries {
			select {
			case <-ctx.Done():
				return race, ctx.Err()
			case <-time.After(settlePollDelay):
			}
		}
	}
	return race, nil
}

// ResolveDue is the sweeper entry point: ensure the current slot's race
// exists and resolve it if its post time has passed.
func (e *RaceEngine) ResolveDue(ctx context.Context) error {
	post, ok := e.schedule.CurrentPost(time.Now())
	if !ok {
		return nil
	}
	race, err := e.EnsureRace(ctx, post)
	if err != nil {
		return err
	}
	if race.Status == models.RaceStatusFinished {
		return nil
	}
	return e.ResolveIfDue(ctx, race.ID)
}
