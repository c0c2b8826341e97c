package service

import (
	"context"
	"fmt"
	"time"

	"derby/config"
	"derby/events"
	"derby/models"
	"github.com/google/uuid"
)

type wageringService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
	engine     *RaceEngine
}

// NewWageringService creates the wagering façade over the race engine
func NewWageringService(uowFactory UnitOfWorkFactory, cfg *config.Config, engine *RaceEngine) WageringService {
	return &wageringService{
		uowFactory: uowFactory,
		cfg:        cfg,
		engine:     engine,
	}
}

// GetActiveRace resolves the nearest not-yet-finished race slot, lazily
// creating race rows and triggering due transitions along the way.
func (s *wageringService) GetActiveRace(ctx context.Context, userID int64) (*models.ActiveRaceView, error) {
	now := time.Now()
	schedule := s.engine.Schedule()

	candidate, started := schedule.CurrentPost(now)
	if !started {
		candidate = schedule.NextPost(now)
	}

	var active *models.Race
	// One extra step allows wrapping past the last slot of the day.
	for hop := 0; hop <= schedule.SlotCount(); hop++ {
		race, err := s.engine.EnsureRace(ctx, candidate)
		if err != nil {
			return nil, err
		}

		if race.Status != models.RaceStatusFinished && !now.Before(race.ScheduledAt) {
			if err := s.engine.ResolveIfDue(ctx, race.ID); err != nil {
				return nil, err
			}
			race, err = s.engine.AwaitSettled(ctx, race.ID)
			if err != nil {
				return nil, err
			}
		}

		if race.Status != models.RaceStatusFinished {
			active = race
			break
		}
		candidate = schedule.NextPost(race.ScheduledAt)
	}
	if active == nil {
		return nil, fmt.Errorf("no bettable race slot found")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	view := &models.ActiveRaceView{ActiveRace: active}

	myBets, err := uow.BetRepository().GetByRaceAndUser(ctx, active.ID, userID)
	if err != nil {
		return nil, err
	}
	view.MyBets = myBets

	lastFinished, err := uow.RaceRepository().GetLastFinished(ctx)
	if err != nil {
		return nil, err
	}
	if lastFinished != nil {
		view.LastFinishedRace = lastFinished
		lastBets, err := uow.BetRepository().GetByRaceAndUser(ctx, lastFinished.ID, userID)
		if err != nil {
			return nil, err
		}
		view.LastFinishedRaceBets = lastBets
	}
	return view, nil
}

// PlaceBet validates the wager group, debits the combined total, and
// persists one bet row per wager, all in one atomic unit of work.
func (s *wageringService) PlaceBet(ctx context.Context, userID int64, raceID string, requests []models.BetRequest) (*models.PlaceBetResult, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: no wagers submitted", ErrInvalidSelection)
	}
	now := time.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	race, err := uow.RaceRepository().GetByID(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if race == nil {
		return nil, fmt.Errorf("race %s: %w", raceID, ErrRaceNotFound)
	}
	if !race.BettingOpen(now) {
		return nil, fmt.Errorf("race %s: %w", raceID, ErrBettingClosed)
	}

	type prepared struct {
		req     models.BetRequest
		tickets []models.Ticket
		odds    *float64
	}

	var wagers []prepared
	var total int64
	for i, req := range requests {
		if req.BaseAmount <= 0 {
			return nil, fmt.Errorf("%w: wager %d has non-positive amount", ErrInvalidAmount, i+1)
		}

		tickets, err := GenerateTickets(req.Type, req.Mode, req.Selection)
		if err != nil {
			return nil, fmt.Errorf("wager %d: %w", i+1, err)
		}
		if err := validateTickets(req.Type, tickets, race); err != nil {
			return nil, fmt.Errorf("wager %d: %w", i+1, err)
		}

		cost := req.BaseAmount * int64(len(tickets))
		if req.Total != 0 && req.Total != cost {
			return nil, fmt.Errorf("%w: wager %d declares %d but %d tickets cost %d",
				ErrInvalidAmount, i+1, req.Total, len(tickets), cost)
		}

		wagers = append(wagers, prepared{
			req:     req,
			tickets: tickets,
			odds:    capturedOdds(req.Type, req.Mode, tickets, race),
		})
		total += cost
	}

	desc := fmt.Sprintf("bet on race %s", raceID)
	user, _, err := applyTransaction(ctx, uow, s.cfg, userID, -total, desc, models.TransactionTypeBet, now)
	if err != nil {
		return nil, err
	}

	groupID := uuid.New()
	betIDs := make([]int64, 0, len(wagers))
	for _, w := range wagers {
		bet := &models.Bet{
			RaceID:      raceID,
			UserID:      userID,
			Type:        w.req.Type,
			Mode:        w.req.Mode,
			Tickets:     w.tickets,
			BaseAmount:  w.req.BaseAmount,
			TotalAmount: w.req.BaseAmount * int64(len(w.tickets)),
			Odds:        w.odds,
			GroupID:     groupID,
		}
		if err := uow.BetRepository().Create(ctx, bet); err != nil {
			return nil, err
		}
		betIDs = append(betIDs, bet.ID)

		uow.EventBus().Publish(events.BetPlacedEvent{
			UserID:      userID,
			RaceID:      raceID,
			BetID:       bet.ID,
			BetType:     bet.Type,
			TicketCount: len(bet.Tickets),
			TotalAmount: bet.TotalAmount,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.PlaceBetResult{
		GroupID:    groupID,
		BetIDs:     betIDs,
		TotalSpent: total,
		NewBalance: user.Money,
	}, nil
}

// CancelBet removes a bet while its race is still open and refunds the
// original debit in the same unit of work, leaving net balance unchanged.
func (s *wageringService) CancelBet(ctx context.Context, userID int64, betID int64) (*models.CancelBetResult, error) {
	now := time.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet == nil || bet.UserID != userID {
		return nil, fmt.Errorf("bet %d: %w", betID, ErrBetNotFound)
	}

	race, err := uow.RaceRepository().GetByID(ctx, bet.RaceID)
	if err != nil {
		return nil, err
	}
	if race == nil {
		return nil, fmt.Errorf("race %s: %w", bet.RaceID, ErrRaceNotFound)
	}
	if !race.BettingOpen(now) {
		return nil, fmt.Errorf("race %s: %w", race.ID, ErrBettingClosed)
	}

	deleted, err := uow.BetRepository().Delete(ctx, betID, userID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, fmt.Errorf("bet %d: %w", betID, ErrBetNotFound)
	}

	desc := fmt.Sprintf("refund for cancelled bet on race %s", bet.RaceID)
	user, _, err := applyTransaction(ctx, uow, s.cfg, userID, bet.TotalAmount, desc, models.TransactionTypeRefund, now)
	if err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.BetCancelledEvent{
		UserID:   userID,
		RaceID:   bet.RaceID,
		BetID:    betID,
		Refunded: bet.TotalAmount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.CancelBetResult{
		Refunded:   bet.TotalAmount,
		NewBalance: user.Money,
	}, nil
}

// validateTickets checks every ticket element against the race: horse IDs
// must be in the field, frame numbers within 1-4.
func validateTickets(betType models.BetType, tickets []models.Ticket, race *models.Race) error {
	for _, t := range tickets {
		for _, v := range t {
			switch betType {
			case models.BetTypeFrame:
				if v < 1 || v > models.HorsesPerRace/2 {
					return fmt.Errorf("%w: frame %d out of range", ErrInvalidSelection, v)
				}
			case models.BetTypeWin5:
				// Picks refer to sibling races that may not exist yet;
				// only the ID range can be checked here.
				if v < 1 || v > models.HorsesPerRace {
					return fmt.Errorf("%w: horse %d out of range", ErrInvalidSelection, v)
				}
			default:
				if race.HorseByID(v) == nil {
					return fmt.Errorf("%w: horse %d is not in the race", ErrInvalidSelection, v)
				}
			}
		}
	}
	return nil
}

// capturedOdds snapshots the odds for single-horse normal bets at bet time.
// Group and multi-ticket bets settle through the fallback formula instead.
func capturedOdds(betType models.BetType, mode models.BetMode, tickets []models.Ticket, race *models.Race) *float64 {
	if mode != models.BetModeNormal || len(tickets) != 1 {
		return nil
	}
	switch betType {
	case models.BetTypeWin, models.BetTypePlace:
		if h := race.HorseByID(tickets[0][0]); h != nil {
			odds := h.Odds
			return &odds
		}
	}
	return nil
}
