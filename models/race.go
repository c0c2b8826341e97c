package models

import (
	"time"
)

// RaceStatus represents the lifecycle state of a race
type RaceStatus string

const (
	RaceStatusWaiting     RaceStatus = "waiting"
	RaceStatusCalculating RaceStatus = "calculating"
	RaceStatusFinished    RaceStatus = "finished"
)

// HorsesPerRace is fixed by contract; frame numbers 1-4 each cover two horses.
const HorsesPerRace = 8

// BetCutoff is how long before post time betting closes.
const BetCutoff = time.Minute

// Horse is one runner in a race. WinRate values are relative weights and
// need not sum to 1 across the field.
type Horse struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	WinRate float64 `json:"win_rate"`
	Odds    float64 `json:"odds"`
}

// FrameOf maps a horse ID (1-8) to its frame number (1-4).
func FrameOf(horseID int) int {
	return (horseID + 1) / 2
}

// Race represents one scheduled race and its outcome
type Race struct {
	ID            string     `db:"id"`
	Name          string     `db:"name"`
	Horses        []Horse    `db:"horses"`
	Status        RaceStatus `db:"status"`
	ScheduledAt   time.Time  `db:"scheduled_at"`
	CalculatingAt *time.Time `db:"calculating_at"`
	WinnerID      *int       `db:"winner_id"`
	Ranking       []int      `db:"ranking"`
	FinishedAt    *time.Time `db:"finished_at"`
	CreatedAt     time.Time  `db:"created_at"`
}

// HorseByID returns the horse with the given ID, or nil if not in the field.
func (r *Race) HorseByID(id int) *Horse {
	for i := range r.Horses {
		if r.Horses[i].ID == id {
			return &r.Horses[i]
		}
	}
	return nil
}

// BettingOpen reports whether bets may still be placed or cancelled: the
// race must not have left the waiting state and the cutoff buffer before
// post time must not have passed.
func (r *Race) BettingOpen(now time.Time) bool {
	return r.Status == RaceStatusWaiting && now.Before(r.ScheduledAt.Add(-BetCutoff))
}

// TopThree returns the first three finishers from the stored ranking.
func (r *Race) TopThree() (first, second, third int, ok bool) {
	if len(r.Ranking) < 3 {
		return 0, 0, 0, false
	}
	return r.Ranking[0], r.Ranking[1], r.Ranking[2], true
}

// ActiveRaceView is the caller-facing snapshot returned by GetActiveRace
type ActiveRaceView struct {
	ActiveRace           *Race
	LastFinishedRace     *Race
	MyBets               []*Bet
	LastFinishedRaceBets []*Bet
}
