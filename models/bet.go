package models

import (
	"time"

	"github.com/google/uuid"
)

// BetType identifies the winning condition a bet is judged against
type BetType string

const (
	BetTypeWin      BetType = "win"
	BetTypePlace    BetType = "place"
	BetTypeFrame    BetType = "frame"
	BetTypeQuinella BetType = "quinella"
	BetTypeExacta   BetType = "exacta"
	BetTypeWide     BetType = "wide"
	BetTypeTrio     BetType = "trio"
	BetTypeTrifecta BetType = "trifecta"
	BetTypeWin5     BetType = "win5"
)

// BetMode is how the user's selection expands into tickets
type BetMode string

const (
	BetModeNormal    BetMode = "normal"
	BetModeBox       BetMode = "box"
	BetModeNagashi   BetMode = "nagashi"
	BetModeFormation BetMode = "formation"
)

// Ticket is one concrete tuple of horse IDs (frame numbers for frame bets)
// that a bet covers. A single bet may expand to many tickets.
type Ticket []int

// TicketSize returns how many elements a ticket of this type carries.
func (t BetType) TicketSize() int {
	switch t {
	case BetTypeWin, BetTypePlace:
		return 1
	case BetTypeFrame, BetTypeQuinella, BetTypeExacta, BetTypeWide:
		return 2
	case BetTypeTrio, BetTypeTrifecta:
		return 3
	case BetTypeWin5:
		return 5
	}
	return 0
}

// OrderSensitive reports whether ticket element order matters for this type.
func (t BetType) OrderSensitive() bool {
	switch t {
	case BetTypeExacta, BetTypeTrifecta, BetTypeWin5:
		return true
	}
	return false
}

// Valid reports whether t is a known bet type.
func (t BetType) Valid() bool {
	return t.TicketSize() > 0
}

// PayoutMultiplier is the fixed per-type multiplier applied when a group
// bet's odds were not captured at bet time. Single-horse types pay straight
// odds and have no table entry.
func (t BetType) PayoutMultiplier() int64 {
	switch t {
	case BetTypeFrame:
		return 3
	case BetTypeQuinella:
		return 5
	case BetTypeExacta:
		return 10
	case BetTypeWide:
		return 3
	case BetTypeTrio:
		return 15
	case BetTypeTrifecta:
		return 50
	case BetTypeWin5:
		return 100
	}
	return 1
}

// Bet represents one wager on a race. Tickets are immutable once the race
// leaves the waiting state; Payout/IsWin are written at most once by
// settlement, guarded by the payout = 0 precondition.
type Bet struct {
	ID          int64     `db:"id"`
	RaceID      string    `db:"race_id"`
	UserID      int64     `db:"user_id"`
	Type        BetType   `db:"bet_type"`
	Mode        BetMode   `db:"bet_mode"`
	Tickets     []Ticket  `db:"tickets"`
	BaseAmount  int64     `db:"base_amount"`
	TotalAmount int64     `db:"total_amount"`
	Payout      int64     `db:"payout"`
	IsWin       bool      `db:"is_win"`
	Odds        *float64  `db:"odds"`
	GroupID     uuid.UUID `db:"group_id"`
	CreatedAt   time.Time `db:"created_at"`
}

// TicketSelection is the user's raw pick set, interpreted per bet mode:
// Picks for normal (the exact tuple) and box (the superset), Anchor and
// Partners for nagashi, Groups for formation.
type TicketSelection struct {
	Picks    []int   `json:"picks,omitempty"`
	Anchor   int     `json:"anchor,omitempty"`
	Partners []int   `json:"partners,omitempty"`
	Groups   [][]int `json:"groups,omitempty"`
}

// BetRequest is one wager as submitted by a caller
type BetRequest struct {
	Type       BetType         `json:"type"`
	Mode       BetMode         `json:"mode"`
	Selection  TicketSelection `json:"ticket_details"`
	BaseAmount int64           `json:"amount"`
	Total      int64           `json:"total"`
}

// PlaceBetResult is returned to the caller after a successful placement
type PlaceBetResult struct {
	GroupID    uuid.UUID
	BetIDs     []int64
	TotalSpent int64
	NewBalance int64
}

// CancelBetResult is returned after a successful cancellation
type CancelBetResult struct {
	Refunded   int64
	NewBalance int64
}
