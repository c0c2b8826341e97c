package service

import (
	"errors"
)

// Validation errors: reported to the caller, never mutate state.
var (
	ErrRaceNotFound     = errors.New("race not found")
	ErrBetNotFound      = errors.New("bet not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrBettingClosed    = errors.New("betting is closed for this race")
	ErrInvalidSelection = errors.New("invalid ticket selection")
	ErrInvalidAmount    = errors.New("invalid bet amount")
	ErrBonusClaimed     = errors.New("daily bonus already claimed today")
)

// Economic limit errors: abort the enclosing unit of work before any
// partial write.
var (
	ErrDebtLimit      = errors.New("debt limit exceeded")
	ErrDailyLoanLimit = errors.New("daily loan limit exceeded")
)
