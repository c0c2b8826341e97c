package models

import (
	"time"
)

// User represents a player's game account and wallet state
type User struct {
	UserID              int64      `db:"user_id"`
	Username            string     `db:"username"`
	Money               int64      `db:"money"`
	XP                  int64      `db:"xp"`
	Level               int        `db:"level"`
	MoneyMultiplier     float64    `db:"money_multiplier"`
	MultiplierExpiresAt *time.Time `db:"multiplier_expires_at"`
	LastLoanDate        *time.Time `db:"last_loan_date"`
	TodayLoanAmount     int64      `db:"today_loan_amount"`
	LastBonusDate       *time.Time `db:"last_bonus_date"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// ActiveMultiplier returns the user's money multiplier if it is still in
// effect at the given time, or 1 otherwise.
func (u *User) ActiveMultiplier(now time.Time) float64 {
	if u.MoneyMultiplier <= 1 {
		return 1
	}
	if u.MultiplierExpiresAt != nil && !now.Before(*u.MultiplierExpiresAt) {
		return 1
	}
	return u.MoneyMultiplier
}

// Debt returns the magnitude of the user's negative balance, 0 if solvent.
func (u *User) Debt() int64 {
	if u.Money < 0 {
		return -u.Money
	}
	return 0
}
