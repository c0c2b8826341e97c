package service

import (
	"context"
	"fmt"
	"time"

	"derby/config"
	"derby/events"
	"derby/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Constants fixed by contract.
const (
	// DebtLimit is the most negative balance a user may reach.
	DebtLimit int64 = -10000

	// DailyLoanLimit caps the new debt a user may incur within one
	// calendar day.
	DailyLoanLimit int64 = 10000
)

// applyTransaction applies one signed money movement inside the caller's
// unit of work. It is the single core behind Transact, bet debits, refunds
// and payout credits, so every balance mutation shares the same debt-floor
// and daily-loan enforcement and the same ledger write.
//
// Returns the user with the post-movement balance and the amount actually
// applied (after any multiplier bonus).
func applyTransaction(ctx context.Context, uow UnitOfWork, cfg *config.Config, userID int64, amount int64, description string, txType models.TransactionType, now time.Time) (*models.User, int64, error) {
	user, err := getOrCreateForUpdate(ctx, uow, cfg, userID, now)
	if err != nil {
		return nil, 0, err
	}

	applied := amount
	if amount > 0 && txType.MultiplierEligible() {
		if m := user.ActiveMultiplier(now); m > 1 {
			applied = decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(m)).IntPart()
		}
	}

	oldBalance := user.Money
	newBalance := oldBalance + applied

	if newBalance < DebtLimit {
		return nil, 0, fmt.Errorf("balance %d would breach the debt floor %d: %w", newBalance, DebtLimit, ErrDebtLimit)
	}

	if applied < 0 {
		// Any movement that increases debt counts against the daily cap.
		newDebt := negPart(newBalance) - negPart(oldBalance)
		if newDebt > 0 {
			today := dateOnly(now, cfg.Location())
			todayLoan := user.TodayLoanAmount
			if user.LastLoanDate == nil || !sameCalendarDay(*user.LastLoanDate, today) {
				todayLoan = 0
			}
			if todayLoan+newDebt > DailyLoanLimit {
				return nil, 0, fmt.Errorf("new debt %d over today's %d: %w", newDebt, todayLoan, ErrDailyLoanLimit)
			}
			if err := uow.UserRepository().SetLoanState(ctx, userID, todayLoan+newDebt, today); err != nil {
				return nil, 0, err
			}
			user.TodayLoanAmount = todayLoan + newDebt
			user.LastLoanDate = &today
		}
	}

	if err := uow.UserRepository().SetMoney(ctx, userID, newBalance); err != nil {
		return nil, 0, err
	}
	user.Money = newBalance

	// The audit row is best effort: a failed insert is logged and swallowed,
	// never allowed to undo the balance mutation. Reconcile detects drift.
	row := &models.MoneyTransaction{
		UserID:       userID,
		Type:         txType,
		Amount:       applied,
		Description:  description,
		BalanceAfter: newBalance,
	}
	if err := uow.LedgerRepository().Record(ctx, row); err != nil {
		log.WithFields(log.Fields{
			"userID": userID,
			"type":   txType,
			"amount": applied,
		}).WithError(err).Warn("Failed to record ledger transaction, balance change stands")
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:          userID,
		OldBalance:      oldBalance,
		NewBalance:      newBalance,
		ChangeAmount:    applied,
		TransactionType: txType,
	})

	return user, applied, nil
}

// getOrCreateForUpdate row-locks the user's game record, creating it with
// the starting balance (and its initial ledger grant) on first contact.
func getOrCreateForUpdate(ctx context.Context, uow UnitOfWork, cfg *config.Config, userID int64, now time.Time) (*models.User, error) {
	user, err := uow.UserRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user, err = uow.UserRepository().Create(ctx, userID, "", cfg.StartingBalance)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Lost a first-contact race; the winner's row is committed by now.
		user, err = uow.UserRepository().GetForUpdate(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("user %d vanished during creation", userID)
		}
		return user, nil
	}

	row := &models.MoneyTransaction{
		UserID:       userID,
		Type:         models.TransactionTypeInitial,
		Amount:       cfg.StartingBalance,
		Description:  "initial balance",
		BalanceAfter: cfg.StartingBalance,
	}
	if err := uow.LedgerRepository().Record(ctx, row); err != nil {
		log.WithField("userID", userID).WithError(err).Warn("Failed to record initial grant")
	}

	uow.EventBus().Publish(events.UserCreatedEvent{
		UserID:         userID,
		InitialBalance: cfg.StartingBalance,
	})
	return user, nil
}

// negPart returns how far below zero a balance sits, 0 if solvent.
func negPart(balance int64) int64 {
	if balance < 0 {
		return -balance
	}
	return 0
}

// dateOnly truncates a time to its calendar date in the given location.
func dateOnly(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// sameCalendarDay compares two times by calendar date only. Dates read back
// from the store carry no location, so compare the formatted date.
func sameCalendarDay(a, b time.Time) bool {
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}
