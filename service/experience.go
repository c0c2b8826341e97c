package service

import (
	"context"
	"fmt"
	"time"

	"derby/config"
	"derby/events"
	"derby/models"
)

// xpThreshold is the cumulative experience needed to leave the given level.
func xpThreshold(level int) int64 {
	return 100 * int64(level) * int64(level+1) / 2
}

// payoutXP converts a payout into its experience reward.
func payoutXP(payout int64) int64 {
	xp := payout / 10
	if xp < 10 {
		xp = 10
	}
	return xp
}

// awardExperience grants the payout's experience reward and applies any
// level-ups it causes, each crediting a level bonus through the ledger.
// Runs inside the caller's unit of work.
func awardExperience(ctx context.Context, uow UnitOfWork, cfg *config.Config, userID int64, payout int64, now time.Time) error {
	user, err := uow.UserRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}

	xp := user.XP + payoutXP(payout)
	level := user.Level

	var bonuses []int
	for xp >= xpThreshold(level) {
		level++
		bonuses = append(bonuses, level)
	}

	if err := uow.UserRepository().SetProgress(ctx, userID, xp, level); err != nil {
		return err
	}

	for _, newLevel := range bonuses {
		bonus := int64(newLevel) * 100
		desc := fmt.Sprintf("level %d bonus", newLevel)
		if _, _, err := applyTransaction(ctx, uow, cfg, userID, bonus, desc, models.TransactionTypeLevelUp, now); err != nil {
			return err
		}
		uow.EventBus().Publish(events.LevelUpEvent{
			UserID:   userID,
			NewLevel: newLevel,
			Bonus:    bonus,
		})
	}
	return nil
}
