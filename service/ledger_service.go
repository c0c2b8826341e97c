package service

import (
	"context"
	"fmt"
	"time"

	"derby/config"
	"derby/models"
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory, cfg *config.Config) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
		cfg:        cfg,
	}
}

func (s *ledgerService) Transact(ctx context.Context, userID int64, amount int64, description string, txType models.TransactionType) (*models.TransactResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", ErrInvalidAmount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, applied, err := applyTransaction(ctx, uow, s.cfg, userID, amount, description, txType, time.Now())
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.TransactResult{
		Amount:     applied,
		NewBalance: user.Money,
	}, nil
}

func (s *ledgerService) Reconcile(ctx context.Context, userID int64) (*models.ReconcileResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}

	calculated, err := uow.LedgerRepository().SumAmounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	hasInitial, err := uow.LedgerRepository().HasInitial(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &models.ReconcileResult{
		Balance:           user.Money,
		CalculatedBalance: calculated,
	}
	if !hasInitial {
		// Pre-ledger history: reported distinctly, not as a hard mismatch.
		result.Legacy = true
	} else {
		result.Mismatch = calculated != user.Money
	}
	return result, nil
}

func (s *ledgerService) GetHistory(ctx context.Context, userID int64, limit int) ([]*models.MoneyTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.LedgerRepository().GetByUser(ctx, userID, limit)
}

func (s *ledgerService) ClaimDailyBonus(ctx context.Context, userID int64) (*models.TransactResult, error) {
	now := time.Now()
	today := dateOnly(now, s.cfg.Location())

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := getOrCreateForUpdate(ctx, uow, s.cfg, userID, now)
	if err != nil {
		return nil, err
	}
	if user.LastBonusDate != nil && sameCalendarDay(*user.LastBonusDate, today) {
		return nil, ErrBonusClaimed
	}

	if err := uow.UserRepository().SetLastBonusDate(ctx, userID, today); err != nil {
		return nil, err
	}

	user, applied, err := applyTransaction(ctx, uow, s.cfg, userID, s.cfg.DailyBonusAmount, "daily bonus", models.TransactionTypeDailyBonus, now)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.TransactResult{
		Amount:     applied,
		NewBalance: user.Money,
	}, nil
}
