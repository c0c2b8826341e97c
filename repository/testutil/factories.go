package testutil

import (
	"time"

	"derby/models"
)

// CreateTestUser creates a test user with default values
func CreateTestUser(userID int64, username string) *models.User {
	now := time.Now()
	return &models.User{
		UserID:          userID,
		Username:        username,
		Money:           10000,
		Level:           1,
		MoneyMultiplier: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CreateTestUserWithMoney creates a test user with a specific balance
func CreateTestUserWithMoney(userID int64, username string, money int64) *models.User {
	user := CreateTestUser(userID, username)
	user.Money = money
	return user
}

// CreateTestRace creates a waiting race with a full eight-horse field
func CreateTestRace(raceID string, scheduledAt time.Time) *models.Race {
	horses := make([]models.Horse, 0, models.HorsesPerRace)
	for i := 1; i <= models.HorsesPerRace; i++ {
		horses = append(horses, models.Horse{
			ID:      i,
			Name:    "Test Horse " + string(rune('A'+i-1)),
			WinRate: 0.5,
			Odds:    float64(i) + 0.5,
		})
	}
	return &models.Race{
		ID:          raceID,
		Name:        "Test Race",
		Horses:      horses,
		Status:      models.RaceStatusWaiting,
		ScheduledAt: scheduledAt,
	}
}

// CreateTestBet creates a single-ticket win bet
func CreateTestBet(raceID string, userID int64, horseID int, amount int64) *models.Bet {
	return &models.Bet{
		RaceID:      raceID,
		UserID:      userID,
		Type:        models.BetTypeWin,
		Mode:        models.BetModeNormal,
		Tickets:     []models.Ticket{{horseID}},
		BaseAmount:  amount,
		TotalAmount: amount,
	}
}

// CreateTestTransaction creates a ledger row for direct inserts
func CreateTestTransaction(userID int64, amount int64, txType models.TransactionType) *models.MoneyTransaction {
	return &models.MoneyTransaction{
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: "test transaction",
	}
}
