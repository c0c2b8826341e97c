package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"derby/models"
	"derby/service"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// raceResponse is the wire shape of a race. Horses expose odds so callers
// can show prices; ranking and winner are present only once finished.
type raceResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Horses      []models.Horse `json:"horses"`
	WinnerID    *int           `json:"winner_id,omitempty"`
	Ranking     []int          `json:"ranking,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

type betResponse struct {
	ID          int64           `json:"id"`
	RaceID      string          `json:"race_id"`
	Type        models.BetType  `json:"type"`
	Mode        models.BetMode  `json:"mode"`
	Tickets     []models.Ticket `json:"tickets"`
	BaseAmount  int64           `json:"amount"`
	TotalAmount int64           `json:"total"`
	Payout      int64           `json:"payout"`
	IsWin       bool            `json:"is_win"`
	Odds        *float64        `json:"odds,omitempty"`
	GroupID     string          `json:"group_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toRaceResponse(r *models.Race) *raceResponse {
	if r == nil {
		return nil
	}
	return &raceResponse{
		ID:          r.ID,
		Name:        r.Name,
		Status:      string(r.Status),
		ScheduledAt: r.ScheduledAt,
		Horses:      r.Horses,
		WinnerID:    r.WinnerID,
		Ranking:     r.Ranking,
		FinishedAt:  r.FinishedAt,
	}
}

func toBetResponses(bets []*models.Bet) []betResponse {
	out := make([]betResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, betResponse{
			ID:          b.ID,
			RaceID:      b.RaceID,
			Type:        b.Type,
			Mode:        b.Mode,
			Tickets:     b.Tickets,
			BaseAmount:  b.BaseAmount,
			TotalAmount: b.TotalAmount,
			Payout:      b.Payout,
			IsWin:       b.IsWin,
			Odds:        b.Odds,
			GroupID:     b.GroupID.String(),
			CreatedAt:   b.CreatedAt,
		})
	}
	return out
}

func (s *Server) getActiveRace(c *gin.Context) {
	view, err := s.wagering.GetActiveRace(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":                 true,
		"active_race":             toRaceResponse(view.ActiveRace),
		"my_bets":                 toBetResponses(view.MyBets),
		"last_finished_race":      toRaceResponse(view.LastFinishedRace),
		"last_finished_race_bets": toBetResponses(view.LastFinishedRaceBets),
	})
}

type placeBetBody struct {
	Bets []models.BetRequest `json:"bets" binding:"required,min=1,dive"`
}

func (s *Server) placeBet(c *gin.Context) {
	var body placeBetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := s.wagering.PlaceBet(c.Request.Context(), currentUser(c), c.Param("raceID"), body.Bets)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"group_id":    result.GroupID.String(),
		"bet_ids":     result.BetIDs,
		"total_spent": result.TotalSpent,
		"new_balance": result.NewBalance,
	})
}

func (s *Server) cancelBet(c *gin.Context) {
	betID, err := strconv.ParseInt(c.Param("betID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid bet id"})
		return
	}

	result, err := s.wagering.CancelBet(c.Request.Context(), currentUser(c), betID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"refunded":    result.Refunded,
		"new_balance": result.NewBalance,
	})
}

type transactBody struct {
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description" binding:"max=200"`
	Type        string `json:"type"`
}

// externalTransactionTypes are the types callers may write directly.
// Bet, refund, payout, level_up and initial rows are only ever written by
// the engine itself.
var externalTransactionTypes = map[models.TransactionType]bool{
	models.TransactionTypeGeneral:      true,
	models.TransactionTypeItemPurchase: true,
	models.TransactionTypeGachaItem:    true,
}

func (s *Server) transact(c *gin.Context) {
	var body transactBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	txType := models.TransactionType(body.Type)
	if body.Type == "" {
		txType = models.TransactionTypeGeneral
	}
	if !externalTransactionTypes[txType] {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unsupported transaction type"})
		return
	}

	result, err := s.ledger.Transact(c.Request.Context(), currentUser(c), body.Amount, body.Description, txType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"amount":      result.Amount,
		"new_balance": result.NewBalance,
	})
}

func (s *Server) reconcile(c *gin.Context) {
	result, err := s.ledger.Reconcile(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"balance":            result.Balance,
		"calculated_balance": result.CalculatedBalance,
		"mismatch":           result.Mismatch,
		"legacy":             result.Legacy,
	})
}

func (s *Server) getHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	rows, err := s.ledger.GetHistory(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	type historyRow struct {
		ID           int64     `json:"id"`
		Type         string    `json:"type"`
		Amount       int64     `json:"amount"`
		Description  string    `json:"description"`
		BalanceAfter int64     `json:"balance_after"`
		CreatedAt    time.Time `json:"created_at"`
	}
	out := make([]historyRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, historyRow{
			ID:           r.ID,
			Type:         string(r.Type),
			Amount:       r.Amount,
			Description:  r.Description,
			BalanceAfter: r.BalanceAfter,
			CreatedAt:    r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transactions": out})
}

func (s *Server) claimDailyBonus(c *gin.Context) {
	result, err := s.ledger.ClaimDailyBonus(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"amount":      result.Amount,
		"new_balance": result.NewBalance,
	})
}

// respondError maps service errors onto HTTP statuses: validation failures
// are 400, business-rule rejections 422, missing resources 404, anything
// else an opaque 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSelection),
		errors.Is(err, service.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, service.ErrBettingClosed),
		errors.Is(err, service.ErrDebtLimit),
		errors.Is(err, service.ErrDailyLoanLimit),
		errors.Is(err, service.ErrBonusClaimed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, service.ErrRaceNotFound),
		errors.Is(err, service.ErrBetNotFound),
		errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	default:
		log.WithFields(log.Fields{
			"requestID": c.GetString("requestID"),
			"path":      c.Request.URL.Path,
			"error":     err,
		}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}
