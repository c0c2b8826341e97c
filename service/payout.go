package service

import (
	"derby/models"
	"github.com/shopspring/decimal"
)

// betOutcome is the result of evaluating one bet against a finished race.
// Deferred marks quintet bets whose sibling races have not all finished yet:
// settlement is postponed, not failed.
type betOutcome struct {
	Payout   int64
	Win      bool
	Deferred bool
}

// quintetResult carries the winners of the day's first five races, in slot
// order. Winners is nil while any of those races is still unfinished.
type quintetResult struct {
	Winners []int
	Races   []*models.Race
}

// evaluateBet computes the total payout of a bet: the sum over its winning
// tickets of the per-ticket payout.
func evaluateBet(bet *models.Bet, race *models.Race, quintet *quintetResult) betOutcome {
	if bet.Type == models.BetTypeWin5 {
		return evaluateWin5(bet, quintet)
	}

	r1, r2, r3, ok := race.TopThree()
	if !ok {
		return betOutcome{}
	}

	var total int64
	for _, ticket := range bet.Tickets {
		if len(ticket) != bet.Type.TicketSize() {
			continue
		}
		if ticketWins(bet.Type, ticket, r1, r2, r3) {
			total += ticketPayout(bet, race, ticket)
		}
	}
	return betOutcome{Payout: total, Win: total > 0}
}

func evaluateWin5(bet *models.Bet, quintet *quintetResult) betOutcome {
	if quintet == nil || quintet.Winners == nil {
		return betOutcome{Deferred: true}
	}

	var total int64
	for _, ticket := range bet.Tickets {
		if len(ticket) != len(quintet.Winners) {
			continue
		}
		hit := true
		for i, pick := range ticket {
			if pick != quintet.Winners[i] {
				hit = false
				break
			}
		}
		if hit {
			total += win5Payout(bet, ticket, quintet)
		}
	}
	return betOutcome{Payout: total, Win: total > 0}
}

// ticketWins tests the type-specific win predicate against the top three
// finishers.
func ticketWins(betType models.BetType, t models.Ticket, r1, r2, r3 int) bool {
	switch betType {
	case models.BetTypeWin:
		return t[0] == r1
	case models.BetTypePlace:
		return t[0] == r1 || t[0] == r2 || t[0] == r3
	case models.BetTypeFrame:
		f1, f2 := models.FrameOf(r1), models.FrameOf(r2)
		return unorderedPairEqual(t[0], t[1], f1, f2)
	case models.BetTypeQuinella:
		return unorderedPairEqual(t[0], t[1], r1, r2)
	case models.BetTypeExacta:
		return t[0] == r1 && t[1] == r2
	case models.BetTypeWide:
		inTop := func(h int) bool { return h == r1 || h == r2 || h == r3 }
		return t[0] != t[1] && inTop(t[0]) && inTop(t[1])
	case models.BetTypeTrio:
		return unorderedTripleEqual(t[0], t[1], t[2], r1, r2, r3)
	case models.BetTypeTrifecta:
		return t[0] == r1 && t[1] == r2 && t[2] == r3
	}
	return false
}

// ticketPayout computes one winning ticket's payout: the odds captured at
// bet time when present, otherwise a fallback from the race's current horse
// odds (for group types, average odds across covered horses times the fixed
// per-type multiplier).
func ticketPayout(bet *models.Bet, race *models.Race, t models.Ticket) int64 {
	base := decimal.NewFromInt(bet.BaseAmount)

	if bet.Odds != nil {
		return base.Mul(decimal.NewFromFloat(*bet.Odds)).IntPart()
	}

	switch bet.Type {
	case models.BetTypeWin, models.BetTypePlace:
		odds := 1.0
		if h := race.HorseByID(t[0]); h != nil {
			odds = h.Odds
		}
		return base.Mul(decimal.NewFromFloat(odds)).IntPart()
	}

	covered := coveredHorses(bet.Type, race, t)
	avg := averageOdds(covered)
	multiplier := decimal.NewFromInt(bet.Type.PayoutMultiplier())
	return base.Mul(avg).Mul(multiplier).IntPart()
}

// win5Payout averages the winning picks' odds across their own races.
func win5Payout(bet *models.Bet, t models.Ticket, quintet *quintetResult) int64 {
	base := decimal.NewFromInt(bet.BaseAmount)

	if bet.Odds != nil {
		return base.Mul(decimal.NewFromFloat(*bet.Odds)).IntPart()
	}

	var covered []models.Horse
	for i, pick := range t {
		if i < len(quintet.Races) && quintet.Races[i] != nil {
			if h := quintet.Races[i].HorseByID(pick); h != nil {
				covered = append(covered, *h)
			}
		}
	}
	multiplier := decimal.NewFromInt(bet.Type.PayoutMultiplier())
	return base.Mul(averageOdds(covered)).Mul(multiplier).IntPart()
}

// coveredHorses resolves the horses a group ticket spans. Frame tickets
// cover both horses of each frame number.
func coveredHorses(betType models.BetType, race *models.Race, t models.Ticket) []models.Horse {
	var covered []models.Horse
	if betType == models.BetTypeFrame {
		for i := range race.Horses {
			h := race.Horses[i]
			for _, frame := range t {
				if models.FrameOf(h.ID) == frame {
					covered = append(covered, h)
					break
				}
			}
		}
		return covered
	}
	for _, id := range t {
		if h := race.HorseByID(id); h != nil {
			covered = append(covered, *h)
		}
	}
	return covered
}

func averageOdds(horses []models.Horse) decimal.Decimal {
	if len(horses) == 0 {
		return decimal.NewFromInt(1)
	}
	sum := decimal.Zero
	for _, h := range horses {
		sum = sum.Add(decimal.NewFromFloat(h.Odds))
	}
	return sum.Div(decimal.NewFromInt(int64(len(horses))))
}

func unorderedPairEqual(a1, a2, b1, b2 int) bool {
	return (a1 == b1 && a2 == b2) || (a1 == b2 && a2 == b1)
}

func unorderedTripleEqual(a1, a2, a3, b1, b2, b3 int) bool {
	have := map[int]int{a1: 0, a2: 0, a3: 0}
	want := map[int]int{b1: 0, b2: 0, b3: 0}
	have[a1]++
	have[a2]++
	have[a3]++
	want[b1]++
	want[b2]++
	want[b3]++
	if len(have) != len(want) {
		return false
	}
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
