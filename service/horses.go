package service

import (
	"hash/fnv"
	"math"
	"math/rand"

	"derby/models"
)

var horseNames = []string{
	"Thunder Smith", "Golden Arrow", "Midnight Vapor", "Iron Duchess",
	"Paper Tiger", "Silent Comet", "Lucky Penny", "Storm Chaser",
	"Velvet Hammer", "Copper Canyon", "Night Parade", "Sugar Rocket",
	"Brave Anchor", "Wild Compass", "Frost Signal", "Ember Queen",
	"Rapid Sonnet", "Drifting Ace", "Crimson Ledger", "Harbor Light",
	"Steel Magnolia", "Quiet Thunder", "Marble Sky", "Last Paycheck",
}

// generateField builds the eight-horse field for a race. The generator is
// seeded from the race identifier, so concurrent callers lazily creating
// the same slot produce identical fields.
func generateField(raceID string) []models.Horse {
	h := fnv.New64a()
	h.Write([]byte(raceID))
	rnd := rand.New(rand.NewSource(int64(h.Sum64())))

	picked := rnd.Perm(len(horseNames))[:models.HorsesPerRace]

	winRates := make([]float64, models.HorsesPerRace)
	var total float64
	for i := range winRates {
		winRates[i] = 0.1 + rnd.Float64()*0.9
		total += winRates[i]
	}

	horses := make([]models.Horse, models.HorsesPerRace)
	for i := range horses {
		// Odds roughly track the inverse of the relative win weight.
		odds := 0.8 * total / winRates[i]
		odds = math.Round(odds*10) / 10
		if odds < 1.1 {
			odds = 1.1
		}
		if odds > 99.9 {
			odds = 99.9
		}
		horses[i] = models.Horse{
			ID:      i + 1,
			Name:    horseNames[picked[i]],
			WinRate: winRates[i],
			Odds:    odds,
		}
	}
	return horses
}

// drawRanking computes the finish order by weighted draw without
// replacement: each position goes to one horse from the remaining pool with
// probability proportional to its win rate.
func drawRanking(horses []models.Horse, rnd *rand.Rand) []int {
	pool := append([]models.Horse(nil), horses...)
	ranking := make([]int, 0, len(pool))

	for len(pool) > 0 {
		var total float64
		for _, h := range pool {
			total += h.WinRate
		}

		r := rnd.Float64() * total
		idx := len(pool) - 1
		var acc float64
		for i, h := range pool {
			acc += h.WinRate
			if r < acc {
				idx = i
				break
			}
		}

		ranking = append(ranking, pool[idx].ID)
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return ranking
}
