package service

import (
	"fmt"
	"sort"

	"derby/models"
)

// GenerateTickets expands a bet-type/method selection into the concrete set
// of winning-condition tuples the bet covers. Order-insensitive types are
// canonicalized by ascending sort and deduplicated.
func GenerateTickets(betType models.BetType, mode models.BetMode, sel models.TicketSelection) ([]models.Ticket, error) {
	if !betType.Valid() {
		return nil, fmt.Errorf("%w: unknown bet type %q", ErrInvalidSelection, betType)
	}

	size := betType.TicketSize()

	switch betType {
	case models.BetTypeWin, models.BetTypePlace, models.BetTypeWin5:
		// Single-tuple types only support the plain selection.
		if mode != models.BetModeNormal {
			return nil, fmt.Errorf("%w: %s bets only support normal mode", ErrInvalidSelection, betType)
		}
	}

	switch mode {
	case models.BetModeNormal:
		return normalTicket(betType, size, sel.Picks)
	case models.BetModeBox:
		return boxTickets(betType, size, sel.Picks)
	case models.BetModeNagashi:
		return nagashiTickets(betType, size, sel.Anchor, sel.Partners)
	case models.BetModeFormation:
		return formationTickets(betType, size, sel.Groups)
	}
	return nil, fmt.Errorf("%w: unknown bet mode %q", ErrInvalidSelection, mode)
}

func normalTicket(betType models.BetType, size int, picks []int) ([]models.Ticket, error) {
	if len(picks) != size {
		return nil, fmt.Errorf("%w: %s needs exactly %d picks, got %d", ErrInvalidSelection, betType, size, len(picks))
	}
	if !picksMayRepeat(betType) && hasDuplicates(picks) {
		return nil, fmt.Errorf("%w: duplicate picks", ErrInvalidSelection)
	}

	ticket := append(models.Ticket(nil), picks...)
	if !betType.OrderSensitive() {
		sort.Ints(ticket)
	}
	return []models.Ticket{ticket}, nil
}

func boxTickets(betType models.BetType, size int, picks []int) ([]models.Ticket, error) {
	if len(picks) < size {
		return nil, fmt.Errorf("%w: box needs at least %d picks, got %d", ErrInvalidSelection, size, len(picks))
	}
	if hasDuplicates(picks) {
		return nil, fmt.Errorf("%w: duplicate picks", ErrInvalidSelection)
	}

	if betType.OrderSensitive() {
		return permutations(picks, size), nil
	}
	if picksMayRepeat(betType) {
		return combinationsWithRepetition(picks, size), nil
	}
	return combinations(picks, size), nil
}

func nagashiTickets(betType models.BetType, size int, anchor int, partners []int) ([]models.Ticket, error) {
	if anchor <= 0 {
		return nil, fmt.Errorf("%w: nagashi needs an anchor", ErrInvalidSelection)
	}
	if hasDuplicates(partners) {
		return nil, fmt.Errorf("%w: duplicate partners", ErrInvalidSelection)
	}
	if !picksMayRepeat(betType) {
		for _, p := range partners {
			if p == anchor {
				return nil, fmt.Errorf("%w: anchor cannot also be a partner", ErrInvalidSelection)
			}
		}
	}

	switch size {
	case 2:
		if len(partners) < 1 {
			return nil, fmt.Errorf("%w: nagashi needs at least one partner", ErrInvalidSelection)
		}
		tickets := make([]models.Ticket, 0, len(partners))
		for _, p := range partners {
			tickets = append(tickets, canonicalize(betType, models.Ticket{anchor, p}))
		}
		return dedup(tickets), nil
	case 3:
		if len(partners) < 2 {
			return nil, fmt.Errorf("%w: nagashi needs at least two partners", ErrInvalidSelection)
		}
		pairs := combinations(partners, 2)
		tickets := make([]models.Ticket, 0, len(pairs))
		for _, pair := range pairs {
			tickets = append(tickets, canonicalize(betType, models.Ticket{anchor, pair[0], pair[1]}))
		}
		return dedup(tickets), nil
	}
	return nil, fmt.Errorf("%w: nagashi not supported for %s", ErrInvalidSelection, betType)
}

func formationTickets(betType models.BetType, size int, groups [][]int) ([]models.Ticket, error) {
	if len(groups) != size {
		return nil, fmt.Errorf("%w: formation needs %d position groups, got %d", ErrInvalidSelection, size, len(groups))
	}
	for i, g := range groups {
		if len(g) == 0 {
			return nil, fmt.Errorf("%w: formation group %d is empty", ErrInvalidSelection, i+1)
		}
		if hasDuplicates(g) {
			return nil, fmt.Errorf("%w: duplicate picks in formation group %d", ErrInvalidSelection, i+1)
		}
	}

	var tickets []models.Ticket
	var walk func(depth int, current models.Ticket)
	walk = func(depth int, current models.Ticket) {
		if depth == len(groups) {
			tickets = append(tickets, canonicalize(betType, append(models.Ticket(nil), current...)))
			return
		}
		for _, pick := range groups[depth] {
			if !picksMayRepeat(betType) && contains(current, pick) {
				continue
			}
			walk(depth+1, append(current, pick))
		}
	}
	walk(0, make(models.Ticket, 0, size))

	tickets = dedup(tickets)
	if len(tickets) == 0 {
		return nil, fmt.Errorf("%w: formation produces no tickets", ErrInvalidSelection)
	}
	return tickets, nil
}

// picksMayRepeat reports whether the same number may legally appear more
// than once in a ticket. Frames hold two horses each, so the top finishers
// can share a frame; WIN5 picks one horse per race.
func picksMayRepeat(betType models.BetType) bool {
	return betType == models.BetTypeFrame || betType == models.BetTypeWin5
}

// combinations returns every size-k subset of src, elements sorted ascending.
func combinations(src []int, k int) []models.Ticket {
	sorted := append([]int(nil), src...)
	sort.Ints(sorted)

	var out []models.Ticket
	var walk func(start int, current models.Ticket)
	walk = func(start int, current models.Ticket) {
		if len(current) == k {
			out = append(out, append(models.Ticket(nil), current...))
			return
		}
		for i := start; i < len(sorted); i++ {
			walk(i+1, append(current, sorted[i]))
		}
	}
	walk(0, make(models.Ticket, 0, k))
	return out
}

// combinationsWithRepetition returns every size-k multiset of src, elements
// sorted ascending. Used for frame tickets, where a repeated frame number is
// a distinct outcome.
func combinationsWithRepetition(src []int, k int) []models.Ticket {
	sorted := append([]int(nil), src...)
	sort.Ints(sorted)

	var out []models.Ticket
	var walk func(start int, current models.Ticket)
	walk = func(start int, current models.Ticket) {
		if len(current) == k {
			out = append(out, append(models.Ticket(nil), current...))
			return
		}
		for i := start; i < len(sorted); i++ {
			walk(i, append(current, sorted[i]))
		}
	}
	walk(0, make(models.Ticket, 0, k))
	return out
}

// permutations returns every size-k ordered arrangement of src.
func permutations(src []int, k int) []models.Ticket {
	var out []models.Ticket
	var walk func(current models.Ticket)
	walk = func(current models.Ticket) {
		if len(current) == k {
			out = append(out, append(models.Ticket(nil), current...))
			return
		}
		for _, v := range src {
			if contains(current, v) {
				continue
			}
			walk(append(current, v))
		}
	}
	walk(make(models.Ticket, 0, k))
	return out
}

func canonicalize(betType models.BetType, t models.Ticket) models.Ticket {
	if !betType.OrderSensitive() {
		sort.Ints(t)
	}
	return t
}

func dedup(tickets []models.Ticket) []models.Ticket {
	seen := make(map[string]bool, len(tickets))
	out := tickets[:0]
	for _, t := range tickets {
		key := fmt.Sprint([]int(t))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func hasDuplicates(values []int) bool {
	seen := make(map[int]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return true
		}
		seen[v] = true
	}
	return false
}

func contains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
