package domain

import "sort"

// CombinationType represents the type of card combination.
type CombinationType int

const (
	Invalid CombinationType = iota
	Single
	Pair
	Triple
	Straight         // 3 or more consecutive ranks, no 2
	ConsecutivePairs // 3 or more consecutive pairs, no 2
	Bomb             // 4 to 6 cards of one rank
	Dun              // 7 or more cards of one rank
)

func (t CombinationType) String() string {
	switch t {
	case Single:
		return "single"
	case Pair:
		return "pair"
	case Triple:
		return "triple"
	case Straight:
		return "straight"
	case ConsecutivePairs:
		return "consecutive_pairs"
	case Bomb:
		return "bomb"
	case Dun:
		return "dun"
	default:
		return "invalid"
	}
}

// Combination is a detected, legal set of cards.
type Combination struct {
	Type  CombinationType
	Cards []Card // sorted
	Value int32  // rank of the highest card
	Count int
}

// Rules is the card legality and comparison collaborator. Implementations must be pure.
type Rules interface {
	// Identify classifies cards; ok is false for illegal sets.
	Identify(cards []Card) (Combination, bool)
	// CanBeat reports whether next may be played on top of prev.
	CanBeat(prev, next Combination) bool
	IsScoreCard(c Card) bool
	// ScoreOf sums the point value of cards.
	ScoreOf(cards []Card) int
	// HasResponse reports whether any subset of hand beats prev.
	HasResponse(hand []Card, prev Combination) bool
}

// StandardRules implements Rules for the multi-deck 5-10-K game.
type StandardRules struct{}

var _ Rules = StandardRules{}

// Identify analyzes a set of cards and returns its combination.
func (StandardRules) Identify(cards []Card) (Combination, bool) {
	combo := IdentifyCombination(cards)
	return combo, combo.Type != Invalid
}

// CanBeat applies the bomb/dun hierarchy, then like-for-like comparison.
func (StandardRules) CanBeat(prev, next Combination) bool {
	if next.Type == Invalid {
		return false
	}
	if prev.Type == Invalid {
		return true
	}

	if next.Type == Dun {
		if prev.Type != Dun {
			return true
		}
		return outranksSameRankSet(prev, next)
	}
	if prev.Type == Dun {
		return false
	}

	if next.Type == Bomb {
		if prev.Type != Bomb {
			return true
		}
		return outranksSameRankSet(prev, next)
	}
	if prev.Type == Bomb {
		return false
	}

	return prev.Type == next.Type && prev.Count == next.Count && next.Value > prev.Value
}

// IsScoreCard reports whether the card carries points.
func (StandardRules) IsScoreCard(c Card) bool {
	return PointsFor(c) > 0
}

// ScoreOf sums the point value of cards.
func (StandardRules) ScoreOf(cards []Card) int {
	total := 0
	for _, c := range cards {
		total += PointsFor(c)
	}
	return total
}

// HasResponse searches the hand's rank histogram for any combination beating prev.
func (r StandardRules) HasResponse(hand []Card, prev Combination) bool {
	var counts [Rank2 + 1]int
	for _, c := range hand {
		counts[c.Rank]++
	}

	for rank, n := range counts {
		if n < 4 {
			continue
		}
		set := Combination{Type: Bomb, Value: int32(rank), Count: min(n, 6)}
		if n >= DunMinCards {
			set = Combination{Type: Dun, Value: int32(rank), Count: n}
		}
		if r.CanBeat(prev, set) {
			return true
		}
	}

	switch prev.Type {
	case Single, Pair, Triple:
		for rank := prev.Value + 1; rank <= Rank2; rank++ {
			if counts[rank] >= prev.Count {
				return true
			}
		}
	case Straight:
		return hasRun(counts[:], prev.Count, 1, prev.Value)
	case ConsecutivePairs:
		return hasRun(counts[:], prev.Count/2, 2, prev.Value)
	}
	return false
}

// hasRun looks for length consecutive ranks (excluding 2) with at least width cards
// each, topping out above minTop.
func hasRun(counts []int, length, width int, minTop int32) bool {
	for top := max(minTop+1, int32(length-1)); top <= RankA; top++ {
		ok := true
		for rank := top - int32(length) + 1; rank <= top; rank++ {
			if counts[rank] < width {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func outranksSameRankSet(prev, next Combination) bool {
	if next.Count != prev.Count {
		return next.Count > prev.Count
	}
	return next.Value > prev.Value
}

// IdentifyCombination classifies a set of cards. The input slice is not modified.
func IdentifyCombination(cards []Card) Combination {
	n := len(cards)
	if n == 0 {
		return Combination{Type: Invalid}
	}

	sorted := append([]Card(nil), cards...)
	SortHand(sorted)
	top := sorted[n-1].Rank

	if n == 1 {
		return Combination{Type: Single, Cards: sorted, Value: top, Count: 1}
	}

	if allSameRank(sorted) {
		t := Bomb
		switch {
		case n == 2:
			t = Pair
		case n == 3:
			t = Triple
		case n >= DunMinCards:
			t = Dun
		}
		return Combination{Type: t, Cards: sorted, Value: top, Count: n}
	}

	if isStraight(sorted) {
		return Combination{Type: Straight, Cards: sorted, Value: top, Count: n}
	}

	if isConsecutivePairs(sorted) {
		return Combination{Type: ConsecutivePairs, Cards: sorted, Value: top, Count: n}
	}

	return Combination{Type: Invalid}
}

func allSameRank(cards []Card) bool {
	if len(cards) == 0 {
		return false
	}
	r := cards[0].Rank
	for _, c := range cards {
		if c.Rank != r {
			return false
		}
	}
	return true
}

func sortedRanks(cards []Card) ([]int32, bool) {
	ranks := make([]int32, len(cards))
	for i, c := range cards {
		if c.Rank == Rank2 { // 2 cannot be part of a sequence
			return nil, false
		}
		ranks[i] = c.Rank
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })
	return ranks, true
}

func isStraight(cards []Card) bool {
	if len(cards) < 3 {
		return false
	}
	ranks, ok := sortedRanks(cards)
	if !ok {
		return false
	}
	for i := 1; i < len(ranks); i++ {
		if ranks[i] != ranks[i-1]+1 {
			return false
		}
	}
	return true
}

func isConsecutivePairs(cards []Card) bool {
	if len(cards) < 6 || len(cards)%2 != 0 {
		return false
	}
	ranks, ok := sortedRanks(cards)
	if !ok {
		return false
	}

	pairRanks := make([]int32, 0, len(ranks)/2)
	for i := 0; i < len(ranks); i += 2 {
		if ranks[i] != ranks[i+1] {
			return false
		}
		pairRanks = append(pairRanks, ranks[i])
	}

	for i := 1; i < len(pairRanks); i++ {
		if pairRanks[i] != pairRanks[i-1]+1 {
			return false
		}
	}
	return true
}
