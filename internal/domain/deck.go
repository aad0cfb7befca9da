package domain

import (
	"math/rand"
	"sort"
)

// Ranks are ordered by strength: 3 is the lowest and 2 the highest.
const (
	Rank3 int32 = iota
	Rank4
	Rank5
	Rank6
	Rank7
	Rank8
	Rank9
	Rank10
	RankJ
	RankQ
	RankK
	RankA
	Rank2
)

const (
	SuitSpades int32 = iota
	SuitHearts
	SuitDiamonds
	SuitClubs
)

// CardsPerDeck is the size of one standard deck without jokers.
const CardsPerDeck = 52

// Card is a single playing card. Cards from different decks compare equal.
type Card struct {
	Suit int32
	Rank int32
}

// NewDeck returns decks*52 cards sorted by power.
func NewDeck(decks int) []Card {
	if decks < 1 {
		decks = 1
	}
	deck := make([]Card, 0, decks*CardsPerDeck)
	for d := 0; d < decks; d++ {
		for r := Rank3; r <= Rank2; r++ {
			for s := SuitSpades; s <= SuitClubs; s++ {
				deck = append(deck, Card{Rank: r, Suit: s})
			}
		}
	}
	SortHand(deck)
	return deck
}

// ShuffleDeck returns a shuffled copy of the given deck.
func ShuffleDeck(rng *rand.Rand, deck []Card) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SortHand orders a hand by ascending power.
func SortHand(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return CardPower(cards[i]) < CardPower(cards[j])
	})
}

// CardPower is the total order used for sorting hands. Rank dominates suit.
func CardPower(c Card) int32 {
	return c.Rank*4 + c.Suit
}

// RemoveCards removes the specified cards from a hand and returns the updated hand.
// Duplicate cards (multi-deck) are removed one copy per occurrence.
func RemoveCards(hand []Card, toRemove []Card) []Card {
	if len(toRemove) == 0 || len(hand) == 0 {
		return hand
	}

	removeCounts := make(map[Card]int, len(toRemove))
	for _, card := range toRemove {
		removeCounts[card]++
	}

	updated := make([]Card, 0, len(hand))
	for _, card := range hand {
		if count, ok := removeCounts[card]; ok && count > 0 {
			removeCounts[card] = count - 1
			continue
		}
		updated = append(updated, card)
	}

	return updated
}

// ContainsCards reports whether every card (with multiplicity) is present in hand.
func ContainsCards(hand []Card, cards []Card) bool {
	have := make(map[Card]int, len(hand))
	for _, c := range hand {
		have[c]++
	}
	for _, c := range cards {
		if have[c] == 0 {
			return false
		}
		have[c]--
	}
	return true
}
