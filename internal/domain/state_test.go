package domain

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestNewDeck(t *testing.T) {
	deck := NewDeck(2)
	if len(deck) != 2*CardsPerDeck {
		t.Fatalf("deck size = %d, want %d", len(deck), 2*CardsPerDeck)
	}

	seen := make(map[Card]int)
	for _, c := range deck {
		seen[c]++
		if c.Rank < Rank3 || c.Rank > Rank2 {
			t.Fatalf("rank out of range: %d", c.Rank)
		}
	}
	for c, n := range seen {
		if n != 2 {
			t.Fatalf("card %+v appears %d times, want 2", c, n)
		}
	}

	shuffled := ShuffleDeck(rand.New(rand.NewSource(7)), deck)
	if len(shuffled) != len(deck) {
		t.Fatalf("shuffled size = %d, want %d", len(shuffled), len(deck))
	}
}

func TestRemoveCards(t *testing.T) {
	hand := []Card{
		{Suit: SuitSpades, Rank: Rank3},
		{Suit: SuitHearts, Rank: Rank4},
		{Suit: SuitHearts, Rank: Rank4},
		{Suit: SuitSpades, Rank: Rank6},
	}
	played := []Card{
		{Suit: SuitHearts, Rank: Rank4},
		{Suit: SuitSpades, Rank: Rank6},
	}

	got := RemoveCards(hand, played)
	want := []Card{{Suit: SuitSpades, Rank: Rank3}, {Suit: SuitHearts, Rank: Rank4}}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RemoveCards() = %v, want %v", got, want)
	}
	if !ContainsCards(hand, played) {
		t.Fatal("ContainsCards() = false, want true")
	}
	if ContainsCards(want, []Card{{Suit: SuitHearts, Rank: Rank4}, {Suit: SuitHearts, Rank: Rank4}}) {
		t.Fatal("ContainsCards() should respect multiplicity")
	}
}

func TestNextActive(t *testing.T) {
	players := []Player{
		{Hand: []Card{{Rank: Rank3}}},
		{Hand: nil},
		{Hand: []Card{{Rank: Rank4}}, FinishedRank: 1},
		{Hand: []Card{{Rank: Rank5}}},
	}

	tests := []struct {
		name string
		from int
		want int
	}{
		{name: "skips empty and finished", from: 0, want: 3},
		{name: "wraps around", from: 3, want: 0},
		{name: "from inactive seat", from: 1, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextActive(players, tt.from); got != tt.want {
				t.Fatalf("NextActive(%d) = %d, want %d", tt.from, got, tt.want)
			}
		})
	}

	if got := CountActive(players); got != 2 {
		t.Fatalf("CountActive() = %d, want 2", got)
	}
	if got := NextActive(players[:1], 0); got != -1 {
		t.Fatalf("NextActive() with a single player = %d, want -1", got)
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	store := NewMemoryStore(Table{Players: []Player{{UserID: "u0", Hand: []Card{{Rank: Rank3}}}}})

	snap := store.Snapshot()
	snap.Players[0].Hand[0].Rank = Rank2
	snap.Players[0].Score = 99

	store.Update(func(t *Table) { t.FinishOrder = append(t.FinishOrder, 0) })

	again := store.Snapshot()
	if again.Players[0].Hand[0].Rank != Rank3 || again.Players[0].Score != 0 {
		t.Fatalf("snapshot mutation leaked into store: %+v", again.Players[0])
	}
	if !reflect.DeepEqual(again.FinishOrder, []int{0}) {
		t.Fatalf("FinishOrder = %v, want [0]", again.FinishOrder)
	}
}

func TestLowestAvailableSeat(t *testing.T) {
	tests := []struct {
		name  string
		seats []string
		want  int
	}{
		{name: "all empty", seats: []string{"", "", "", ""}, want: 0},
		{name: "first taken", seats: []string{"u1", "", "", ""}, want: 1},
		{name: "full", seats: []string{"u1", "u2", "u3", "u4"}, want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LowestAvailableSeat(tt.seats); got != tt.want {
				t.Fatalf("LowestAvailableSeat() = %d, want %d", got, tt.want)
			}
		})
	}
}
