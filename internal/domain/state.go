package domain

import "sync"

// Phase represents the lifecycle stage of a match.
type Phase string

const (
	// PhaseLobby indicates the match is waiting for players.
	PhaseLobby Phase = "lobby"
	// PhasePlaying indicates the match is actively in progress.
	PhasePlaying Phase = "playing"
	// PhaseEnded indicates the match has finished.
	PhaseEnded Phase = "ended"
)

// Player holds the domain state for a seated player.
// Score, FinishedRank and WonRounds are written only by the scoring controller.
type Player struct {
	UserID       string
	Seat         int
	Team         int
	Hand         []Card
	Score        int
	FinishedRank int // 0 while still playing
	WonRounds    int
}

// Active reports whether the player still takes turns.
func (p Player) Active() bool {
	return p.FinishedRank == 0 && len(p.Hand) > 0
}

// Table is the game state shared by the turn machinery.
type Table struct {
	GameID        string
	Phase         Phase
	Players       []Player // indexed by seat
	CurrentTurn   int
	RoundNumber   int
	FinishOrder   []int
	TeamScores    map[int]int
	TeamRoundsWon map[int]int
}

// Clone returns a deep copy that shares no slices or maps with t.
func (t Table) Clone() Table {
	out := t
	out.Players = make([]Player, len(t.Players))
	for i, p := range t.Players {
		p.Hand = append([]Card(nil), p.Hand...)
		out.Players[i] = p
	}
	out.FinishOrder = append([]int(nil), t.FinishOrder...)
	out.TeamScores = cloneIntMap(t.TeamScores)
	out.TeamRoundsWon = cloneIntMap(t.TeamRoundsWon)
	return out
}

func cloneIntMap(in map[int]int) map[int]int {
	if in == nil {
		return nil
	}
	out := make(map[int]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store is the only way the turn machinery observes or mutates table state.
type Store interface {
	Snapshot() Table
	Update(fn func(t *Table))
}

// MemoryStore is a mutex-guarded Store.
type MemoryStore struct {
	mu    sync.Mutex
	table Table
}

// NewMemoryStore seeds a store with the given table.
func NewMemoryStore(t Table) *MemoryStore {
	return &MemoryStore{table: t.Clone()}
}

// Snapshot returns a copy of the current table.
func (s *MemoryStore) Snapshot() Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Clone()
}

// Update applies fn under the store lock.
func (s *MemoryStore) Update(fn func(t *Table)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.table)
}

// NextActive returns the first active seat after from, wrapping around.
// Returns -1 when nobody but possibly from itself is active.
func NextActive(players []Player, from int) int {
	n := len(players)
	for step := 1; step < n; step++ {
		i := ((from+step)%n + n) % n
		if players[i].Active() {
			return i
		}
	}
	return -1
}

// CountActive returns the number of players still holding cards.
func CountActive(players []Player) int {
	count := 0
	for _, p := range players {
		if p.Active() {
			count++
		}
	}
	return count
}

// LowestAvailableSeat returns the lowest index of an empty seat, or -1 when full.
func LowestAvailableSeat(seats []string) int {
	for i, userID := range seats {
		if userID == "" {
			return i
		}
	}
	return -1
}
