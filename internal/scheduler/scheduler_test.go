package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wushik/internal/config"
	"wushik/internal/domain"
	"wushik/internal/round"
	"wushik/internal/scoring"
)

type recorder struct {
	mu     sync.Mutex
	turns  []int
	ends   []RoundEnd
	onTurn func(ctx context.Context, turn Turn)
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnTurn: func(ctx context.Context, turn Turn) {
			r.mu.Lock()
			r.turns = append(r.turns, turn.Player)
			cb := r.onTurn
			r.mu.Unlock()
			if cb != nil {
				cb(ctx, turn)
			}
		},
		OnRoundEnd: func(_ context.Context, end RoundEnd) {
			r.mu.Lock()
			r.ends = append(r.ends, end)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) turnList() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.turns...)
}

func newGame(t *testing.T, rec *recorder) (*Scheduler, *domain.MemoryStore) {
	t.Helper()
	players := make([]domain.Player, 4)
	for i := range players {
		players[i] = domain.Player{Seat: i, Hand: []domain.Card{{Rank: domain.Rank3}, {Rank: domain.Rank4}}}
	}
	store := domain.NewMemoryStore(domain.Table{Players: players})
	scores := scoring.NewController(scoring.Options{Store: store})
	if err := scores.InitializeGame(-100); err != nil {
		t.Fatal(err)
	}
	s := New(Options{Store: store, Scores: scores, Hooks: rec.hooks()})
	return s, store
}

func play(t *testing.T, s *Scheduler, rd *round.Round, player, score int) {
	t.Helper()
	cards := []domain.Card{{Rank: domain.Rank5}}
	rd.RecordPlay(round.PlayRecord{PlayerIndex: player, Cards: cards, Score: score}, domain.IdentifyCombination(cards))
	if !s.OnPlayCompleted(context.Background(), player, rd, time.Now()) {
		t.Fatalf("OnPlayCompleted(%d) rejected", player)
	}
}

func pass(t *testing.T, s *Scheduler, rd *round.Round, player int) {
	t.Helper()
	rd.RecordPass(player)
	if !s.OnPassCompleted(context.Background(), player, rd, time.Now()) {
		t.Fatalf("OnPassCompleted(%d) rejected", player)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEveryonePassesClosesTrickOnce(t *testing.T) {
	rec := &recorder{}
	s, store := newGame(t, rec)
	ctx := context.Background()

	rd := s.Begin(ctx, 0)
	play(t, s, rd, 0, 25)
	pass(t, s, rd, 1)
	pass(t, s, rd, 2)
	pass(t, s, rd, 3)

	if len(rec.ends) != 1 {
		t.Fatalf("round ended %d times, want 1", len(rec.ends))
	}
	end := rec.ends[0]
	if end.Result.WinnerIndex != 0 || end.Result.RoundScore != 25 || end.Starter != 0 || !end.HasStarter {
		t.Fatalf("RoundEnd = %+v", end)
	}
	if got := store.Snapshot().Players[0].Score; got != -75 {
		t.Fatalf("winner score = %d, want -75", got)
	}
	if want := []int{0, 1, 2, 3, 0}; !equalInts(rec.turnList(), want) {
		t.Fatalf("turns = %v, want %v", rec.turnList(), want)
	}
	if !rd.IsFinished() || s.Current().Number() != 2 {
		t.Fatalf("round finished=%v, current=%d", rd.IsFinished(), s.Current().Number())
	}
	if got := store.Snapshot().RoundNumber; got != 2 {
		t.Fatalf("table round = %d, want 2", got)
	}
}

func TestPlayInterruptsTakeoverPoll(t *testing.T) {
	rec := &recorder{}
	s, _ := newGame(t, rec)
	ctx := context.Background()

	rd := s.Begin(ctx, 0)
	play(t, s, rd, 0, 5)
	pass(t, s, rd, 1)
	if !rd.IsTakeoverRoundActive() {
		t.Fatal("poll not started by the first pass")
	}
	play(t, s, rd, 2, 10)
	if rd.IsTakeoverRoundActive() {
		t.Fatal("poll still active after a play")
	}
	pass(t, s, rd, 3)
	pass(t, s, rd, 0)
	if len(rec.ends) != 0 {
		t.Fatal("trick closed before seat 1 answered")
	}
	pass(t, s, rd, 1)

	if len(rec.ends) != 1 || rec.ends[0].Result.WinnerIndex != 2 || rec.ends[0].Result.RoundScore != 15 {
		t.Fatalf("ends = %+v", rec.ends)
	}
}

func TestDuplicateCompletionIgnored(t *testing.T) {
	rec := &recorder{}
	s, _ := newGame(t, rec)
	ctx := context.Background()

	rd := s.Begin(ctx, 0)
	play(t, s, rd, 0, 0)

	at := time.Now()
	if !s.OnPassCompleted(ctx, 1, rd, at) {
		t.Fatal("first pass rejected")
	}
	if s.OnPassCompleted(ctx, 1, rd, at) {
		t.Fatal("replayed pass accepted")
	}
	if want := []int{0, 1, 2}; !equalInts(rec.turnList(), want) {
		t.Fatalf("turns = %v, want %v", rec.turnList(), want)
	}
}

func TestStaleTasksDropped(t *testing.T) {
	rec := &recorder{}
	s, _ := newGame(t, rec)
	ctx := context.Background()

	old := s.Begin(ctx, 0)
	play(t, s, old, 0, 0)
	pass(t, s, old, 1)
	pass(t, s, old, 2)
	pass(t, s, old, 3)
	before := len(rec.turnList())

	s.OnPassCompleted(ctx, 1, old, time.Now())
	s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: 3, Round: old.Number()})

	if got := len(rec.turnList()); got != before {
		t.Fatalf("stale tasks produced %d turns", got-before)
	}
	if len(rec.ends) != 1 {
		t.Fatalf("round ended %d times, want 1", len(rec.ends))
	}
}

func TestQueueOrderAndMerge(t *testing.T) {
	rec := &recorder{}
	s, _ := newGame(t, rec)
	ctx := context.Background()

	var once sync.Once
	var merged bool
	rec.onTurn = func(ctx context.Context, turn Turn) {
		once.Do(func() {
			s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: 2, Round: turn.Round, Priority: PriorityNormal})
			s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: 3, Round: turn.Round, Priority: PriorityLow})
			merged = !s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: 2, Round: turn.Round, Priority: PriorityHigh})
			s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: 1, Round: turn.Round, Priority: PriorityNormal})
		})
	}

	s.Begin(ctx, 0)

	if !merged {
		t.Fatal("equivalent task was queued twice")
	}
	if want := []int{0, 2, 1, 3}; !equalInts(rec.turnList(), want) {
		t.Fatalf("turns = %v, want %v", rec.turnList(), want)
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d after drain", s.Pending())
	}
}

func TestDrainRunsOneTaskAtATime(t *testing.T) {
	rec := &recorder{}
	s, _ := newGame(t, rec)
	ctx := context.Background()
	rd := s.Begin(ctx, 0)

	var inFlight, peak, ran int32
	rec.onTurn = func(context.Context, Turn) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&ran, 1)
		atomic.AddInt32(&inFlight, -1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(target int) {
			defer wg.Done()
			s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: 100 + target, Round: rd.Number()})
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&ran); got != 30 {
		t.Fatalf("ran %d tasks, want 30", got)
	}
	if got := atomic.LoadInt32(&peak); got != 1 {
		t.Fatalf("peak concurrency = %d, want 1", got)
	}
}

func TestPollSkipsFinishedLastPlayer(t *testing.T) {
	rec := &recorder{}
	s, store := newGame(t, rec)
	ctx := context.Background()

	rd := s.Begin(ctx, 1)
	store.Update(func(tb *domain.Table) {
		tb.Players[1].Hand = nil
		tb.Players[1].FinishedRank = 1
	})
	play(t, s, rd, 1, 10)
	pass(t, s, rd, 2)
	pass(t, s, rd, 3)
	pass(t, s, rd, 0)

	if len(rec.ends) != 1 {
		t.Fatalf("round ended %d times, want 1", len(rec.ends))
	}
	end := rec.ends[0]
	if end.Result.WinnerIndex != 1 || end.Starter != 2 {
		t.Fatalf("RoundEnd = %+v, want winner 1 and starter 2", end)
	}
	if got := store.Snapshot().Players[1].Score; got != -90 {
		t.Fatalf("finished winner score = %d, want -90", got)
	}
}

func TestCloseCreditsTableAndStops(t *testing.T) {
	rec := &recorder{}
	s, store := newGame(t, rec)
	ctx := context.Background()

	rd := s.Begin(ctx, 0)
	play(t, s, rd, 0, 10)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if got := store.Snapshot().Players[0].Score; got != -90 {
		t.Fatalf("score after Close = %d, want -90", got)
	}
	if s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: 1, Round: rd.Number()}) {
		t.Fatal("ScheduleNextTurn accepted work after Close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}

func TestTurnArmsPlayTimer(t *testing.T) {
	players := []domain.Player{
		{Seat: 0, Hand: []domain.Card{{Rank: domain.Rank3}}},
		{Seat: 1, Hand: []domain.Card{{Rank: domain.Rank4}}},
	}
	store := domain.NewMemoryStore(domain.Table{Players: players})

	fired := make(chan [2]int, 1)
	s := New(Options{
		Store:  store,
		Policy: round.TimingPolicy{PlayTimeout: 10 * time.Millisecond, Enabled: true},
		Config: config.SchedulerConfig{CommitWaitTimeout: time.Second},
		Hooks: Hooks{OnTimeout: func(roundNumber, player int) {
			fired <- [2]int{roundNumber, player}
		}},
	})
	s.Begin(context.Background(), 1)

	select {
	case got := <-fired:
		if got != [2]int{1, 1} {
			t.Fatalf("timeout for %v, want round 1 seat 1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("play timer never fired")
	}
}

func TestReachesSeat(t *testing.T) {
	tests := []struct {
		from, to, target int
		want             bool
	}{
		{from: 3, to: 0, target: 0, want: true},
		{from: 1, to: 2, target: 0, want: false},
		{from: 0, to: 2, target: 1, want: true},
		{from: 2, to: -1, target: 1, want: true},
	}
	for _, tt := range tests {
		if got := reachesSeat(tt.from, tt.to, tt.target, 4); got != tt.want {
			t.Errorf("reachesSeat(%d, %d, %d) = %v, want %v", tt.from, tt.to, tt.target, got, tt.want)
		}
	}
}
