// Package round tracks the state of a single trick: its plays, pacing timers,
// the single-flight commit slot and the "everyone passed" takeover poll.
package round

import (
	"context"
	"errors"
	"sync"
	"time"

	"wushik/internal/domain"
	"wushik/internal/logx"

	"github.com/heroiclabs/nakama-common/runtime"
	"golang.org/x/sync/semaphore"
)

// DefaultCommitWait bounds how long a commit waits for the one in flight.
const DefaultCommitWait = 15 * time.Second

var (
	// ErrRoundFinished is returned by End on a round that was already finalized,
	// and carried by commits rejected for the same reason.
	ErrRoundFinished = errors.New("round already finished")
	// ErrCommitBusy is carried by commits that gave up waiting for the slot.
	ErrCommitBusy = errors.New("another play is still being committed")
)

// PlayRecord is one committed play. Immutable once recorded.
type PlayRecord struct {
	PlayerIndex int
	Cards       []domain.Card
	ScoreCards  []domain.Card
	Score       int
}

// Play is the combination currently on the table and who played it.
type Play struct {
	PlayerIndex int
	Combination domain.Combination
}

// Result is what End hands back to the scheduler.
type Result struct {
	RoundNumber     int
	RoundScore      int
	WinnerIndex     int
	NextPlayerIndex int
}

// Options configures a new Round.
type Options struct {
	Number     int
	Policy     TimingPolicy
	CommitWait time.Duration
	Logger     runtime.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Round is the ledger of one trick. All methods are safe for concurrent use.
type Round struct {
	mu         sync.Mutex
	number     int
	policy     TimingPolicy
	commitWait time.Duration
	logger     runtime.Logger
	now        func() time.Time

	plays          []PlayRecord
	passes         []int
	totalScore     int
	lastPlay       *Play
	lastPlayPlayer int
	lastPlayTime   time.Time
	finished       bool

	timers   map[int]*time.Timer
	timerGen map[int]uint64

	slot         *semaphore.Weighted
	commit       CommitSlot
	cancelCommit context.CancelFunc
	// working is true while a commit body runs. recorded is set once it has
	// written its play, abandoned once ProcessPlay has given up on it; never both.
	working   bool
	recorded  bool
	abandoned bool

	takeover takeoverPoll
}

// New opens a fresh round.
func New(opts Options) *Round {
	if opts.CommitWait <= 0 {
		opts.CommitWait = DefaultCommitWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Round{
		number:         opts.Number,
		policy:         opts.Policy,
		commitWait:     opts.CommitWait,
		logger:         logx.OrNop(opts.Logger).WithField("round", opts.Number),
		now:            opts.Now,
		lastPlayPlayer: -1,
		timers:         make(map[int]*time.Timer),
		timerGen:       make(map[int]uint64),
		slot:           semaphore.NewWeighted(1),
		commit:         CommitSlot{Owner: -1, Status: CommitIdle},
	}
}

// Number is the round's epoch.
func (r *Round) Number() int {
	return r.number
}

// Policy returns the pacing rules fixed at creation.
func (r *Round) Policy() TimingPolicy {
	return r.policy
}

// IsFinished reports whether End has been called.
func (r *Round) IsFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// LastPlay returns the combination on the table.
func (r *Round) LastPlay() (Play, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastPlay == nil {
		return Play{}, false
	}
	return *r.lastPlay, true
}

// LastPlayPlayerIndex returns who made the last play, or -1.
func (r *Round) LastPlayPlayerIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPlayPlayer
}

// TotalScore returns the points accumulated in this trick.
func (r *Round) TotalScore() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalScore
}

// Plays returns a copy of the committed plays.
func (r *Round) Plays() []PlayRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PlayRecord(nil), r.plays...)
}

// RecordPlay commits a play. It is a no-op on a finished round, which happens when
// an announcement resolves after the trick closed on another path.
func (r *Round) RecordPlay(record PlayRecord, combo domain.Combination) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		r.logger.Debug("RecordPlay: ignoring late play from seat %d, round closed.", record.PlayerIndex)
		return false
	}
	if r.abandoned {
		r.logger.Debug("RecordPlay: ignoring play from seat %d, its commit timed out.", record.PlayerIndex)
		return false
	}
	if r.commit.Status == CommitProcessing {
		r.recorded = true
	}

	r.plays = append(r.plays, record)
	r.totalScore += record.Score
	r.lastPlay = &Play{PlayerIndex: record.PlayerIndex, Combination: combo}
	r.lastPlayPlayer = record.PlayerIndex
	r.lastPlayTime = r.now()
	r.stopTimerLocked(record.PlayerIndex)
	return true
}

// RecordPass notes a pass. The last play is left untouched.
func (r *Round) RecordPass(player int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		r.logger.Debug("RecordPass: ignoring late pass from seat %d, round closed.", player)
		return false
	}
	r.passes = append(r.passes, player)
	r.stopTimerLocked(player)
	return true
}

// ShouldTakeover reports whether no active player other than the last player and
// the acting one can beat the play on the table.
func (r *Round) ShouldTakeover(players []domain.Player, actingIndex int, rules domain.Rules) bool {
	last, ok := r.LastPlay()
	if !ok {
		return false
	}
	for i, p := range players {
		if i == last.PlayerIndex || i == actingIndex || !p.Active() {
			continue
		}
		if rules.HasResponse(p.Hand, last.Combination) {
			return false
		}
	}
	return true
}

// ShouldEnd reports whether control returning to next closes the trick. A trick
// with a single play never closes this way.
func (r *Round) ShouldEnd(next int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPlay != nil && next == r.lastPlayPlayer && len(r.plays) > 1
}

// End finalizes the round. takeoverWinner, when set, overrides the last player as
// winner. Calling End twice is a caller bug and returns ErrRoundFinished.
func (r *Round) End(players []domain.Player, takeoverWinner *int) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return Result{}, ErrRoundFinished
	}
	r.finished = true

	for player := range r.timers {
		r.stopTimerLocked(player)
	}
	if r.cancelCommit != nil {
		r.cancelCommit()
		r.cancelCommit = nil
	}
	r.takeover = takeoverPoll{}

	winner := r.lastPlayPlayer
	if takeoverWinner != nil {
		winner = *takeoverWinner
	}
	next := winner
	if winner >= 0 && winner < len(players) && !players[winner].Active() {
		next = domain.NextActive(players, winner)
	}

	res := Result{
		RoundNumber:     r.number,
		RoundScore:      r.totalScore,
		WinnerIndex:     winner,
		NextPlayerIndex: next,
	}
	r.logger.Info("End: round closed, winner=%d score=%d next=%d plays=%d", winner, r.totalScore, next, len(r.plays))
	return res, nil
}

// State is a read-only copy of a round.
type State struct {
	Number         int
	Plays          []PlayRecord
	Passes         []int
	TotalScore     int
	LastPlay       *Play
	LastPlayPlayer int
	Finished       bool
	Commit         CommitSlot
	TakeoverActive bool
	TakeoverStart  int
	TakeoverEnd    int
}

// Snapshot returns a copy of the round's state.
func (r *Round) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := State{
		Number:         r.number,
		Plays:          append([]PlayRecord(nil), r.plays...),
		Passes:         append([]int(nil), r.passes...),
		TotalScore:     r.totalScore,
		LastPlayPlayer: r.lastPlayPlayer,
		Finished:       r.finished,
		Commit:         r.commit,
		TakeoverActive: r.takeover.active,
		TakeoverStart:  r.takeover.start,
		TakeoverEnd:    r.takeover.end,
	}
	if r.lastPlay != nil {
		lp := *r.lastPlay
		s.LastPlay = &lp
	}
	return s
}
