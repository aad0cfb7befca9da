// Package scheduler serializes turn advancement: it owns the live round, runs one
// queued task at a time and closes a trick once every opponent has passed.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"wushik/internal/config"
	"wushik/internal/domain"
	"wushik/internal/logx"
	"wushik/internal/round"
	"wushik/internal/team"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

// DefaultDedupeWindow is how long a completion event is remembered.
const DefaultDedupeWindow = 100 * time.Millisecond

// ScoreAllocator receives the points of every closed round.
type ScoreAllocator interface {
	AllocateRoundScore(roundNumber, roundScore, winner int) error
}

// Turn is handed to Hooks.OnTurn when a player gets control.
type Turn struct {
	Player  int
	Round   int
	Leading bool
	Reason  string
}

// RoundEnd is handed to Hooks.OnRoundEnd after a round was closed and scored.
type RoundEnd struct {
	Result round.Result
	// Starter leads NextRound; HasStarter is false when nobody holds cards.
	Starter    int
	HasStarter bool
	NextRound  int
}

// Hooks forward control to the composing application. Hooks run on the goroutine
// draining the queue and may schedule more work.
type Hooks struct {
	OnTurn     func(ctx context.Context, turn Turn)
	OnRoundEnd func(ctx context.Context, end RoundEnd)
	// OnTimeout fires when a player's countdown in the given round expires.
	OnTimeout func(roundNumber, player int)
}

// Options configures a Scheduler.
type Options struct {
	Store    domain.Store
	Scores   ScoreAllocator
	Strategy team.Strategy
	Team     config.TeamConfig
	Policy   round.TimingPolicy
	Config   config.SchedulerConfig
	Hooks    Hooks
	Logger   runtime.Logger
	Now      func() time.Time
}

// Scheduler is the turn dispatcher of one game.
type Scheduler struct {
	store    domain.Store
	scores   ScoreAllocator
	strategy team.Strategy
	team     config.TeamConfig
	policy   round.TimingPolicy
	cfg      config.SchedulerConfig
	hooks    Hooks
	logger   runtime.Logger
	now      func() time.Time

	mu         sync.Mutex
	current    *round.Round
	epoch      int
	queue      taskQueue
	processing bool
	closed     bool
	seen       map[eventKey]time.Time
}

// New builds a scheduler. Call Begin to open the first round.
func New(opts Options) *Scheduler {
	if opts.Strategy == nil {
		opts.Strategy = team.ForConfig(opts.Team)
	}
	if opts.Config.DedupeWindow <= 0 {
		opts.Config.DedupeWindow = DefaultDedupeWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store:    opts.Store,
		scores:   opts.Scores,
		strategy: opts.Strategy,
		team:     opts.Team,
		policy:   opts.Policy,
		cfg:      opts.Config,
		hooks:    opts.Hooks,
		logger:   logx.OrNop(opts.Logger),
		now:      opts.Now,
		seen:     make(map[eventKey]time.Time),
	}
}

// Begin opens a new round and gives first the lead.
func (s *Scheduler) Begin(ctx context.Context, first int) *round.Round {
	s.mu.Lock()
	s.closed = false
	rd := s.openRoundLocked()
	s.mu.Unlock()

	s.logger.Info("Scheduler: round %d opened, seat %d leads", rd.Number(), first)
	s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: first, Round: rd.Number(), Priority: PriorityHigh, Reason: "opening lead"})
	return rd
}

// Current returns the live round, nil before Begin.
func (s *Scheduler) Current() *round.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Close stops the scheduler at game end. The live round is ended and any points
// already on the table go to its last player.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue.reset()
	rd := s.current
	s.mu.Unlock()

	if rd == nil {
		return nil
	}
	res, err := rd.End(s.store.Snapshot().Players, nil)
	if errors.Is(err, round.ErrRoundFinished) {
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info("Scheduler: closed in round %d", res.RoundNumber)
	if res.WinnerIndex < 0 || res.RoundScore == 0 || s.scores == nil {
		return nil
	}
	return s.scores.AllocateRoundScore(res.RoundNumber, res.RoundScore, res.WinnerIndex)
}

// ScheduleNextTurn queues task and drains the queue unless another caller already
// is. It reports whether the task became a new queue entry; a task equivalent to
// a queued one is merged, keeping the higher priority.
func (s *Scheduler) ScheduleNextTurn(ctx context.Context, task Task) bool {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Timestamp.IsZero() {
		task.Timestamp = s.now()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	added := s.queue.push(task)
	if s.processing {
		s.mu.Unlock()
		return added
	}
	s.processing = true
	s.mu.Unlock()

	s.drain(ctx)
	return added
}

func (s *Scheduler) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.closed || ctx.Err() != nil {
			s.processing = false
			s.mu.Unlock()
			return
		}
		task, ok := s.queue.pop()
		if !ok {
			s.processing = false
			s.mu.Unlock()
			return
		}
		rd := s.current
		s.mu.Unlock()

		if rd == nil || task.Round != rd.Number() {
			s.logger.Debug("Scheduler: dropping stale %s task for seat %d (round %d)", task.Type, task.Target, task.Round)
			continue
		}
		s.execute(ctx, rd, task)
	}
}

func (s *Scheduler) execute(ctx context.Context, rd *round.Round, task Task) {
	switch task.Type {
	case TaskTurn:
		s.forward(ctx, rd, task)
	case TaskPlayCompleted:
		s.playCompleted(ctx, rd, task.Target)
	case TaskPassCompleted:
		s.passCompleted(ctx, rd, task.Target)
	case TaskFinalize:
		s.finalize(ctx, rd, task.Target)
	default:
		s.logger.Warn("Scheduler: unknown task type %d", task.Type)
	}
}

// openRoundLocked advances the epoch and installs a fresh round.
func (s *Scheduler) openRoundLocked() *round.Round {
	s.epoch++
	s.current = round.New(round.Options{
		Number:     s.epoch,
		Policy:     s.policy,
		CommitWait: s.cfg.CommitWaitTimeout,
		Logger:     s.logger,
		Now:        s.now,
	})
	return s.current
}
