package scheduler

import (
	"context"
	"time"

	"wushik/internal/domain"
	"wushik/internal/round"
)

type eventKey struct {
	kind   TaskType
	player int
	round  int
	at     int64
}

// OnPlayCompleted reports that player committed a play in rd. It never closes the
// trick: opponents still have to pass. Returns false for a duplicate event.
func (s *Scheduler) OnPlayCompleted(ctx context.Context, player int, rd *round.Round, at time.Time) bool {
	return s.completed(ctx, TaskPlayCompleted, player, rd, at)
}

// OnPassCompleted reports that player passed in rd. Returns false for a duplicate event.
func (s *Scheduler) OnPassCompleted(ctx context.Context, player int, rd *round.Round, at time.Time) bool {
	return s.completed(ctx, TaskPassCompleted, player, rd, at)
}

func (s *Scheduler) completed(ctx context.Context, kind TaskType, player int, rd *round.Round, at time.Time) bool {
	if rd == nil {
		return false
	}
	if at.IsZero() {
		at = s.now()
	}
	if s.duplicate(eventKey{kind: kind, player: player, round: rd.Number(), at: at.UnixNano()}) {
		s.logger.Debug("Scheduler: duplicate %s from seat %d ignored", kind, player)
		return false
	}
	s.ScheduleNextTurn(ctx, Task{
		Type:      kind,
		Target:    player,
		Round:     rd.Number(),
		Priority:  PriorityNormal,
		Timestamp: at,
	})
	return true
}

// duplicate remembers key for the dedupe window and reports whether it was seen.
func (s *Scheduler) duplicate(key eventKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, seenAt := range s.seen {
		if now.Sub(seenAt) > s.cfg.DedupeWindow {
			delete(s.seen, k)
		}
	}
	if _, ok := s.seen[key]; ok {
		return true
	}
	s.seen[key] = now
	return false
}

func (s *Scheduler) playCompleted(ctx context.Context, rd *round.Round, player int) {
	if rd.IsTakeoverRoundActive() {
		rd.EndTakeoverRound()
		s.logger.Debug("Scheduler: seat %d interrupted the takeover poll", player)
	}
	next := domain.NextActive(s.store.Snapshot().Players, player)
	if next < 0 {
		s.logger.Info("Scheduler: no opponent left after seat %d", player)
		return
	}
	s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: next, Round: rd.Number(), Priority: PriorityNormal, Reason: "after play"})
}

func (s *Scheduler) passCompleted(ctx context.Context, rd *round.Round, player int) {
	players := s.store.Snapshot().Players
	next := domain.NextActive(players, player)

	last, ok := rd.LastPlay()
	if !ok {
		if next >= 0 {
			s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: next, Round: rd.Number(), Priority: PriorityNormal, Reason: "after pass"})
		}
		return
	}

	if !rd.IsTakeoverRoundActive() {
		rd.StartTakeoverRound(player, last.PlayerIndex)
	}
	if reachesSeat(player, next, last.PlayerIndex, len(players)) && rd.IsTakeoverPollingComplete(last.PlayerIndex) {
		s.ScheduleNextTurn(ctx, Task{Type: TaskFinalize, Target: last.PlayerIndex, Round: rd.Number(), Priority: PriorityHigh, Reason: "takeover"})
		return
	}
	s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: next, Round: rd.Number(), Priority: PriorityNormal, Reason: "after pass"})
}

// finalize closes rd in favour of winner, credits its points and opens the next round.
func (s *Scheduler) finalize(ctx context.Context, rd *round.Round, winner int) {
	players := s.store.Snapshot().Players
	fullCycle := rd.ShouldEnd(winner)

	res, err := rd.End(players, &winner)
	if err != nil {
		s.logger.Warn("Scheduler: finalize round %d: %v", rd.Number(), err)
		return
	}
	if s.scores != nil {
		if err := s.scores.AllocateRoundScore(res.RoundNumber, res.RoundScore, res.WinnerIndex); err != nil {
			s.logger.Error("Scheduler: allocate round %d score: %v", res.RoundNumber, err)
		}
	}

	starter, hasStarter := s.strategy.NextStarter(res.WinnerIndex, s.store.Snapshot().Players, s.team)

	s.mu.Lock()
	next := s.openRoundLocked()
	s.mu.Unlock()

	s.logger.Info("Scheduler: round %d taken by seat %d for %d points (full cycle=%v), seat %d leads round %d",
		res.RoundNumber, res.WinnerIndex, res.RoundScore, fullCycle, starter, next.Number())

	if s.hooks.OnRoundEnd != nil {
		s.hooks.OnRoundEnd(ctx, RoundEnd{Result: res, Starter: starter, HasStarter: hasStarter, NextRound: next.Number()})
	}
	if hasStarter {
		s.ScheduleNextTurn(ctx, Task{Type: TaskTurn, Target: starter, Round: next.Number(), Priority: PriorityHigh, Reason: "lead"})
	}
}

// forward gives task.Target control of rd and arms their countdown.
func (s *Scheduler) forward(ctx context.Context, rd *round.Round, task Task) {
	number := rd.Number()
	s.store.Update(func(t *domain.Table) {
		t.CurrentTurn = task.Target
		t.RoundNumber = number
	})
	s.RestartTimer(rd, task.Target)

	_, hasLast := rd.LastPlay()
	s.logger.Debug("Scheduler: seat %d to act in round %d (%s)", task.Target, number, task.Reason)
	if s.hooks.OnTurn != nil {
		s.hooks.OnTurn(ctx, Turn{Player: task.Target, Round: number, Leading: !hasLast, Reason: task.Reason})
	}
}

// RestartTimer arms player's countdown in rd with a full play timeout.
func (s *Scheduler) RestartTimer(rd *round.Round, player int) {
	number := rd.Number()
	rd.StartPlayTimer(player, func(player int) {
		if s.hooks.OnTimeout != nil {
			s.hooks.OnTimeout(number, player)
		}
	})
}

// reachesSeat reports whether moving clockwise from from to to passes over or
// lands on target. A negative to means nobody else can act.
func reachesSeat(from, to, target, n int) bool {
	if to < 0 {
		return true
	}
	for step := 1; step <= n; step++ {
		i := (from + step) % n
		if i == target {
			return true
		}
		if i == to {
			return false
		}
	}
	return false
}
