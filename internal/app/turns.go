package app

import (
	"context"
	"fmt"
	"time"

	"wushik/internal/domain"
	"wushik/internal/ports"
	"wushik/internal/round"
	"wushik/internal/scheduler"
)

// validatePlay checks a play against the live table without changing anything.
func (s *Service) validatePlay(g *game, idx int, cards []domain.Card) (domain.Combination, error) {
	t := g.store.Snapshot()
	if t.Phase != domain.PhasePlaying {
		return domain.Combination{}, ErrNotPlaying
	}
	if idx < 0 || idx >= len(t.Players) {
		return domain.Combination{}, ErrUnknownPlayer
	}
	p := t.Players[idx]
	if !p.Active() {
		return domain.Combination{}, ErrPlayerFinished
	}
	if t.CurrentTurn != idx {
		return domain.Combination{}, ErrNotYourTurn
	}
	if len(cards) == 0 {
		return domain.Combination{}, ErrInvalidCombination
	}
	if !domain.ContainsCards(p.Hand, cards) {
		return domain.Combination{}, ErrCardsNotInHand
	}
	combo, ok := s.rules.Identify(cards)
	if !ok {
		return domain.Combination{}, ErrInvalidCombination
	}
	if last, ok := g.sched.Current().LastPlay(); ok && !s.rules.CanBeat(last.Combination, combo) {
		return domain.Combination{}, fmt.Errorf("%w: %s over %s", ErrCannotBeat, combo.Type, last.Combination.Type)
	}
	return combo, nil
}

func (s *Service) play(ctx context.Context, g *game, idx int, cards []domain.Card) error {
	combo, err := s.validatePlay(g, idx, cards)
	if err != nil {
		return err
	}

	// The countdown stops once a valid play is submitted; a play that fails
	// to commit gets it back.
	rd := g.sched.Current()
	rd.ClearPlayTimer(idx)
	if err := rd.WaitForMinInterval(ctx); err != nil {
		s.resumeTimer(g, rd, idx)
		return err
	}

	score := s.rules.ScoreOf(cards)
	res := rd.ProcessPlay(ctx, idx, func(ctx context.Context) error {
		s.announce(ctx, g, idx, combo)
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.validatePlay(g, idx, cards); err != nil {
			return err
		}
		if !g.claimTurn(idx) {
			return ErrNotYourTurn
		}
		record := round.PlayRecord{
			PlayerIndex: idx,
			Cards:       append([]domain.Card(nil), cards...),
			ScoreCards:  s.scoreCards(cards),
			Score:       score,
		}
		if !rd.RecordPlay(record, combo) {
			g.releaseTurn(idx)
			return round.ErrRoundFinished
		}
		g.store.Update(func(t *domain.Table) {
			t.Players[idx].Hand = domain.RemoveCards(t.Players[idx].Hand, cards)
		})
		return nil
	})
	if !res.OK() {
		s.resumeTimer(g, rd, idx)
		return fmt.Errorf("%w: %w", ErrCommitFailed, res.Err)
	}

	s.afterPlay(ctx, g, rd, idx, cards, combo)
	return nil
}

// resumeTimer re-arms idx's countdown if they still hold the turn in rd.
func (s *Service) resumeTimer(g *game, rd *round.Round, idx int) {
	if g.ended.Load() || rd.IsFinished() || g.store.Snapshot().CurrentTurn != idx {
		return
	}
	g.sched.RestartTimer(rd, idx)
}

// announce voices combo. Failures are logged and otherwise ignored.
func (s *Service) announce(ctx context.Context, g *game, idx int, combo domain.Combination) {
	if s.announcer == nil {
		return
	}
	a := ports.Announcement{
		GameID:      g.id,
		Player:      idx,
		UserID:      g.store.Snapshot().Players[idx].UserID,
		Combination: combo.Type.String(),
		Cards:       combo.Cards,
		Duration:    s.cfg.Announcement.DurationFor(combo.Type.String()),
	}
	if err := s.announcer.Announce(ctx, a); err != nil {
		s.logger.Warn("PlayCards: announcement for player %d failed, continuing: %v", idx, err)
	}
}

func (s *Service) afterPlay(ctx context.Context, g *game, rd *round.Round, idx int, cards []domain.Card, combo domain.Combination) {
	left := len(g.store.Snapshot().Players[idx].Hand)
	s.emit(Event{Kind: EventCardPlayed, Payload: CardPlayedPayload{
		Player:      idx,
		Cards:       append([]domain.Card(nil), cards...),
		Combination: combo.Type.String(),
		RoundScore:  rd.TotalScore(),
		CardsLeft:   left,
	}})

	if combo.Type == domain.Dun {
		payout, err := g.scores.ApplyDunBonus(idx, len(cards))
		if err != nil {
			s.logger.Error("PlayCards: dun bonus for player %d: %v", idx, err)
		} else if payout.Unit > 0 {
			s.emit(Event{Kind: EventDunBonus, Payload: DunBonusPayload{Player: idx, CardCount: len(cards), Gain: payout.Gain, Unit: payout.Unit}})
		}
	}

	if left == 0 {
		rank, err := g.scores.RecordPlayerFinished(idx)
		if err != nil {
			s.logger.Error("PlayCards: record finish for player %d: %v", idx, err)
		} else {
			s.emit(Event{Kind: EventPlayerFinished, Payload: PlayerFinishedPayload{Player: idx, Rank: rank}})
		}
		t := g.store.Snapshot()
		if d := g.strategy.ShouldGameEnd(t.Players, t.FinishOrder, g.team); d.End {
			s.endGame(g, d.Reason)
			return
		}
	}

	g.sched.OnPlayCompleted(ctx, idx, rd, time.Now())
}

func (s *Service) pass(ctx context.Context, g *game, idx int, auto bool) error {
	t := g.store.Snapshot()
	if t.Phase != domain.PhasePlaying {
		return ErrNotPlaying
	}
	if idx < 0 || idx >= len(t.Players) {
		return ErrUnknownPlayer
	}
	if !t.Players[idx].Active() {
		return ErrPlayerFinished
	}
	if t.CurrentTurn != idx {
		return ErrNotYourTurn
	}

	rd := g.sched.Current()
	if _, ok := rd.LastPlay(); !ok {
		return ErrMustLead
	}
	if !g.claimTurn(idx) {
		return ErrNotYourTurn
	}
	if !rd.RecordPass(idx) {
		g.releaseTurn(idx)
		return round.ErrRoundFinished
	}

	// Clients use the hint to fast-forward; the trick still closes on the poll.
	likely := rd.ShouldTakeover(g.store.Snapshot().Players, idx, s.rules)
	s.emit(Event{Kind: EventTurnPassed, Payload: TurnPassedPayload{Player: idx, Auto: auto, TakeoverLikely: likely}})
	g.sched.OnPassCompleted(ctx, idx, rd, time.Now())
	return nil
}

// endGame stops the scheduler, settles scores and announces the standings. Runs once.
func (s *Service) endGame(g *game, reason string) {
	if !g.ended.CompareAndSwap(false, true) {
		return
	}
	if err := g.sched.Close(); err != nil {
		s.logger.Error("EndGame: closing scheduler: %v", err)
	}
	rankings, err := g.scores.CalculateFinalScoresAndRankings()
	if err != nil {
		s.logger.Error("EndGame: settlement failed: %v", err)
	}
	g.store.Update(func(t *domain.Table) {
		t.Phase = domain.PhaseEnded
		t.CurrentTurn = -1
	})

	s.logger.Info("EndGame: game %s over (%s)", g.id, reason)
	s.emit(Event{Kind: EventGameEnded, Payload: GameEndedPayload{
		GameID:     g.id,
		Reason:     reason,
		Rankings:   rankings,
		TeamScores: g.scores.TeamScores(),
	}})
}

func (s *Service) onTurn(_ context.Context, turn scheduler.Turn) {
	s.emit(Event{Kind: EventTurnChanged, Payload: TurnChangedPayload{Player: turn.Player, Round: turn.Round, Leading: turn.Leading}})
}

func (s *Service) onRoundEnd(_ context.Context, end scheduler.RoundEnd) {
	next := -1
	if end.HasStarter {
		next = end.Starter
	}
	s.emit(Event{Kind: EventRoundEnded, Payload: RoundEndedPayload{
		Round:      end.Result.RoundNumber,
		Winner:     end.Result.WinnerIndex,
		Score:      end.Result.RoundScore,
		NextPlayer: next,
	}})
}

// onTimeout acts for a player whose countdown ran out: a follower passes, a
// leader plays their lowest card.
func (s *Service) onTimeout(g *game, roundNumber, player int) {
	if g.ended.Load() {
		return
	}
	rd := g.sched.Current()
	if rd == nil || rd.Number() != roundNumber {
		return
	}
	ctx := context.Background()

	if _, ok := rd.LastPlay(); ok {
		if err := s.pass(ctx, g, player, true); err != nil {
			s.logger.Debug("Timeout: auto-pass for player %d skipped: %v", player, err)
		}
		return
	}

	hand := g.store.Snapshot().Players[player].Hand
	if len(hand) == 0 {
		return
	}
	lowest := hand[0]
	for _, c := range hand[1:] {
		if domain.CardPower(c) < domain.CardPower(lowest) {
			lowest = c
		}
	}
	if err := s.play(ctx, g, player, []domain.Card{lowest}); err != nil {
		s.logger.Debug("Timeout: auto-lead for player %d skipped: %v", player, err)
	}
}

func (s *Service) scoreCards(cards []domain.Card) []domain.Card {
	var out []domain.Card
	for _, c := range cards {
		if s.rules.IsScoreCard(c) {
			out = append(out, c)
		}
	}
	return out
}
