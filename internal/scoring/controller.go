// Package scoring is the only writer of player scores, trick wins and finish ranks.
package scoring

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"wushik/internal/config"
	"wushik/internal/domain"
	"wushik/internal/logx"

	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	ErrAlreadyInitialized = errors.New("game already initialized")
	ErrNotInitialized     = errors.New("game not initialized")
	ErrUnknownPlayer      = errors.New("player index out of range")
)

// Ranking is one line of the final standings.
type Ranking struct {
	PlayerIndex int
	UserID      string
	Rank        int
	Score       int
	Team        int
	TeamScore   int
}

// Options configures a Controller.
type Options struct {
	Store   domain.Store
	Rules   domain.Rules
	Team    config.TeamConfig
	Scoring config.ScoringConfig
	Logger  runtime.Logger
}

// Controller owns every score mutation of one game.
type Controller struct {
	mu      sync.Mutex
	store   domain.Store
	rules   domain.Rules
	team    config.TeamConfig
	scoring config.ScoringConfig
	logger  runtime.Logger

	initialized bool
	allocated   map[int]bool
	settled     []Ranking
}

// NewController builds a controller over store.
func NewController(opts Options) *Controller {
	if opts.Rules == nil {
		opts.Rules = domain.StandardRules{}
	}
	return &Controller{
		store:     opts.Store,
		rules:     opts.Rules,
		team:      opts.Team,
		scoring:   opts.Scoring,
		logger:    logx.OrNop(opts.Logger),
		allocated: make(map[int]bool),
	}
}

// InitializeGame resets every player's score fields to a baseline. Once per game.
func (c *Controller) InitializeGame(initialScore int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return ErrAlreadyInitialized
	}
	c.initialized = true

	c.store.Update(func(t *domain.Table) {
		for i := range t.Players {
			t.Players[i].Score = initialScore
			t.Players[i].FinishedRank = 0
			t.Players[i].WonRounds = 0
			t.Players[i].Team = c.team.TeamOf(i)
		}
		t.FinishOrder = nil
		t.TeamScores = make(map[int]int)
		t.TeamRoundsWon = make(map[int]int)
		if c.team.Enabled {
			for team := range c.team.Teams {
				t.TeamScores[team] = 0
				t.TeamRoundsWon[team] = 0
			}
		}
	})
	c.logger.Info("InitializeGame: baseline score %d, teams=%v", initialScore, c.team.Enabled)
	return nil
}

// AllocateRoundScore credits a trick's points to its winner, or to the winner's team
// pool in team mode. A zero score changes nothing; a round already credited is ignored.
func (c *Controller) AllocateRoundScore(roundNumber, roundScore, winner int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	if roundScore == 0 {
		c.logger.Debug("AllocateRoundScore: round %d won by seat %d carried no points", roundNumber, winner)
		return nil
	}
	if c.allocated[roundNumber] {
		c.logger.Warn("AllocateRoundScore: round %d already credited, ignoring", roundNumber)
		return nil
	}

	var err error
	c.store.Update(func(t *domain.Table) {
		if winner < 0 || winner >= len(t.Players) {
			err = fmt.Errorf("%w: %d", ErrUnknownPlayer, winner)
			return
		}
		if c.team.Enabled {
			team := c.team.TeamOf(winner)
			t.TeamScores[team] += roundScore
			t.TeamRoundsWon[team]++
			return
		}
		t.Players[winner].Score += roundScore
		t.Players[winner].WonRounds++
	})
	if err != nil {
		return err
	}
	c.allocated[roundNumber] = true
	c.logger.Info("AllocateRoundScore: round %d credited %d to seat %d", roundNumber, roundScore, winner)
	return nil
}

// RecordPlayerFinished appends player to the finish order and returns their rank.
// A player already in the order keeps their existing rank.
func (c *Controller) RecordPlayerFinished(player int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rank := 0
	var err error
	c.store.Update(func(t *domain.Table) {
		if player < 0 || player >= len(t.Players) {
			err = fmt.Errorf("%w: %d", ErrUnknownPlayer, player)
			return
		}
		for i, seat := range t.FinishOrder {
			if seat == player {
				rank = i + 1
				return
			}
		}
		t.FinishOrder = append(t.FinishOrder, player)
		rank = len(t.FinishOrder)
		t.Players[player].FinishedRank = rank
		c.logger.Info("RecordPlayerFinished: seat %d finished at rank %d", player, rank)
	})
	return rank, err
}

// ApplyDunBonus pays a dun: every opponent pays the unit, the player collects all of it.
func (c *Controller) ApplyDunBonus(player, cardCount int) (DunPayout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		payout DunPayout
		err    error
	)
	c.store.Update(func(t *domain.Table) {
		if player < 0 || player >= len(t.Players) {
			err = fmt.Errorf("%w: %d", ErrUnknownPlayer, player)
			return
		}
		payout = PayDun(cardCount, len(t.Players), c.scoring.DunBase)
		if payout.Unit == 0 {
			return
		}
		for i := range t.Players {
			if i == player {
				t.Players[i].Score += payout.Gain
				continue
			}
			t.Players[i].Score -= payout.Unit
		}
	})
	if err == nil && payout.Unit > 0 {
		c.logger.Info("ApplyDunBonus: seat %d dun of %d cards, +%d / -%d", player, cardCount, payout.Gain, payout.Unit)
	}
	return payout, err
}

// CalculateFinalScoresAndRankings settles the game once. Last place hands the value
// of its unplayed point cards to the runner-up, then rank deltas are applied.
// Later calls return the same standings without touching scores.
func (c *Controller) CalculateFinalScoresAndRankings() ([]Ranking, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, ErrNotInitialized
	}
	if c.settled != nil {
		return append([]Ranking(nil), c.settled...), nil
	}

	var rankings []Ranking
	c.store.Update(func(t *domain.Table) {
		order := completeOrder(t)
		n := len(order)
		if n == 0 {
			return
		}

		last := order[n-1]
		if n >= 2 && last != order[1] {
			unplayed := c.rules.ScoreOf(t.Players[last].Hand)
			if unplayed > 0 {
				c.transfer(t, last, order[1], unplayed)
				c.logger.Info("CalculateFinalScores: seat %d hands %d unplayed points to seat %d", last, unplayed, order[1])
			}
		}

		multipliers := domain.RankMultipliers(n)
		for pos, seat := range order {
			delta := multipliers[pos] * c.scoring.RankUnit
			if c.team.Enabled {
				t.TeamScores[c.team.TeamOf(seat)] += delta
			} else {
				t.Players[seat].Score += delta
			}
		}

		for pos, seat := range order {
			p := t.Players[seat]
			r := Ranking{
				PlayerIndex: seat,
				UserID:      p.UserID,
				Rank:        pos + 1,
				Score:       p.Score,
				Team:        c.team.TeamOf(seat),
			}
			if c.team.Enabled {
				r.TeamScore = t.TeamScores[r.Team]
			}
			rankings = append(rankings, r)
		}
	})

	c.settled = rankings
	return append([]Ranking(nil), rankings...), nil
}

// transfer moves points between seats, or between their teams in team mode.
func (c *Controller) transfer(t *domain.Table, from, to, amount int) {
	if c.team.Enabled {
		fromTeam, toTeam := c.team.TeamOf(from), c.team.TeamOf(to)
		if fromTeam == toTeam {
			return
		}
		t.TeamScores[fromTeam] -= amount
		t.TeamScores[toTeam] += amount
		return
	}
	t.Players[from].Score -= amount
	t.Players[to].Score += amount
}

// completeOrder appends players that never finished, fewest cards first, and
// records their ranks so the finish order covers the whole table.
func completeOrder(t *domain.Table) []int {
	seen := make(map[int]bool, len(t.Players))
	for _, seat := range t.FinishOrder {
		seen[seat] = true
	}
	var rest []int
	for i := range t.Players {
		if !seen[i] {
			rest = append(rest, i)
		}
	}
	sort.SliceStable(rest, func(a, b int) bool {
		return len(t.Players[rest[a]].Hand) < len(t.Players[rest[b]].Hand)
	})
	for _, seat := range rest {
		t.FinishOrder = append(t.FinishOrder, seat)
		t.Players[seat].FinishedRank = len(t.FinishOrder)
	}
	return append([]int(nil), t.FinishOrder...)
}

// FinishOrder returns seats in the order they went out.
func (c *Controller) FinishOrder() []int {
	return c.store.Snapshot().FinishOrder
}

// TeamScores returns the team pools; nil outside team mode.
func (c *Controller) TeamScores() map[int]int {
	if !c.team.Enabled {
		return nil
	}
	return c.store.Snapshot().TeamScores
}
