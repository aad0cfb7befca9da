// Package team decides who leads after a trick and when a game is over.
package team

import (
	"fmt"

	"wushik/internal/config"
	"wushik/internal/domain"
)

// EndDecision is the verdict of ShouldGameEnd.
type EndDecision struct {
	End    bool
	Reason string
}

// Strategy is the pluggable next-starter and end-condition policy.
type Strategy interface {
	// NextStarter returns who leads the next trick; ok is false when nobody can.
	NextStarter(winner int, players []domain.Player, cfg config.TeamConfig) (int, bool)
	ShouldGameEnd(players []domain.Player, finishOrder []int, cfg config.TeamConfig) EndDecision
}

// ForConfig picks the strategy matching the team configuration.
func ForConfig(cfg config.TeamConfig) Strategy {
	if cfg.Enabled {
		return Partnership{}
	}
	return Individual{}
}

// Individual is every-player-for-themselves play.
type Individual struct{}

// NextStarter keeps the lead with the winner, or passes it clockwise.
func (Individual) NextStarter(winner int, players []domain.Player, _ config.TeamConfig) (int, bool) {
	return winnerOrNext(winner, players)
}

// ShouldGameEnd ends the game once at most one player still holds cards.
func (Individual) ShouldGameEnd(players []domain.Player, _ []int, _ config.TeamConfig) EndDecision {
	if domain.CountActive(players) <= 1 {
		return EndDecision{End: true, Reason: "one player left"}
	}
	return EndDecision{}
}

// Partnership is fixed-team play: a finished winner hands the lead to a teammate.
type Partnership struct{}

// NextStarter prefers the winner, then the winner's active teammate.
func (Partnership) NextStarter(winner int, players []domain.Player, cfg config.TeamConfig) (int, bool) {
	if winner >= 0 && winner < len(players) && players[winner].Active() {
		return winner, true
	}
	for _, mate := range cfg.Members(cfg.TeamOf(winner)) {
		if mate != winner && mate >= 0 && mate < len(players) && players[mate].Active() {
			return mate, true
		}
	}
	return winnerOrNext(winner, players)
}

// ShouldGameEnd ends the game when every member of some team has finished.
func (Partnership) ShouldGameEnd(players []domain.Player, finishOrder []int, cfg config.TeamConfig) EndDecision {
	done := make(map[int]bool, len(finishOrder))
	for _, seat := range finishOrder {
		done[seat] = true
	}
	for i, members := range cfg.Teams {
		all := len(members) > 0
		for _, m := range members {
			if !done[m] {
				all = false
				break
			}
		}
		if all {
			return EndDecision{End: true, Reason: fmt.Sprintf("team %d finished", i)}
		}
	}
	if domain.CountActive(players) <= 1 {
		return EndDecision{End: true, Reason: "one player left"}
	}
	return EndDecision{}
}

func winnerOrNext(winner int, players []domain.Player) (int, bool) {
	if winner >= 0 && winner < len(players) && players[winner].Active() {
		return winner, true
	}
	next := domain.NextActive(players, winner)
	return next, next >= 0
}
