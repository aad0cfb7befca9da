package app

import (
	"wushik/internal/domain"
	"wushik/internal/scoring"
)

// EventKind identifies emitted game events for Nakama dispatch.
type EventKind string

const (
	EventGameStarted    EventKind = "game_started"
	EventHandDealt      EventKind = "hand_dealt"
	EventTurnChanged    EventKind = "turn_changed"
	EventCardPlayed     EventKind = "card_played"
	EventTurnPassed     EventKind = "turn_passed"
	EventAnnouncement   EventKind = "announcement"
	EventRoundEnded     EventKind = "round_ended"
	EventDunBonus       EventKind = "dun_bonus"
	EventPlayerFinished EventKind = "player_finished"
	EventGameEnded      EventKind = "game_ended"
	EventError          EventKind = "error"
)

// Event is a game event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // user IDs; empty means broadcast
}

// Player fields in payloads are indexes into the game's player list.

type GameStartedPayload struct {
	GameID      string
	UserIDs     []string
	FirstPlayer int
	TeamMode    bool
}

type HandDealtPayload struct {
	Player int
	Hand   []domain.Card
}

type TurnChangedPayload struct {
	Player  int
	Round   int
	Leading bool
}

type CardPlayedPayload struct {
	Player      int
	Cards       []domain.Card
	Combination string
	RoundScore  int
	CardsLeft   int
}

type TurnPassedPayload struct {
	Player int
	Auto   bool
	// TakeoverLikely is set when no other seat still holds a response.
	TakeoverLikely bool
}

type AnnouncementPayload struct {
	Player      int
	Combination string
	DurationMs  int64
}

type RoundEndedPayload struct {
	Round      int
	Winner     int
	Score      int
	NextPlayer int
}

type DunBonusPayload struct {
	Player    int
	CardCount int
	Gain      int
	Unit      int
}

type PlayerFinishedPayload struct {
	Player int
	Rank   int
}

type GameEndedPayload struct {
	GameID     string
	Reason     string
	Rankings   []scoring.Ranking
	TeamScores map[int]int
}

type ErrorPayload struct {
	Code    int
	Message string
}
