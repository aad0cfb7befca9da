package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"wushik/internal/config"
	"wushik/internal/domain"
	"wushik/internal/logx"
	"wushik/internal/ports"
	"wushik/internal/round"
	"wushik/internal/scheduler"
	"wushik/internal/scoring"
	"wushik/internal/team"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

var (
	ErrGameInProgress     = errors.New("a game is already in progress")
	ErrNotPlaying         = errors.New("no game in progress")
	ErrTooFewPlayers      = errors.New("not enough players to start")
	ErrUnknownPlayer      = errors.New("player not found")
	ErrPlayerFinished     = errors.New("player already finished")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrCardsNotInHand     = errors.New("cards not in hand")
	ErrInvalidCombination = errors.New("invalid combination")
	ErrCannotBeat         = errors.New("combination does not beat the table")
	ErrMustLead           = errors.New("the leading player cannot pass")
	ErrCommitFailed       = errors.New("play could not be committed")
)

// Options configures a Service.
type Options struct {
	Config config.GameConfig
	Rules  domain.Rules
	// Announcer voices each combination before it is committed. Nil with
	// announcements enabled means an EventAnnouncer on the service's own stream.
	Announcer ports.Announcer
	Logger    runtime.Logger
	Rand      *rand.Rand
}

// Service runs the games of one table, one at a time. Every method is safe for
// concurrent use; events are buffered until DrainEvents.
type Service struct {
	cfg       config.GameConfig
	rules     domain.Rules
	announcer ports.Announcer
	logger    runtime.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu   sync.Mutex
	game *game

	evMu   sync.Mutex
	events []Event
}

// game bundles the per-game collaborators.
type game struct {
	id       string
	store    *domain.MemoryStore
	scores   *scoring.Controller
	sched    *scheduler.Scheduler
	strategy team.Strategy
	team     config.TeamConfig
	ended    atomic.Bool
}

// NewService constructs a Service.
func NewService(opts Options) *Service {
	if opts.Rules == nil {
		opts.Rules = domain.StandardRules{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Service{
		cfg:    opts.Config,
		rules:  opts.Rules,
		logger: logx.OrNop(opts.Logger),
		rng:    opts.Rand,
	}
	switch {
	case !opts.Config.Announcement.Enabled:
	case opts.Announcer != nil:
		s.announcer = opts.Announcer
	default:
		s.announcer = NewEventAnnouncer(s.emit)
	}
	return s
}

// StartGame deals a new game to the non-empty user IDs, in seat order. leader,
// when seated, leads the first round; otherwise the first player does.
func (s *Service) StartGame(ctx context.Context, seats []string, leader string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game != nil && !s.game.ended.Load() {
		return ErrGameInProgress
	}

	var players []domain.Player
	for seat, userID := range seats {
		if userID == "" {
			continue
		}
		players = append(players, domain.Player{UserID: userID, Seat: seat})
	}
	if len(players) < s.cfg.MinPlayers || len(players) < 2 {
		return fmt.Errorf("%w: have %d, need %d", ErrTooFewPlayers, len(players), s.cfg.MinPlayers)
	}

	s.rngMu.Lock()
	deck := domain.ShuffleDeck(s.rng, domain.NewDeck(s.cfg.Decks))
	s.rngMu.Unlock()

	handSize := s.cfg.HandSize
	if limit := len(deck) / len(players); handSize <= 0 || handSize > limit {
		handSize = limit
	}
	for i := range players {
		hand := append([]domain.Card(nil), deck[i*handSize:(i+1)*handSize]...)
		domain.SortHand(hand)
		players[i].Hand = hand
	}

	teamCfg := s.cfg.Team
	if teamCfg.Enabled && len(players) != 4 {
		s.logger.Warn("StartGame: team play needs 4 players, have %d; playing individually", len(players))
		teamCfg.Enabled = false
	}

	g := &game{
		id:       uuid.NewString(),
		strategy: team.ForConfig(teamCfg),
		team:     teamCfg,
	}
	g.store = domain.NewMemoryStore(domain.Table{
		GameID:      g.id,
		Phase:       domain.PhasePlaying,
		Players:     players,
		CurrentTurn: -1,
	})
	g.scores = scoring.NewController(scoring.Options{
		Store:   g.store,
		Rules:   s.rules,
		Team:    teamCfg,
		Scoring: s.cfg.Scoring,
		Logger:  s.logger,
	})
	if err := g.scores.InitializeGame(s.cfg.Scoring.InitialScore); err != nil {
		return err
	}
	g.sched = scheduler.New(scheduler.Options{
		Store:    g.store,
		Scores:   g.scores,
		Strategy: g.strategy,
		Team:     teamCfg,
		Policy:   round.PolicyFromConfig(s.cfg.Timing),
		Config:   s.cfg.Scheduler,
		Logger:   s.logger.WithField("game", g.id),
		Hooks: scheduler.Hooks{
			OnTurn:     s.onTurn,
			OnRoundEnd: s.onRoundEnd,
			OnTimeout: func(roundNumber, player int) {
				s.onTimeout(g, roundNumber, player)
			},
		},
	})
	s.game = g

	first := 0
	userIDs := make([]string, len(players))
	for i, p := range players {
		userIDs[i] = p.UserID
		if p.UserID == leader {
			first = i
		}
	}

	s.emit(Event{Kind: EventGameStarted, Payload: GameStartedPayload{
		GameID:      g.id,
		UserIDs:     userIDs,
		FirstPlayer: first,
		TeamMode:    teamCfg.Enabled,
	}})
	for i, p := range players {
		s.emit(Event{
			Kind:       EventHandDealt,
			Payload:    HandDealtPayload{Player: i, Hand: append([]domain.Card(nil), p.Hand...)},
			Recipients: []string{p.UserID},
		})
	}

	s.logger.Info("StartGame: game %s with %d players, %d cards each, player %d leads", g.id, len(players), handSize, first)
	g.sched.Begin(ctx, first)
	return nil
}

// PlayCards validates and commits a play for userID. It blocks while the
// combination is announced.
func (s *Service) PlayCards(ctx context.Context, userID string, cards []domain.Card) error {
	g, idx, err := s.lookup(userID)
	if err != nil {
		return err
	}
	return s.play(ctx, g, idx, cards)
}

// Pass passes userID's turn.
func (s *Service) Pass(ctx context.Context, userID string) error {
	g, idx, err := s.lookup(userID)
	if err != nil {
		return err
	}
	return s.pass(ctx, g, idx, false)
}

// Abort ends the game in progress, settling it as it stands.
func (s *Service) Abort(reason string) {
	s.mu.Lock()
	g := s.game
	s.mu.Unlock()
	if g != nil {
		s.endGame(g, reason)
	}
}

// Snapshot returns a copy of the current game's table.
func (s *Service) Snapshot() (domain.Table, bool) {
	s.mu.Lock()
	g := s.game
	s.mu.Unlock()
	if g == nil {
		return domain.Table{}, false
	}
	return g.store.Snapshot(), true
}

// Playing reports whether a game is in progress.
func (s *Service) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game != nil && !s.game.ended.Load()
}

// DrainEvents returns and clears the buffered events.
func (s *Service) DrainEvents() []Event {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// ReportError queues an error event for a single user.
func (s *Service) ReportError(userID string, err error) {
	s.emit(Event{
		Kind:       EventError,
		Payload:    ErrorPayload{Code: ErrorCode(err), Message: err.Error()},
		Recipients: []string{userID},
	})
}

// ErrorCode maps a service error to a client-facing code.
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrCommitFailed), errors.Is(err, round.ErrCommitBusy):
		return 409
	case errors.Is(err, ErrNotPlaying), errors.Is(err, ErrGameInProgress):
		return 412
	case errors.Is(err, ErrUnknownPlayer):
		return 404
	default:
		return 400
	}
}

func (s *Service) emit(ev Event) {
	s.evMu.Lock()
	s.events = append(s.events, ev)
	s.evMu.Unlock()
}

func (s *Service) lookup(userID string) (*game, int, error) {
	s.mu.Lock()
	g := s.game
	s.mu.Unlock()
	if g == nil || g.ended.Load() {
		return nil, -1, ErrNotPlaying
	}
	for i, p := range g.store.Snapshot().Players {
		if p.UserID == userID {
			return g, i, nil
		}
	}
	return nil, -1, ErrUnknownPlayer
}

// claimTurn takes the turn away from idx so a second action cannot use it.
func (g *game) claimTurn(idx int) bool {
	claimed := false
	g.store.Update(func(t *domain.Table) {
		if t.CurrentTurn == idx {
			t.CurrentTurn = -1
			claimed = true
		}
	})
	return claimed
}

// releaseTurn hands an unused claim back.
func (g *game) releaseTurn(idx int) {
	g.store.Update(func(t *domain.Table) {
		if t.CurrentTurn == -1 {
			t.CurrentTurn = idx
		}
	})
}
