package nakama

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"wushik/internal/app"
	"wushik/internal/config"
	"wushik/internal/domain"
	"wushik/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MatchState holds the authoritative runtime state for the Nakama match handler.
// It is only touched from match callbacks; game state lives in App.
type MatchState struct {
	Seats      [4]string                   `json:"seats"`       // user IDs, empty string means the seat is free
	OwnerSeat  int                         `json:"owner_seat"`  // seat allowed to start the game
	LastWinner string                      `json:"last_winner"` // user ID who leads the next game
	Tick       int64                       `json:"tick"`
	Presences  map[string]runtime.Presence `json:"-"` // user ID -> presence for targeted messages
	App        *app.Service                `json:"-"`
	Economy    ports.EconomyPort           `json:"-"`
	Config     *config.GameConfig          `json:"-"`

	// Run executes blocking game actions off the match loop. Their events go
	// out on a later tick.
	Run func(func()) `json:"-"`
}

func (ms *MatchState) openSeats() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat == "" {
			count++
		}
	}
	return count
}

func (ms *MatchState) occupiedSeats() int {
	return len(ms.Seats) - ms.openSeats()
}

func (ms *MatchState) seatOf(userID string) int {
	for i, seat := range ms.Seats {
		if seat != "" && seat == userID {
			return i
		}
	}
	return -1
}

func (ms *MatchState) phase() domain.Phase {
	if ms.App != nil && ms.App.Playing() {
		return domain.PhasePlaying
	}
	return domain.PhaseLobby
}

// firstConnectedSeat returns the lowest seat whose user is connected, or -1.
func (ms *MatchState) firstConnectedSeat() int {
	for i, userID := range ms.Seats {
		if _, ok := ms.Presences[userID]; ok && userID != "" {
			return i
		}
	}
	return -1
}

// NewMatch is the factory function registered with Nakama.
func NewMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
	return &matchHandler{}, nil
}

type matchHandler struct{}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing match handler.")

	cfg := loadConfig(ctx, logger)
	state := newMatchState(cfg, logger)
	state.Economy = NewNakamaEconomyAdapter(nk)

	label, err := encodeLabel(state.openSeats(), domain.PhaseLobby)
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}
	return state, matchTickRate, label
}

func newMatchState(cfg *config.GameConfig, logger runtime.Logger) *MatchState {
	return &MatchState{
		OwnerSeat: -1,
		Presences: make(map[string]runtime.Presence),
		App:       app.NewService(app.Options{Config: *cfg, Logger: logger}),
		Config:    cfg,
		Run:       func(fn func()) { go fn() },
	}
}

// loadConfig reads the game configuration named by the runtime environment,
// falling back to defaults.
func loadConfig(ctx context.Context, logger runtime.Logger) *config.GameConfig {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)

	cfg := config.DefaultConfig()
	if path := env[EnvConfigPath]; path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			logger.Warn("MatchInit: Could not load game config %s, using defaults: %v", path, err)
		} else {
			cfg = loaded
		}
	}
	if v := env[EnvVoiceSecret]; v != "" {
		cfg.Voice.Secret = v
	}
	if v := env[EnvVoiceIssuer]; v != "" {
		cfg.Voice.Issuer = v
	}
	if v := env[EnvVoiceDomain]; v != "" {
		cfg.Voice.Domain = v
	}
	return cfg
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	// Seated players may always reconnect.
	if matchState.seatOf(presence.GetUserId()) >= 0 {
		return state, true, ""
	}
	if matchState.phase() == domain.PhasePlaying {
		return state, false, "Game in progress"
	}
	if matchState.openSeats() <= 0 {
		return state, false, "Match full"
	}
	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Presences[userID] = p

		if seat := matchState.seatOf(userID); seat >= 0 {
			logger.Debug("MatchJoin: User %s reconnected to seat %d.", userID, seat)
			continue
		}
		seat := domain.LowestAvailableSeat(matchState.Seats[:])
		if seat < 0 {
			logger.Warn("MatchJoin: User %s joined but no seat was available.", userID)
			continue
		}
		matchState.Seats[seat] = userID
		logger.Debug("MatchJoin: User %s took seat %d.", userID, seat)
	}

	if matchState.OwnerSeat < 0 || matchState.Seats[matchState.OwnerSeat] == "" {
		matchState.OwnerSeat = matchState.firstConnectedSeat()
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastMatchState(matchState, dispatcher, logger)
	return matchState
}

// MatchLeave is called when one or more players leave the match. During a game
// the seat is kept so the player can reconnect; their turns time out meanwhile.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	playing := matchState.phase() == domain.PhasePlaying
	for _, p := range presences {
		userID := p.GetUserId()
		delete(matchState.Presences, userID)

		if seat := matchState.seatOf(userID); seat >= 0 && !playing {
			matchState.Seats[seat] = ""
			logger.Debug("MatchLeave: User %s left, seat %d freed.", userID, seat)
		}
	}

	if len(matchState.Presences) == 0 {
		logger.Info("MatchLeave: Terminating match with no connected players.")
		mh.abort(ctx, matchState, dispatcher, logger, "abandoned")
		return nil
	}

	if _, ok := matchState.Presences[matchState.seatUser(matchState.OwnerSeat)]; !ok {
		matchState.OwnerSeat = matchState.firstConnectedSeat()
		logger.Debug("MatchLeave: Owner set to seat %d.", matchState.OwnerSeat)
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastMatchState(matchState, dispatcher, logger)
	return matchState
}

// releaseDisconnected frees the seats of players who left during the game.
func (ms *MatchState) releaseDisconnected(logger runtime.Logger) {
	for i, userID := range ms.Seats {
		if _, ok := ms.Presences[userID]; userID != "" && !ok {
			ms.Seats[i] = ""
			logger.Debug("Seat %d of disconnected user %s freed.", i, userID)
		}
	}
	if ms.seatUser(ms.OwnerSeat) == "" {
		ms.OwnerSeat = ms.firstConnectedSeat()
	}
}

func (ms *MatchState) seatUser(seat int) string {
	if seat < 0 || seat >= len(ms.Seats) {
		return ""
	}
	return ms.Seats[seat]
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick

	for _, msg := range messages {
		switch msg.GetOpCode() {
		case OpStartGame:
			mh.handleStartGame(ctx, matchState, dispatcher, logger, msg)
		case OpPlayCards:
			mh.handlePlayCards(ctx, matchState, logger, msg)
		case OpPassTurn:
			mh.handlePassTurn(ctx, matchState, logger, msg)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	mh.flushEvents(ctx, matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) handleStartGame(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	senderSeat := state.seatOf(senderID)

	logger.Info("StartGame: Request received from %s (seat=%d, owner_seat=%d, occupied=%d)", senderID, senderSeat, state.OwnerSeat, state.occupiedSeats())

	if senderSeat < 0 || senderSeat != state.OwnerSeat {
		logger.Warn("StartGame: User %s tried to start game but is not owner (owner_seat=%d)", senderID, state.OwnerSeat)
		state.App.ReportError(senderID, errNotOwner)
		return
	}

	if err := state.App.StartGame(ctx, state.Seats[:], state.LastWinner); err != nil {
		logger.Warn("StartGame: Failed to start game: %v", err)
		state.App.ReportError(senderID, err)
		return
	}

	mh.updateLabel(state, dispatcher, logger)
	logger.Info("StartGame: Game started with %d players.", state.occupiedSeats())
}

var errNotOwner = errors.New("only the match owner can start the game")

func (mh *matchHandler) handlePlayCards(ctx context.Context, state *MatchState, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	cards, err := decodeCards(msg.GetData())
	if err != nil {
		logger.Warn("handlePlayCards: User %s sent a bad request: %v", senderID, err)
		state.App.ReportError(senderID, err)
		return
	}

	svc := state.App
	state.Run(func() {
		if err := svc.PlayCards(ctx, senderID, cards); err != nil {
			logger.Warn("handlePlayCards: User %s failed to play %v: %v", senderID, cards, err)
			svc.ReportError(senderID, err)
		}
	})
}

func (mh *matchHandler) handlePassTurn(ctx context.Context, state *MatchState, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()
	if err := state.App.Pass(ctx, senderID); err != nil {
		logger.Warn("handlePassTurn: User %s failed to pass turn: %v", senderID, err)
		state.App.ReportError(senderID, err)
	}
}

// abort ends a running game and pays it out as it stands.
func (mh *matchHandler) abort(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, reason string) {
	if state.phase() != domain.PhasePlaying {
		return
	}
	state.App.Abort(reason)
	mh.flushEvents(ctx, state, dispatcher, logger)
}

// flushEvents sends everything the game produced since the last tick.
func (mh *matchHandler) flushEvents(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	for _, ev := range state.App.DrainEvents() {
		mh.broadcastEvent(ctx, state, dispatcher, logger, ev)
	}
}

// broadcastEvent encodes an app event and dispatches it to its recipients.
func (mh *matchHandler) broadcastEvent(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	opCode, data, err := encodeEvent(ev)
	if err != nil {
		logger.Error("Failed to encode event %v: %v", ev.Kind, err)
		return
	}

	var recipients []runtime.Presence
	if len(ev.Recipients) > 0 {
		for _, uid := range ev.Recipients {
			if p, ok := state.Presences[uid]; ok {
				recipients = append(recipients, p)
			}
		}
		// Targeted events never fall back to a broadcast.
		if len(recipients) == 0 {
			logger.Debug("Event %v dropped: no recipient connected.", ev.Kind)
			return
		}
	}

	if err := dispatcher.BroadcastMessage(opCode, data, recipients, nil, true); err != nil {
		logger.Error("Failed to dispatch event %v: %v", ev.Kind, err)
	}

	if ended, ok := ev.Payload.(app.GameEndedPayload); ok {
		mh.settleGame(ctx, state, logger, ended)
		state.releaseDisconnected(logger)
		mh.updateLabel(state, dispatcher, logger)
		mh.broadcastMatchState(state, dispatcher, logger)
	}
}

// settleGame moves final scores into wallets and remembers who leads next.
func (mh *matchHandler) settleGame(ctx context.Context, state *MatchState, logger runtime.Logger, ended app.GameEndedPayload) {
	initial := state.Config.Scoring.InitialScore
	updates := make([]ports.WalletUpdate, 0, len(ended.Rankings))
	for _, r := range ended.Rankings {
		if r.Rank == 1 {
			state.LastWinner = r.UserID
		}
		amount := r.Score - initial
		if ended.TeamScores != nil {
			amount = r.TeamScore
		}
		updates = append(updates, ports.WalletUpdate{
			UserID: r.UserID,
			Amount: int64(amount),
			GameID: ended.GameID,
			Reason: "game_settlement",
		})
	}

	if state.Economy == nil {
		return
	}
	if err := state.Economy.UpdateBalances(ctx, updates); err != nil {
		logger.Error("Failed to update balances for game %s: %v", ended.GameID, err)
	}
}

func (mh *matchHandler) broadcastMatchState(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	cardsLeft := map[string]int{}
	if table, ok := state.App.Snapshot(); ok && table.Phase == domain.PhasePlaying {
		for _, p := range table.Players {
			cardsLeft[p.UserID] = len(p.Hand)
		}
	}

	seats := make([]interface{}, len(state.Seats))
	var players []interface{}
	for i, userID := range state.Seats {
		seats[i] = userID
		if userID == "" {
			continue
		}
		displayName := userID
		p, connected := state.Presences[userID]
		if connected {
			displayName = p.GetUsername()
		}
		players = append(players, map[string]interface{}{
			"user_id":         userID,
			"seat":            i,
			"is_owner":        i == state.OwnerSeat,
			"connected":       connected,
			"display_name":    displayName,
			"cards_remaining": cardsLeft[userID],
		})
	}

	snapshot, err := structpb.NewStruct(map[string]interface{}{
		"seats":      seats,
		"owner_seat": state.OwnerSeat,
		"tick":       state.Tick,
		"phase":      string(state.phase()),
		"players":    players,
	})
	if err != nil {
		logger.Error("Failed to build match state: %v", err)
		return
	}
	data, err := proto.Marshal(snapshot)
	if err != nil {
		logger.Error("Failed to marshal match state: %v", err)
		return
	}
	if err := dispatcher.BroadcastMessage(OpMatchState, data, nil, nil, true); err != nil {
		logger.Error("Failed to broadcast match state: %v", err)
	}
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	label, err := encodeLabel(state.openSeats(), state.phase())
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminating within %v.", time.Duration(graceSeconds)*time.Second)
	if matchState, ok := state.(*MatchState); ok {
		mh.abort(ctx, matchState, dispatcher, logger, "server shutdown")
	}
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}
