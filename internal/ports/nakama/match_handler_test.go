package nakama

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"wushik/internal/config"
	"wushik/internal/domain"
	"wushik/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

type sentMessage struct {
	opCode     int64
	data       []byte
	recipients []string
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	messages []sentMessage
	labels   []string
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	msg := sentMessage{opCode: opCode, data: data}
	for _, p := range presences {
		msg.recipients = append(msg.recipients, p.GetUserId())
	}
	md.messages = append(md.messages, msg)
	return nil
}

func (md *mockDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return md.BroadcastMessage(opCode, data, presences, sender, reliable)
}

func (md *mockDispatcher) MatchKick(presences []runtime.Presence) error {
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labels = append(md.labels, label)
	return nil
}

func (md *mockDispatcher) withOpCode(opCode int64) []sentMessage {
	var out []sentMessage
	for _, m := range md.messages {
		if m.opCode == opCode {
			out = append(out, m)
		}
	}
	return out
}

func (md *mockDispatcher) lastLabel(t *testing.T) map[string]interface{} {
	t.Helper()
	if len(md.labels) == 0 {
		t.Fatal("no label update")
	}
	var label map[string]interface{}
	if err := json.Unmarshal([]byte(md.labels[len(md.labels)-1]), &label); err != nil {
		t.Fatalf("label is not JSON: %v", err)
	}
	return label
}

// mockPresence implements the presence methods the handler reads.
type mockPresence struct {
	runtime.Presence
	userID string
}

func (p mockPresence) GetUserId() string    { return p.userID }
func (p mockPresence) GetSessionId() string { return "session-" + p.userID }
func (p mockPresence) GetUsername() string  { return "name-" + p.userID }

// mockMatchData is a client message.
type mockMatchData struct {
	runtime.MatchData
	userID string
	opCode int64
	data   []byte
}

func (m mockMatchData) GetUserId() string { return m.userID }
func (m mockMatchData) GetOpCode() int64  { return m.opCode }
func (m mockMatchData) GetData() []byte   { return m.data }

// mockEconomy records wallet settlements.
type mockEconomy struct {
	mu      sync.Mutex
	updates [][]ports.WalletUpdate
}

func (m *mockEconomy) GetBalance(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (m *mockEconomy) UpdateBalances(ctx context.Context, updates []ports.WalletUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updates)
	return nil
}

func presences(userIDs ...string) []runtime.Presence {
	out := make([]runtime.Presence, len(userIDs))
	for i, id := range userIDs {
		out[i] = mockPresence{userID: id}
	}
	return out
}

// newTestMatch returns a handler and a state dealing one card per player with
// no pacing, timeouts or announcements. Game actions run synchronously.
func newTestMatch() (*matchHandler, *MatchState, *mockEconomy) {
	cfg := config.DefaultConfig()
	cfg.Decks = 1
	cfg.HandSize = 1
	cfg.Timing = config.TimingConfig{}
	cfg.Announcement.Enabled = false

	state := newMatchState(cfg, noopLogger{})
	state.Run = func(fn func()) { fn() }
	eco := &mockEconomy{}
	state.Economy = eco
	return &matchHandler{}, state, eco
}

func join(mh *matchHandler, state *MatchState, d *mockDispatcher, userIDs ...string) {
	for _, id := range userIDs {
		mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, d, 0, state, mockPresence{userID: id}, nil)
	}
	mh.MatchJoin(context.Background(), noopLogger{}, nil, nil, d, 0, state, presences(userIDs...))
}

func loop(mh *matchHandler, state *MatchState, d *mockDispatcher, msgs ...runtime.MatchData) interface{} {
	return mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, d, 1, state, msgs)
}

func decodeStruct(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	body := &structpb.Struct{}
	if err := proto.Unmarshal(data, body); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return body.AsMap()
}

func playRequest(t *testing.T, cards ...domain.Card) []byte {
	t.Helper()
	list := make([]interface{}, len(cards))
	for i, c := range cards {
		list[i] = map[string]interface{}{"rank": c.Rank, "suit": c.Suit}
	}
	body, err := structpb.NewStruct(map[string]interface{}{"cards": list})
	if err != nil {
		t.Fatal(err)
	}
	data, err := proto.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// dealtCard reads the single card dealt to userID.
func dealtCard(t *testing.T, d *mockDispatcher, userID string) domain.Card {
	t.Helper()
	for _, m := range d.withOpCode(OpHandDealt) {
		if len(m.recipients) != 1 || m.recipients[0] != userID {
			continue
		}
		hand := decodeStruct(t, m.data)["hand"].([]interface{})
		c := hand[0].(map[string]interface{})
		return domain.Card{Rank: int32(c["rank"].(float64)), Suit: int32(c["suit"].(float64))}
	}
	t.Fatalf("no hand dealt to %s", userID)
	return domain.Card{}
}

func TestMatchInitLabel(t *testing.T) {
	mh := &matchHandler{}
	ctx := context.WithValue(context.Background(), runtime.RUNTIME_CTX_ENV, map[string]string{})
	state, tickRate, label := mh.MatchInit(ctx, noopLogger{}, nil, nil, nil)
	if _, ok := state.(*MatchState); !ok {
		t.Fatalf("state = %T", state)
	}
	if tickRate != matchTickRate {
		t.Fatalf("tick rate = %d", tickRate)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(label), &parsed); err != nil {
		t.Fatalf("label %q: %v", label, err)
	}
	if parsed["game"] != GameLabel || parsed["open"] != float64(4) || parsed["phase"] != "lobby" {
		t.Fatalf("label = %v", parsed)
	}
}

func TestJoinAssignsSeatsAndOwner(t *testing.T) {
	mh, state, _ := newTestMatch()
	d := &mockDispatcher{}
	join(mh, state, d, "u1", "u2")

	if state.Seats != [4]string{"u1", "u2", "", ""} {
		t.Fatalf("seats = %v", state.Seats)
	}
	if state.OwnerSeat != 0 {
		t.Fatalf("owner = %d, want 0", state.OwnerSeat)
	}
	if open := d.lastLabel(t)["open"]; open != float64(2) {
		t.Fatalf("label open = %v, want 2", open)
	}

	snaps := d.withOpCode(OpMatchState)
	if len(snaps) != 1 {
		t.Fatalf("match state broadcasts = %d, want 1", len(snaps))
	}
	snap := decodeStruct(t, snaps[0].data)
	players := snap["players"].([]interface{})
	if len(players) != 2 || players[1].(map[string]interface{})["display_name"] != "name-u2" {
		t.Fatalf("players = %v", players)
	}
}

func TestJoinAttempt(t *testing.T) {
	mh, state, _ := newTestMatch()
	d := &mockDispatcher{}
	join(mh, state, d, "u1", "u2", "u3", "u4")

	attempt := func(userID string) (bool, string) {
		_, ok, reason := mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, d, 0, state, mockPresence{userID: userID}, nil)
		return ok, reason
	}

	if ok, reason := attempt("u5"); ok || reason != "Match full" {
		t.Fatalf("join full match = %v %q", ok, reason)
	}
	if ok, _ := attempt("u2"); !ok {
		t.Fatal("seated player could not reconnect")
	}

	mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, d, 0, state, presences("u4"))
	loop(mh, state, d, mockMatchData{userID: "u1", opCode: OpStartGame})
	if ok, reason := attempt("u5"); ok || reason != "Game in progress" {
		t.Fatalf("join during game = %v %q", ok, reason)
	}
}

func TestLeaveReassignsOwner(t *testing.T) {
	mh, state, _ := newTestMatch()
	d := &mockDispatcher{}
	join(mh, state, d, "u1", "u2")

	if got := mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, d, 0, state, presences("u1")); got == nil {
		t.Fatal("match terminated with a player left")
	}
	if state.Seats[0] != "" || state.OwnerSeat != 1 {
		t.Fatalf("seats = %v owner = %d", state.Seats, state.OwnerSeat)
	}
	if got := mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, d, 0, state, presences("u2")); got != nil {
		t.Fatal("empty match not terminated")
	}
}

func TestStartGameOnlyByOwner(t *testing.T) {
	mh, state, _ := newTestMatch()
	d := &mockDispatcher{}
	join(mh, state, d, "u1", "u2")

	loop(mh, state, d, mockMatchData{userID: "u2", opCode: OpStartGame})
	if state.App.Playing() {
		t.Fatal("non-owner started the game")
	}
	errs := d.withOpCode(OpGameError)
	if len(errs) != 1 || errs[0].recipients[0] != "u2" {
		t.Fatalf("error messages = %+v", errs)
	}

	loop(mh, state, d, mockMatchData{userID: "u1", opCode: OpStartGame})
	if !state.App.Playing() {
		t.Fatal("owner could not start the game")
	}
	if started := d.withOpCode(OpGameStarted); len(started) != 1 || started[0].recipients != nil {
		t.Fatalf("game_started = %+v", started)
	}
	if dealt := d.withOpCode(OpHandDealt); len(dealt) != 2 {
		t.Fatalf("hand_dealt messages = %d, want 2", len(dealt))
	}
	if phase := d.lastLabel(t)["phase"]; phase != "playing" {
		t.Fatalf("label phase = %v", phase)
	}
}

func TestRejectedActionsReportToSender(t *testing.T) {
	mh, state, _ := newTestMatch()
	d := &mockDispatcher{}
	join(mh, state, d, "u1", "u2")
	loop(mh, state, d, mockMatchData{userID: "u1", opCode: OpStartGame})

	tests := []struct {
		name string
		msg  mockMatchData
		code float64
	}{
		{name: "leader passes", msg: mockMatchData{userID: "u1", opCode: OpPassTurn}, code: 400},
		{name: "out of turn", msg: mockMatchData{userID: "u2", opCode: OpPassTurn}, code: 400},
		{name: "garbage payload", msg: mockMatchData{userID: "u1", opCode: OpPlayCards, data: []byte{0xff, 0x01}}, code: 400},
		{name: "stranger", msg: mockMatchData{userID: "u9", opCode: OpPassTurn}, code: 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.messages = nil
			state.Presences[tt.msg.userID] = mockPresence{userID: tt.msg.userID}
			loop(mh, state, d, tt.msg)

			errs := d.withOpCode(OpGameError)
			if len(errs) != 1 || errs[0].recipients[0] != tt.msg.userID {
				t.Fatalf("error messages = %+v", errs)
			}
			if code := decodeStruct(t, errs[0].data)["code"]; code != tt.code {
				t.Fatalf("code = %v, want %v", code, tt.code)
			}
		})
	}
}

func TestGameSettlesWallets(t *testing.T) {
	mh, state, eco := newTestMatch()
	d := &mockDispatcher{}
	join(mh, state, d, "u1", "u2")
	loop(mh, state, d, mockMatchData{userID: "u1", opCode: OpStartGame})

	c := dealtCard(t, d, "u1")
	loop(mh, state, d, mockMatchData{userID: "u1", opCode: OpPlayCards, data: playRequest(t, c)})

	if state.App.Playing() {
		t.Fatal("game still running")
	}
	if ended := d.withOpCode(OpGameEnded); len(ended) != 1 {
		t.Fatalf("game_ended messages = %d, want 1", len(ended))
	}
	if len(eco.updates) != 1 {
		t.Fatalf("settlements = %d, want 1", len(eco.updates))
	}

	// the winner keeps the table and +15, the loser pays 15
	want := map[string]int64{"u1": int64(15 + domain.PointsFor(c)), "u2": -15}
	for _, u := range eco.updates[0] {
		if u.Amount != want[u.UserID] || u.Reason != "game_settlement" || u.GameID == "" {
			t.Errorf("update = %+v, want amount %d", u, want[u.UserID])
		}
	}
	if state.LastWinner != "u1" {
		t.Fatalf("last winner = %q", state.LastWinner)
	}
	if phase := d.lastLabel(t)["phase"]; phase != "lobby" {
		t.Fatalf("label phase = %v", phase)
	}
}

func TestAbandonedGameIsSettled(t *testing.T) {
	mh, state, eco := newTestMatch()
	d := &mockDispatcher{}
	join(mh, state, d, "u1", "u2")
	loop(mh, state, d, mockMatchData{userID: "u1", opCode: OpStartGame})

	mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, d, 0, state, presences("u2"))
	if state.Seats[1] != "u2" {
		t.Fatal("seat freed during a game")
	}
	if got := mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, d, 0, state, presences("u1")); got != nil {
		t.Fatal("empty match not terminated")
	}
	if state.App.Playing() {
		t.Fatal("abandoned game still running")
	}
	if len(eco.updates) != 1 {
		t.Fatalf("settlements = %d, want 1", len(eco.updates))
	}
}
