package nakama

import (
	"errors"
	"fmt"
	"math"

	"wushik/internal/app"
	"wushik/internal/domain"
	"wushik/internal/scoring"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var errBadCards = errors.New("malformed cards payload")

// eventOpCodes maps app events onto their wire op codes.
var eventOpCodes = map[app.EventKind]int64{
	app.EventGameStarted:    OpGameStarted,
	app.EventHandDealt:      OpHandDealt,
	app.EventTurnChanged:    OpTurnChanged,
	app.EventCardPlayed:     OpCardPlayed,
	app.EventTurnPassed:     OpTurnPassed,
	app.EventAnnouncement:   OpAnnouncement,
	app.EventRoundEnded:     OpRoundEnded,
	app.EventDunBonus:       OpDunBonus,
	app.EventPlayerFinished: OpPlayerFinished,
	app.EventGameEnded:      OpGameEnded,
	app.EventError:          OpGameError,
}

// encodeEvent returns the op code and protobuf-encoded Struct body for ev.
func encodeEvent(ev app.Event) (int64, []byte, error) {
	opCode, ok := eventOpCodes[ev.Kind]
	if !ok {
		return 0, nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	fields, err := eventFields(ev)
	if err != nil {
		return 0, nil, err
	}
	body, err := structpb.NewStruct(fields)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", ev.Kind, err)
	}
	data, err := proto.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal %s: %w", ev.Kind, err)
	}
	return opCode, data, nil
}

func eventFields(ev app.Event) (map[string]interface{}, error) {
	switch p := ev.Payload.(type) {
	case app.GameStartedPayload:
		return map[string]interface{}{
			"game_id":      p.GameID,
			"user_ids":     stringList(p.UserIDs),
			"first_player": p.FirstPlayer,
			"team_mode":    p.TeamMode,
		}, nil
	case app.HandDealtPayload:
		return map[string]interface{}{
			"player": p.Player,
			"hand":   cardList(p.Hand),
		}, nil
	case app.TurnChangedPayload:
		return map[string]interface{}{
			"player":  p.Player,
			"round":   p.Round,
			"leading": p.Leading,
		}, nil
	case app.CardPlayedPayload:
		return map[string]interface{}{
			"player":      p.Player,
			"cards":       cardList(p.Cards),
			"combination": p.Combination,
			"round_score": p.RoundScore,
			"cards_left":  p.CardsLeft,
		}, nil
	case app.TurnPassedPayload:
		return map[string]interface{}{
			"player":          p.Player,
			"auto":            p.Auto,
			"takeover_likely": p.TakeoverLikely,
		}, nil
	case app.AnnouncementPayload:
		return map[string]interface{}{
			"player":      p.Player,
			"combination": p.Combination,
			"duration_ms": p.DurationMs,
		}, nil
	case app.RoundEndedPayload:
		return map[string]interface{}{
			"round":       p.Round,
			"winner":      p.Winner,
			"score":       p.Score,
			"next_player": p.NextPlayer,
		}, nil
	case app.DunBonusPayload:
		return map[string]interface{}{
			"player":     p.Player,
			"card_count": p.CardCount,
			"gain":       p.Gain,
			"unit":       p.Unit,
		}, nil
	case app.PlayerFinishedPayload:
		return map[string]interface{}{
			"player": p.Player,
			"rank":   p.Rank,
		}, nil
	case app.GameEndedPayload:
		fields := map[string]interface{}{
			"game_id":  p.GameID,
			"reason":   p.Reason,
			"rankings": rankingList(p.Rankings),
		}
		if p.TeamScores != nil {
			teams := make(map[string]interface{}, len(p.TeamScores))
			for team, score := range p.TeamScores {
				teams[fmt.Sprint(team)] = score
			}
			fields["team_scores"] = teams
		}
		return fields, nil
	case app.ErrorPayload:
		return map[string]interface{}{
			"code":    p.Code,
			"message": p.Message,
		}, nil
	default:
		return nil, fmt.Errorf("event %s has unsupported payload %T", ev.Kind, ev.Payload)
	}
}

func stringList(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func cardList(cards []domain.Card) []interface{} {
	out := make([]interface{}, len(cards))
	for i, c := range cards {
		out[i] = map[string]interface{}{"rank": c.Rank, "suit": c.Suit}
	}
	return out
}

func rankingList(rankings []scoring.Ranking) []interface{} {
	out := make([]interface{}, len(rankings))
	for i, r := range rankings {
		out[i] = map[string]interface{}{
			"player":     r.PlayerIndex,
			"user_id":    r.UserID,
			"rank":       r.Rank,
			"score":      r.Score,
			"team":       r.Team,
			"team_score": r.TeamScore,
		}
	}
	return out
}

// decodeCards reads the cards of a play request: a protobuf Struct holding
// {"cards": [{"rank": r, "suit": s}, ...]}.
func decodeCards(data []byte) ([]domain.Card, error) {
	body := &structpb.Struct{}
	if err := proto.Unmarshal(data, body); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCards, err)
	}
	list := body.GetFields()["cards"].GetListValue()
	if list == nil || len(list.GetValues()) == 0 {
		return nil, fmt.Errorf("%w: no cards", errBadCards)
	}

	cards := make([]domain.Card, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		rank, okRank := cardField(fields, "rank", domain.Rank2)
		suit, okSuit := cardField(fields, "suit", domain.SuitClubs)
		if !okRank || !okSuit {
			return nil, fmt.Errorf("%w: card %d out of range", errBadCards, i)
		}
		cards = append(cards, domain.Card{Rank: rank, Suit: suit})
	}
	return cards, nil
}

func cardField(fields map[string]*structpb.Value, key string, max int32) (int32, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, false
	}
	if n.NumberValue < 0 || n.NumberValue > float64(max) {
		return 0, false
	}
	return int32(n.NumberValue), true
}

// encodeLabel renders the match listing label as JSON.
func encodeLabel(open int, phase domain.Phase) (string, error) {
	label, err := structpb.NewStruct(map[string]interface{}{
		"game":  GameLabel,
		"open":  open,
		"phase": string(phase),
	})
	if err != nil {
		return "", err
	}
	data, err := (&protojson.MarshalOptions{EmitUnpopulated: true}).Marshal(label)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
