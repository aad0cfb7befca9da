package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"wushik/internal/app"

	"github.com/heroiclabs/nakama-common/runtime"
)

// quickMatchQuery finds this game's lobbies with at least one free seat.
var quickMatchQuery = fmt.Sprintf("+label.game:%s +label.open:>=1 +label.phase:lobby", GameLabel)

// RegisterRPCs registers all RPC handlers with Nakama.
func RegisterRPCs(initializer runtime.Initializer, voice *app.VoiceService) error {
	if err := initializer.RegisterRpc(RpcQuickMatch, RpcQuickMatchFn); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcVoiceToken, newVoiceTokenRPC(voice))
}

// RpcQuickMatchFn returns the ID of an open lobby, creating one when none exists.
func RpcQuickMatchFn(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)

	minSize := 0
	maxSize := 4
	matches, err := nk.MatchList(ctx, 1, true, "", &minSize, &maxSize, quickMatchQuery)
	if err != nil {
		logger.Error("RpcQuickMatch [User:%s]: Failed to list matches: %v", userID, err)
		return "", err
	}
	if len(matches) > 0 {
		matchID := matches[0].GetMatchId()
		logger.Info("RpcQuickMatch [User:%s]: Found existing match %s", userID, matchID)
		return matchID, nil
	}

	matchID, err := nk.MatchCreate(ctx, MatchName, nil)
	if err != nil {
		logger.Error("RpcQuickMatch [User:%s]: Failed to create match: %v", userID, err)
		return "", err
	}
	logger.Info("RpcQuickMatch [User:%s]: Created new match %s", userID, matchID)
	return matchID, nil
}

type voiceTokenRequest struct {
	Action string `json:"action"`
	GameID string `json:"game_id,omitempty"`
}

type voiceTokenResponse struct {
	Token   string `json:"token"`
	Channel string `json:"channel,omitempty"`
}

// newVoiceTokenRPC signs a voice token for the calling user. A join token
// needs the game ID whose channel to enter.
func newVoiceTokenRPC(voice *app.VoiceService) func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		if userID == "" {
			return "", runtime.NewError("authentication required", 16)
		}

		req := voiceTokenRequest{Action: app.VoiceActionLogin}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &req); err != nil {
				return "", runtime.NewError("invalid payload", 3)
			}
		}

		var channel string
		if req.Action == app.VoiceActionJoin {
			if req.GameID == "" {
				return "", runtime.NewError("game_id is required to join", 3)
			}
			channel = app.ChannelForGame(req.GameID)
		}

		token, err := voice.GenerateToken(userID, req.Action, channel)
		if err != nil {
			logger.Warn("RpcVoiceToken [User:%s]: %v", userID, err)
			if errors.Is(err, app.ErrVoiceNotConfigured) {
				return "", runtime.NewError(err.Error(), 9)
			}
			return "", runtime.NewError(err.Error(), 3)
		}

		out, err := json.Marshal(voiceTokenResponse{Token: token, Channel: channel})
		if err != nil {
			return "", runtime.NewError("failed to encode response", 13)
		}
		return string(out), nil
	}
}
