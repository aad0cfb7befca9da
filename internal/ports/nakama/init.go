package nakama

import (
	"context"
	"database/sql"

	"wushik/internal/app"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule wires RPCs and match handlers for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	cfg := loadConfig(ctx, logger)
	if err := RegisterRPCs(initializer, app.NewVoiceService(cfg.Voice)); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchName, NewMatch); err != nil {
		return err
	}

	logger.Info("Wushik Go module loaded.")
	return nil
}
