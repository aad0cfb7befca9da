package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"wushik/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// walletCurrency is the wallet key settled game results are paid in.
const walletCurrency = "gold"

// NakamaEconomyAdapter implements ports.EconomyPort using Nakama's wallet system.
type NakamaEconomyAdapter struct {
	nk runtime.NakamaModule
}

// NewNakamaEconomyAdapter creates a new economy adapter.
func NewNakamaEconomyAdapter(nk runtime.NakamaModule) *NakamaEconomyAdapter {
	return &NakamaEconomyAdapter{nk: nk}
}

// GetBalance retrieves the current gold balance for a user.
func (a *NakamaEconomyAdapter) GetBalance(ctx context.Context, userID string) (int64, error) {
	account, err := a.nk.AccountGetId(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}

	var wallet map[string]int64
	if err := json.Unmarshal([]byte(account.GetWallet()), &wallet); err != nil {
		return 0, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}
	return wallet[walletCurrency], nil
}

// UpdateBalances applies every non-zero change of one settlement in a single
// wallet batch, so a game is paid out entirely or not at all.
func (a *NakamaEconomyAdapter) UpdateBalances(ctx context.Context, updates []ports.WalletUpdate) error {
	batch := walletUpdates(updates)
	if len(batch) == 0 {
		return nil
	}
	if _, err := a.nk.WalletsUpdate(ctx, batch, true); err != nil {
		return fmt.Errorf("failed to settle %d wallets: %w", len(batch), err)
	}
	return nil
}

func walletUpdates(updates []ports.WalletUpdate) []*runtime.WalletUpdate {
	batch := make([]*runtime.WalletUpdate, 0, len(updates))
	for _, u := range updates {
		if u.Amount == 0 || u.UserID == "" {
			continue
		}
		batch = append(batch, &runtime.WalletUpdate{
			UserID:    u.UserID,
			Changeset: map[string]int64{walletCurrency: u.Amount},
			Metadata: map[string]interface{}{
				"game_id": u.GameID,
				"reason":  u.Reason,
			},
		})
	}
	return batch
}
