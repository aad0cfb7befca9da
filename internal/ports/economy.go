package ports

import "context"

// WalletUpdate is one player's gold change from a settled game.
type WalletUpdate struct {
	UserID string
	Amount int64
	GameID string
	Reason string
}

// EconomyPort moves settled game results into player wallets.
type EconomyPort interface {
	GetBalance(ctx context.Context, userID string) (int64, error)

	// UpdateBalances applies every change of one settlement; zero amounts are skipped.
	UpdateBalances(ctx context.Context, updates []WalletUpdate) error
}
