// Package ports declares the collaborators the game core talks to.
package ports

import (
	"context"
	"time"

	"wushik/internal/domain"
)

// Announcement is the voice line for one committed combination.
type Announcement struct {
	GameID      string
	Player      int
	UserID      string
	Combination string
	Cards       []domain.Card
	Duration    time.Duration
}

// Announcer plays an announcement and returns once playback ended. Callers treat
// any error as "carry on": a failed announcement never blocks a play.
type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}
