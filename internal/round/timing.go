package round

import (
	"context"
	"time"

	"wushik/internal/config"
)

// TimingPolicy holds the pacing rules of a round. Read-only after creation.
// Enabled gates both the minimum interval and the per-player countdown.
type TimingPolicy struct {
	MinIntervalBetweenPlays time.Duration
	PlayTimeout             time.Duration
	Enabled                 bool
}

// PolicyFromConfig converts the millisecond wire format.
func PolicyFromConfig(c config.TimingConfig) TimingPolicy {
	return TimingPolicy{
		MinIntervalBetweenPlays: c.MinInterval(),
		PlayTimeout:             c.Timeout(),
		Enabled:                 c.Enabled,
	}
}

// CanPlayNow reports whether pacing allows a commit, and otherwise how long is left.
func (r *Round) CanPlayNow(player int) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canPlayLocked(player)
}

func (r *Round) canPlayLocked(player int) (bool, time.Duration) {
	if !r.policy.Enabled || r.lastPlayTime.IsZero() {
		return true, 0
	}
	elapsed := r.now().Sub(r.lastPlayTime)
	if elapsed >= r.policy.MinIntervalBetweenPlays {
		return true, 0
	}
	remaining := r.policy.MinIntervalBetweenPlays - elapsed
	r.logger.Debug("CanPlayNow: seat %d must wait %v", player, remaining)
	return false, remaining
}

// WaitForMinInterval blocks until pacing allows a commit or ctx is done.
func (r *Round) WaitForMinInterval(ctx context.Context) error {
	for {
		ok, wait := r.CanPlayNow(-1)
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// StartPlayTimer arms the player's countdown. onTimeout runs at most once, on its
// own goroutine, unless the timer is cleared or restarted first.
func (r *Round) StartPlayTimer(player int, onTimeout func(player int)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished || !r.policy.Enabled || r.policy.PlayTimeout <= 0 {
		return
	}
	r.stopTimerLocked(player)
	gen := r.timerGen[player]

	r.timers[player] = time.AfterFunc(r.policy.PlayTimeout, func() {
		r.mu.Lock()
		stale := r.finished || r.timerGen[player] != gen
		if !stale {
			delete(r.timers, player)
			r.timerGen[player]++
		}
		r.mu.Unlock()

		if stale {
			return
		}
		r.logger.Info("PlayTimer: seat %d timed out", player)
		onTimeout(player)
	})
}

// ClearPlayTimer cancels the player's countdown, including one already firing.
func (r *Round) ClearPlayTimer(player int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked(player)
}

// HasPlayTimer reports whether a countdown is armed for player.
func (r *Round) HasPlayTimer(player int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[player]
	return ok
}

func (r *Round) stopTimerLocked(player int) {
	if t, ok := r.timers[player]; ok {
		t.Stop()
		delete(r.timers, player)
	}
	r.timerGen[player]++
}
