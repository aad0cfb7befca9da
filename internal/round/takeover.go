package round

// takeoverPoll tracks an "everyone passed" sweep. end is the last successful player.
type takeoverPoll struct {
	active bool
	start  int
	end    int
}

// StartTakeoverRound begins polling at the passing player, ending at lastPlayPlayer.
func (r *Round) StartTakeoverRound(passingPlayer, lastPlayPlayer int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.takeover = takeoverPoll{active: true, start: passingPlayer, end: lastPlayPlayer}
	r.logger.Debug("Takeover: poll started at seat %d, closes at seat %d", passingPlayer, lastPlayPlayer)
}

// IsTakeoverRoundActive reports whether a poll is running.
func (r *Round) IsTakeoverRoundActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.takeover.active
}

// EndTakeoverRound stops the poll, typically because someone played.
func (r *Round) EndTakeoverRound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.takeover = takeoverPoll{}
}

// IsTakeoverPollingComplete reports whether the poll has cycled back to the last
// successful player.
func (r *Round) IsTakeoverPollingComplete(currentPlayer int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.takeover.active && currentPlayer == r.takeover.end
}
