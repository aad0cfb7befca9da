package round

import (
	"context"
	"fmt"
	"time"
)

// CommitStatus is the state of the single-flight commit slot.
type CommitStatus int

const (
	CommitIdle CommitStatus = iota
	CommitProcessing
	CommitCompleted
	CommitFailed
)

func (s CommitStatus) String() string {
	switch s {
	case CommitProcessing:
		return "processing"
	case CommitCompleted:
		return "completed"
	case CommitFailed:
		return "failed"
	default:
		return "idle"
	}
}

// CommitSlot describes the most recent commit attempt of a round.
type CommitSlot struct {
	Owner     int
	Status    CommitStatus
	StartTime time.Time
}

// CommitResult is the outcome of ProcessPlay.
type CommitResult struct {
	Status CommitStatus
	Err    error
}

// OK reports whether the commit completed.
func (c CommitResult) OK() bool {
	return c.Status == CommitCompleted
}

func failed(err error) CommitResult {
	return CommitResult{Status: CommitFailed, Err: err}
}

// ProcessPlay runs work as the round's only in-flight commit. A caller arriving
// while another commit runs waits up to the commit wait bound. work gets a context
// bounded by the play timeout and cancelled by End; it must check that context
// before writing to the round.
//
// A body that has recorded its play when the context ends still completes; one
// that has not is abandoned and its later RecordPlay is refused. The slot is
// released only when work returns, so a timed-out body still blocks later commits
// until it exits.
func (r *Round) ProcessPlay(ctx context.Context, player int, work func(ctx context.Context) error) CommitResult {
	if r.IsFinished() {
		return failed(ErrRoundFinished)
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, r.commitWait)
	err := r.slot.Acquire(waitCtx, 1)
	cancelWait()
	if err != nil {
		r.logger.Warn("ProcessPlay: seat %d gave up waiting for commit slot: %v", player, err)
		return failed(fmt.Errorf("%w: %v", ErrCommitBusy, err))
	}

	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		r.slot.Release(1)
		return failed(ErrRoundFinished)
	}
	var (
		workCtx    context.Context
		cancelWork context.CancelFunc
	)
	if r.policy.PlayTimeout > 0 {
		workCtx, cancelWork = context.WithTimeout(ctx, r.policy.PlayTimeout)
	} else {
		workCtx, cancelWork = context.WithCancel(ctx)
	}
	r.commit = CommitSlot{Owner: player, Status: CommitProcessing, StartTime: r.now()}
	r.cancelCommit = cancelWork
	r.working, r.recorded, r.abandoned = true, false, false
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer r.slot.Release(1)
		err := work(workCtx)
		r.mu.Lock()
		r.working, r.abandoned = false, false
		r.mu.Unlock()
		done <- err
	}()

	var workErr error
	select {
	case workErr = <-done:
	case <-workCtx.Done():
		workErr = r.settleExpired(workCtx, done)
	}
	cancelWork()

	res := CommitResult{Status: CommitCompleted}
	if workErr != nil {
		res = failed(workErr)
	}

	r.mu.Lock()
	if r.commit.Owner == player && r.commit.Status == CommitProcessing {
		r.commit.Status = res.Status
	}
	r.cancelCommit = nil
	r.mu.Unlock()

	if workErr != nil {
		r.logger.Warn("ProcessPlay: commit for seat %d failed: %v", player, workErr)
	}
	return res
}

// settleExpired decides a commit whose context ended before work returned. A play
// already on the ledger wins; otherwise the attempt is abandoned.
func (r *Round) settleExpired(workCtx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	default:
	}

	r.mu.Lock()
	settled := r.recorded || !r.working
	if !settled {
		r.abandoned = true
	}
	r.mu.Unlock()

	if settled {
		return <-done
	}
	return workCtx.Err()
}

// CommitSlot returns the current slot descriptor.
func (r *Round) CommitSlot() CommitSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commit
}
