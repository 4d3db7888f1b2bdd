// Package syncbarrier implements the per-frame rendezvous between the lane
// detector, the object detector and the controller.
//
// A round is keyed by a frame id. The first party to call Open with a frame
// newer than the last resolved round pins that frame, and every other party
// calling Open while the round is gathering receives the same frame. That is
// what lets the controller pair an offset with flags computed from one image.
//
// Arrive blocks for at most the configured timeout. A round that times out is
// abandoned: all of its waiters are released with TimedOut, and parties that
// arrive later for it get Stale straight away.
package syncbarrier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/lanepilot/internal/frames"
	"github.com/banshee-data/lanepilot/internal/timeutil"
)

// ErrNoRound is returned by Arrive when id is newer than the last round but
// no round has been opened for it.
var ErrNoRound = errors.New("syncbarrier: no open round for frame")

// Outcome describes how an Arrive call was released.
type Outcome int

const (
	// Complete means every party arrived for the round.
	Complete Outcome = iota
	// TimedOut means the bounded wait elapsed before all parties arrived.
	TimedOut
	// Stale means the round had already been resolved.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case TimedOut:
		return "timed-out"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Stats counts resolved rounds by outcome.
type Stats struct {
	Completed uint64 `json:"completed"`
	TimedOut  uint64 `json:"timed_out"`
	Stale     uint64 `json:"stale"`
}

type round struct {
	frame   *frames.Frame
	arrived int
	done    chan struct{}
	outcome Outcome
}

func (r *round) resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Barrier is a reusable rendezvous for a fixed number of parties.
type Barrier struct {
	parties int
	timeout time.Duration
	clock   timeutil.Clock

	mu        sync.Mutex
	current   *round
	lastRound uint64
	stats     Stats
}

// New creates a barrier for parties participants with the given bounded
// wait. A nil clock uses the real clock.
func New(parties int, timeout time.Duration, clock timeutil.Clock) *Barrier {
	if parties < 1 {
		parties = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Barrier{parties: parties, timeout: timeout, clock: clock}
}

// Open returns the frame of the round currently being gathered. If no round
// is open and candidate is newer than the last round, candidate opens one.
// Otherwise candidate is returned unchanged and a following Arrive for it
// reports Stale.
func (b *Barrier) Open(candidate *frames.Frame) *frames.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil {
		return b.current.frame
	}
	if candidate == nil || candidate.ID <= b.lastRound {
		return candidate
	}
	b.current = &round{frame: candidate, done: make(chan struct{})}
	tracef("round %d opened", candidate.ID)
	return candidate
}

// Arrive registers the caller for round id and waits for the others.
func (b *Barrier) Arrive(ctx context.Context, id uint64) (Outcome, error) {
	b.mu.Lock()
	if id <= b.lastRound {
		b.stats.Stale++
		b.mu.Unlock()
		return Stale, nil
	}
	r := b.current
	if r == nil || r.frame.ID != id {
		b.mu.Unlock()
		return Stale, fmt.Errorf("%w %d", ErrNoRound, id)
	}

	r.arrived++
	if r.arrived >= b.parties {
		b.resolveLocked(r, Complete)
		b.mu.Unlock()
		return Complete, nil
	}
	b.mu.Unlock()

	timer := b.clock.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return r.outcome, nil

	case <-timer.C():
		b.mu.Lock()
		defer b.mu.Unlock()
		if r.resolved() {
			return r.outcome, nil
		}
		opsf("round %d timed out after %v with %d/%d parties", id, b.timeout, r.arrived, b.parties)
		b.resolveLocked(r, TimedOut)
		return TimedOut, nil

	case <-ctx.Done():
		b.mu.Lock()
		defer b.mu.Unlock()
		if r.resolved() {
			return r.outcome, nil
		}
		r.arrived--
		return Stale, ctx.Err()
	}
}

func (b *Barrier) resolveLocked(r *round, o Outcome) {
	r.outcome = o
	switch o {
	case Complete:
		b.stats.Completed++
	case TimedOut:
		b.stats.TimedOut++
	}
	b.lastRound = r.frame.ID
	if b.current == r {
		b.current = nil
	}
	close(r.done)
	tracef("round %d %s", r.frame.ID, o)
}

// LastRound returns the id of the most recently resolved round.
func (b *Barrier) LastRound() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRound
}

// Stats returns a snapshot of the outcome counters.
func (b *Barrier) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
